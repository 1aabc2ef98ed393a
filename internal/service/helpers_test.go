package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/store"
)

type testEnv struct {
	DB         *gorm.DB
	Repo       *repo.GormRepo
	Hub        *realtime.Hub
	Orders     *OrderService
	Chat       *ChatService
	Affiliates *AffiliateService
	Settings   *SettingsService
	Catalog    *CatalogService
	Store      *store.MemoryPersister
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	gdb := dbtest.InitTestDB(t)
	r := repo.New(gdb)
	hub := realtime.NewHub(256)
	t.Cleanup(hub.Close)

	return &testEnv{
		DB:         gdb,
		Repo:       r,
		Hub:        hub,
		Orders:     &OrderService{Repo: r, Events: hub, Hub: hub},
		Chat:       &ChatService{Repo: r, Events: hub, Hub: hub},
		Affiliates: &AffiliateService{Repo: r},
		Settings:   &SettingsService{Repo: r, Events: hub, Hub: hub},
		Catalog:    &CatalogService{Repo: r, Events: hub},
		Store:      store.NewMemoryPersister(),
	}
}

func customer() auth.Principal { return auth.NewPrincipal(uuid.New(), auth.RoleUser) }
func admin() auth.Principal    { return auth.NewPrincipal(uuid.New(), auth.RoleAdmin) }

func (e *testEnv) seedProduct(t testing.TB, name, price string, inStock bool) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), InStock: inStock, Category: "misc"}
	_, err := e.Repo.CreateProduct(context.Background(), &p)
	require.NoError(t, err)
	return p
}

type line struct {
	product models.Product
	qty     int
}

func (e *testEnv) cart(t testing.TB, p auth.Principal, lines ...line) *store.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := store.OpenCart(ctx, e.Store, p.UserID.String())
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, c.Add(ctx, l.product))
		if l.qty != 1 {
			require.NoError(t, c.UpdateQuantity(ctx, l.product.ID, l.qty))
		}
	}
	return c
}

func (e *testEnv) placeOrder(t testing.TB, p auth.Principal) models.Order {
	t.Helper()
	prod := e.seedProduct(t, "Item "+uuid.NewString()[:8], "10", true)
	res, err := e.Orders.Checkout(context.Background(), p, e.cart(t, p, line{prod, 1}), CheckoutRequest{TermsAccepted: true})
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	return res.Orders[0]
}

func next[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func ptr[T any](v T) *T { return &v }
