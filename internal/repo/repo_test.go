package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/models"
)

func newRepo(t *testing.T) *GormRepo {
	return New(dbtest.InitTestDB(t))
}

func seedProduct(t *testing.T, r *GormRepo, p models.Product) models.Product {
	t.Helper()
	created, err := r.CreateProduct(context.Background(), &p)
	require.NoError(t, err)
	return *created
}

func ptr[T any](v T) *T { return &v }

func TestListProducts_FiltersAndSorts(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	seedProduct(t, r, models.Product{Name: "Blue Lamp", Description: "desk lamp", Price: decimal.NewFromInt(30), Category: "lighting", InStock: true, Featured: true, Rating: ptr(4.5)})
	seedProduct(t, r, models.Product{Name: "Armchair", Description: "soft", Price: decimal.NewFromInt(200), Category: "furniture", InStock: true, Discount: ptr(10), Rating: ptr(4.9)})
	seedProduct(t, r, models.Product{Name: "Candle", Description: "scented", Price: decimal.RequireFromString("9.90"), Category: "lighting", InStock: false, Tags: []string{"gift"}})

	total, items, err := r.ListProducts(ctx, ProductFilter{Sort: SortPriceAsc})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"Candle", "Blue Lamp", "Armchair"}, names(items))

	_, items, err = r.ListProducts(ctx, ProductFilter{Sort: SortPriceDesc})
	require.NoError(t, err)
	assert.Equal(t, "Armchair", items[0].Name)

	_, items, err = r.ListProducts(ctx, ProductFilter{Sort: SortRating})
	require.NoError(t, err)
	assert.Equal(t, []string{"Armchair", "Blue Lamp", "Candle"}, names(items))

	total, items, err = r.ListProducts(ctx, ProductFilter{Categories: []string{"lighting"}, Sort: SortName})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"Blue Lamp", "Candle"}, names(items))

	_, items, err = r.ListProducts(ctx, ProductFilter{DealsOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Armchair"}, names(items))

	_, items, err = r.ListProducts(ctx, ProductFilter{FeaturedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue Lamp"}, names(items))

	_, items, err = r.ListProducts(ctx, ProductFilter{Query: "LAMP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue Lamp"}, names(items))

	_, items, err = r.ListProducts(ctx, ProductFilter{Query: "gift"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Candle"}, names(items))

	minPrice, maxPrice := decimal.NewFromInt(10), decimal.NewFromInt(100)
	_, items, err = r.ListProducts(ctx, ProductFilter{MinPrice: &minPrice, MaxPrice: &maxPrice})
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue Lamp"}, names(items))

	total, items, err = r.ListProducts(ctx, ProductFilter{Sort: SortName, Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"Blue Lamp"}, names(items))
}

func names(ps []models.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestListCategories_Counts(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateCategory(ctx, &models.Category{Name: "Lighting", Slug: "lighting"}))
	require.NoError(t, r.CreateCategory(ctx, &models.Category{Name: "Books", Slug: "books"}))
	seedProduct(t, r, models.Product{Name: "A", Price: decimal.NewFromInt(1), Category: "lighting", InStock: true})
	seedProduct(t, r, models.Product{Name: "B", Price: decimal.NewFromInt(1), Category: "lighting", InStock: true})

	cats, err := r.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "books", cats[0].Slug)
	assert.Equal(t, int64(0), cats[0].Count)
	assert.Equal(t, int64(2), cats[1].Count)
}

func TestDeleteProduct_NotFound(t *testing.T) {
	r := newRepo(t)
	err := r.DeleteProduct(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestTransitionOrder_CompareAndSet(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	o := models.Order{UserID: uuid.New(), ProductID: uuid.New(), ProductName: "A", ProductPrice: decimal.NewFromInt(2), Quantity: 3, TotalPrice: decimal.NewFromInt(6), Status: models.OrderStatusPending}
	require.NoError(t, r.CreateOrders(ctx, []models.Order{o}))
	orders, _ := listAll(t, r)
	id := orders[0].ID

	now := time.Now().UTC()
	ok, err := r.TransitionOrder(ctx, id, models.OrderStatusPending, models.OrderStatusDelivered, ptr("shipped"), &now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TransitionOrder(ctx, id, models.OrderStatusPending, models.OrderStatusCancelled, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.TicketMessage)
	assert.Equal(t, "shipped", *got.TicketMessage)
}

func listAll(t *testing.T, r *GormRepo) ([]models.Order, int64) {
	t.Helper()
	total, orders, err := r.ListOrders(context.Background(), OrderFilter{})
	require.NoError(t, err)
	return orders, total
}

func TestOrderStats(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	require.NoError(t, r.CreateOrders(ctx, []models.Order{
		{UserID: u1, ProductID: uuid.New(), ProductName: "A", ProductPrice: decimal.NewFromInt(5), Quantity: 2, TotalPrice: decimal.NewFromInt(10), Status: models.OrderStatusPending},
		{UserID: u2, ProductID: uuid.New(), ProductName: "B", ProductPrice: decimal.RequireFromString("2.50"), Quantity: 1, TotalPrice: decimal.RequireFromString("2.50"), Status: models.OrderStatusCancelled},
	}))

	stats, err := r.OrderStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalOrders)
	assert.Equal(t, int64(2), stats.Customers)
	assert.True(t, decimal.RequireFromString("12.5").Equal(stats.Revenue), stats.Revenue.String())
	assert.Equal(t, int64(1), stats.ByStatus[models.OrderStatusPending])
	assert.Equal(t, int64(1), stats.ByStatus[models.OrderStatusCancelled])
}

func TestAffiliate_PartialUniqueIndex(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	user := uuid.New()

	first := models.AffiliateApplication{UserID: user, Status: models.ApplicationPending}
	require.NoError(t, r.CreateApplication(ctx, &first))

	err := r.CreateApplication(ctx, &models.AffiliateApplication{UserID: user, Status: models.ApplicationPending})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	ok, err := r.ReviewApplication(ctx, first.ID, models.ApplicationRejected, ptr("incomplete"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ReviewApplication(ctx, first.ID, models.ApplicationApproved, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.CreateApplication(ctx, &models.AffiliateApplication{UserID: user, Status: models.ApplicationPending}))
	n, err := r.CountApplications(ctx, models.ApplicationPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRoles(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, r.GrantRole(ctx, user, "affiliate"))
	require.NoError(t, r.GrantRole(ctx, user, "affiliate"))

	roles, err := r.RolesFor(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"affiliate"}, roles)
}

func TestSettings_Upsert(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	require.NoError(t, r.UpsertSetting(ctx, "site_name", "Shop"))
	require.NoError(t, r.UpsertSetting(ctx, "site_name", "Better Shop"))
	require.NoError(t, r.UpsertSetting(ctx, "pix_key", "abc"))

	settings, err := r.AllSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, "pix_key", settings[0].Key)
	assert.Equal(t, "Better Shop", settings[1].Value)
}

func TestTransaction_RollsBack(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	err := r.Transaction(ctx, func(tx *GormRepo) error {
		if err := tx.CreateOrders(ctx, []models.Order{{UserID: uuid.New(), ProductID: uuid.New(), ProductName: "A", ProductPrice: decimal.NewFromInt(1), Quantity: 1, TotalPrice: decimal.NewFromInt(1), Status: models.OrderStatusPending}}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	_, total := listAll(t, r)
	assert.Zero(t, total)
}
