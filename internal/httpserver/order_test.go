package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/store"
)

type checkoutBody struct {
	Orders      []models.Order `json:"orders"`
	Replayed    bool           `json:"replayed"`
	CartCleared bool           `json:"cart_cleared"`
	PixKey      string         `json:"pix_key"`
}

// checkout fills the caller's cart with one unit of each product and places it.
func (env *testEnv) checkout(user *http.Cookie, products ...models.Product) checkoutBody {
	env.T.Helper()
	for _, p := range products {
		rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": p.ID.String()}, user)
		require.Equal(env.T, http.StatusOK, rec.Code)
	}
	rec := env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{TermsAccepted: true}, user)
	require.Equal(env.T, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[checkoutBody](env.T, rec)
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	_, adm := env.login(auth.RoleAdmin)
	_, user := env.login(auth.RoleUser)
	chair := env.seedProduct("Chair", "20", true)
	table := env.seedProduct("Table", "80", true)

	rec := env.doJSONRequest(http.MethodPut, "/api/v1/settings", map[string]string{"pix_key": "pix@shop.example"}, adm)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, p := range []models.Product{chair, table} {
		rec = env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": p.ID.String()}, user)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{TermsAccepted: true, IdempotencyKey: "k-1"}, user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[checkoutBody](t, rec)
	assert.Len(t, body.Orders, 2)
	assert.True(t, body.CartCleared)
	assert.Equal(t, "pix@shop.example", body.PixKey)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, user)
	assert.Empty(t, decode[store.CartSnapshot](t, rec).Items)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{TermsAccepted: true, IdempotencyKey: "k-1"}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	replay := decode[checkoutBody](t, rec)
	assert.True(t, replay.Replayed)
	assert.ElementsMatch(t, []any{body.Orders[0].ID, body.Orders[1].ID}, []any{replay.Orders[0].ID, replay.Orders[1].ID})

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{TermsAccepted: true}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{TermsAccepted: true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderVisibilityAndStatus(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.login(auth.RoleUser)
	_, other := env.login(auth.RoleUser)
	_, adm := env.login(auth.RoleAdmin)
	order := env.checkout(owner, env.seedProduct("Chair", "20", true)).Orders[0]
	path := "/api/v1/orders/" + order.ID.String()

	rec := env.doJSONRequest(http.MethodGet, path, nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OrderStatusPending, decode[models.Order](t, rec).Status)

	rec = env.doJSONRequest(http.MethodGet, path, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil, other)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[service.OrderPage](t, rec).Data)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/orders?all=true", nil, owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/orders?all=true", nil, adm)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[service.OrderPage](t, rec).Data, 1)

	rec = env.doJSONRequest(http.MethodPatch, path+"/status", map[string]string{"status": "processing"}, owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSONRequest(http.MethodPatch, path+"/status", map[string]string{"status": "delivered", "ticket_message": "left at door"}, adm)
	require.Equal(t, http.StatusOK, rec.Code)
	delivered := decode[models.Order](t, rec)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)

	rec = env.doJSONRequest(http.MethodPatch, path+"/status", map[string]string{"status": "cancelled"}, adm)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/admin/stats", nil, owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/admin/stats", nil, adm)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, stats["total_products"])
	assert.Len(t, stats["recent_orders"], 1)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.doJSONRequest(http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, env.doJSONRequest(http.MethodGet, "/health/ready", nil).Code)
}

func TestCheckout_ReusedKeyKeepsUnorderedLines(t *testing.T) {
	env := newTestEnv(t)
	_, user := env.login(auth.RoleUser)
	chair := env.seedProduct("Chair", "20", true)
	table := env.seedProduct("Table", "80", true)
	req := service.CheckoutRequest{TermsAccepted: true, IdempotencyKey: "k"}

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", req, user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": table.ID.String()}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", req, user)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[store.CartSnapshot](t, rec)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, table.ID, snap.Items[0].ID)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/orders", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	orders := decode[struct {
		Data []models.Order `json:"data"`
	}](t, rec)
	require.Len(t, orders.Data, 1)
	assert.Equal(t, chair.ID, orders.Data[0].ProductID)
}

func TestCheckout_OutOfStockIsConflict(t *testing.T) {
	env := newTestEnv(t)
	_, adm := env.login(auth.RoleAdmin)
	_, user := env.login(auth.RoleUser)
	chair := env.seedProduct("Chair", "20", true)

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSONRequest(http.MethodPatch, "/api/v1/products/"+chair.ID.String(), map[string]any{"in_stock": false}, adm)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", service.CheckoutRequest{TermsAccepted: true}, user)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Chair: product is out of stock")

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, user)
	assert.Equal(t, 1, decode[store.CartSnapshot](t, rec).ItemCount)
}
