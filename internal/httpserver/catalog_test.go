package httpserver

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
)

func TestGetProducts(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct("Chair", "20", true)
	env.seedProduct("Table", "80", true)
	env.seedProduct("Stool", "5", false)

	rec := env.doJSONRequest(http.MethodGet, "/api/v1/products?sort=price-desc&in_stock=true&size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[service.ProductPage](t, rec)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Table", page.Data[0].Name)
	assert.Equal(t, int64(2), page.Meta.Total)
	assert.True(t, page.Meta.HasNext)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/products?sort=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/products?min_price=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct("Chair", "20", true)

	rec := env.doJSONRequest(http.MethodGet, "/api/v1/products/"+p.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Product](t, rec)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, p.Price.Equal(got.Price))

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/products/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/products/42", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProduct(t *testing.T) {
	env := newTestEnv(t)
	_, user := env.login(auth.RoleUser)
	_, adm := env.login(auth.RoleAdmin)
	body := map[string]any{"name": "Lamp", "price": "49.90", "category": "lighting"}

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/products", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/products", body, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/products", body, adm)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Product](t, rec)
	assert.Equal(t, "49.9", created.Price.String())

	rec = env.doJSONRequest(http.MethodPatch, "/api/v1/products/"+created.ID.String(), map[string]any{"in_stock": false}, adm)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Product](t, rec).InStock)

	rec = env.doJSONRequest(http.MethodDelete, "/api/v1/products/"+created.ID.String(), nil, adm)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.doJSONRequest(http.MethodDelete, "/api/v1/products/"+created.ID.String(), nil, adm)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t)
	_, adm := env.login(auth.RoleAdmin)
	env.seedProduct("Chair", "20", true)

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/categories", map[string]string{"name": "Misc", "slug": "misc"}, adm)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.doJSONRequest(http.MethodPost, "/api/v1/categories", map[string]string{"name": "Again", "slug": "misc"}, adm)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[[]models.CategoryCount](t, rec)
	require.Len(t, cats, 1)
	assert.Equal(t, int64(1), cats[0].Count)
}
