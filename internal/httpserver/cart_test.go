package httpserver

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/store"
)

func TestAnonymousCartUsesSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	chair := env.seedProduct("Chair", "20.50", true)

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	sess := cookieNamed(rec, SessionCookie)
	require.NotNil(t, sess)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()}, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, cookieNamed(rec, SessionCookie))
	snap := decode[store.CartSnapshot](t, rec)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.Equal(t, 2, snap.ItemCount)
	assert.Equal(t, "41", snap.Total.String())

	// another session starts empty
	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[store.CartSnapshot](t, rec).Items)

	rec = env.doJSONRequest(http.MethodPatch, "/api/v1/cart/items/"+chair.ID.String(), map[string]int{"quantity": 0}, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[store.CartSnapshot](t, rec)
	assert.Empty(t, snap.Items)
	assert.True(t, snap.Total.IsZero())
}

func TestAddToCart_OutOfStock(t *testing.T) {
	env := newTestEnv(t)
	stool := env.seedProduct("Stool", "5", false)
	_, user := env.login(auth.RoleUser)

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": stool.ID.String()}, user)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[store.CartSnapshot](t, rec).ItemCount)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartRemoveAndClear(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct("A", "1", true)
	b := env.seedProduct("B", "2", true)
	_, user := env.login(auth.RoleUser)

	for _, p := range []string{a.ID.String(), b.ID.String()} {
		rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": p}, user)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.doJSONRequest(http.MethodDelete, "/api/v1/cart/items/"+a.ID.String(), nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[store.CartSnapshot](t, rec)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, b.ID, snap.Items[0].ID)

	// removing again is a no-op
	rec = env.doJSONRequest(http.MethodDelete, "/api/v1/cart/items/"+a.ID.String(), nil, user)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSONRequest(http.MethodDelete, "/api/v1/cart", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[store.CartSnapshot](t, rec).Items)
}

func TestWishlist(t *testing.T) {
	env := newTestEnv(t)
	chair := env.seedProduct("Chair", "20", true)
	_, user := env.login(auth.RoleUser)

	for i := 0; i < 2; i++ {
		rec := env.doJSONRequest(http.MethodPost, "/api/v1/wishlist", map[string]string{"product_id": chair.ID.String()}, user)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[store.WishlistSnapshot](t, rec).Items, 1)
	}

	rec := env.doJSONRequest(http.MethodDelete, "/api/v1/wishlist/"+chair.ID.String(), nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[store.WishlistSnapshot](t, rec).Items)
}

func TestSignInAdoptsAnonymousCart(t *testing.T) {
	env := newTestEnv(t)
	chair := env.seedProduct("Chair", "20", true)
	lamp := env.seedProduct("Lamp", "15", true)
	_, user := env.login(auth.RoleUser)

	// the account already holds one chair from another device
	rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()}, user)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	sess := cookieNamed(rec, SessionCookie)
	require.NotNil(t, sess)
	rec = env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": lamp.ID.String()}, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSONRequest(http.MethodPost, "/api/v1/wishlist", map[string]string{"product_id": lamp.ID.String()}, sess)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, user, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[store.CartSnapshot](t, rec)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 3, snap.ItemCount)
	assert.Equal(t, "55", snap.Total.String())
	for _, it := range snap.Items {
		if it.ID == chair.ID {
			assert.Equal(t, 2, it.Quantity)
		}
	}
	dropped := cookieNamed(rec, SessionCookie)
	require.NotNil(t, dropped)
	assert.Negative(t, dropped.MaxAge)

	// a stale cookie sent again does not add the lines twice
	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, user, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[store.CartSnapshot](t, rec).ItemCount)

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/wishlist", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[store.WishlistSnapshot](t, rec).Items, 1)

	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", map[string]bool{"terms_accepted": true}, user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCheckoutAdoptsAnonymousCart(t *testing.T) {
	env := newTestEnv(t)
	chair := env.seedProduct("Chair", "20", true)
	_, user := env.login(auth.RoleUser)

	rec := env.doJSONRequest(http.MethodPost, "/api/v1/cart/items", map[string]string{"product_id": chair.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	sess := cookieNamed(rec, SessionCookie)
	require.NotNil(t, sess)

	// straight from the sign-in page to checkout
	rec = env.doJSONRequest(http.MethodPost, "/api/v1/checkout", map[string]bool{"terms_accepted": true}, user, sess)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.doJSONRequest(http.MethodGet, "/api/v1/cart", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[store.CartSnapshot](t, rec).Items)
}
