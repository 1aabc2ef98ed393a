package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/store"
)

const (
	SessionCookie = "cart_session"
	sessionMaxAge = 30 * 24 * time.Hour
)

// CartHTTP serves the cart and wishlist of the calling session and the
// checkout that turns the cart into orders.
type CartHTTP struct {
	Sessions *store.Sessions
	Catalog  *service.CatalogService
	Orders   *service.OrderService
	Settings *service.SettingsService
}

type productRef struct {
	ProductID uuid.UUID `json:"product_id"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type CheckoutResponse struct {
	*service.CheckoutResult
	PixKey string `json:"pix_key,omitempty"`
}

// session is the signed-in user's id or, for anonymous callers, the
// cart_session cookie, which is issued on first use. The first signed-in
// request that still carries the cookie moves the anonymous cart and
// wishlist into the user's and drops the cookie.
func (h *CartHTTP) session(c echo.Context) (string, error) {
	ck, cookieErr := c.Cookie(SessionCookie)
	var anon string
	if cookieErr == nil {
		if id, err := uuid.Parse(ck.Value); err == nil {
			anon = "anon:" + id.String()
		}
	}

	if p := auth.PrincipalFrom(c); p.Authenticated() {
		user := p.UserID.String()
		if cookieErr != nil {
			return user, nil
		}
		if anon != "" {
			if err := h.Sessions.Adopt(c.Request().Context(), anon, user); err != nil {
				return "", err
			}
			logging.FromContext(c.Request().Context()).Info("cart_session_adopted", "user_id", user)
		}
		c.SetCookie(auth.DeleteCookie(SessionCookie, "/"))
		return user, nil
	}

	if anon != "" {
		return anon, nil
	}
	id := uuid.New()
	c.SetCookie(auth.CreateCookie(SessionCookie, id.String(), "/", time.Now().Add(sessionMaxAge)))
	return "anon:" + id.String(), nil
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_cart")

	key, err := h.session(c)
	if err != nil {
		return fail(l, "get_cart", err)
	}
	var snap store.CartSnapshot
	err = h.Sessions.WithCart(ctx, key, func(cart *store.Cart) error {
		snap = cart.Snapshot()
		return nil
	})
	if err != nil {
		return fail(l, "get_cart", err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *CartHTTP) mutateCart(c echo.Context, op string, fn func(ctx context.Context, cart *store.Cart) error) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart."+op)

	key, err := h.session(c)
	if err != nil {
		return fail(l, op, err)
	}
	var snap store.CartSnapshot
	err = h.Sessions.WithCart(ctx, key, func(cart *store.Cart) error {
		if err := fn(ctx, cart); err != nil {
			return err
		}
		snap = cart.Snapshot()
		return nil
	})
	if err != nil {
		return fail(l, op, err)
	}
	l.Info(op+"_success", "item_count", snap.ItemCount)
	return c.JSON(http.StatusOK, snap)
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_to_cart")

	var req productRef
	if err := c.Bind(&req); err != nil || req.ProductID == uuid.Nil {
		return badRequest(l, "add_to_cart", "product_id is required", err)
	}
	product, err := h.Catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return fail(l, "add_to_cart", err)
	}
	return h.mutateCart(c, "add_to_cart", func(ctx context.Context, cart *store.Cart) error {
		return cart.Add(ctx, *product)
	})
}

func (h *CartHTTP) UpdateQuantity(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "cart.update_quantity")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "update_quantity", "invalid product id", err)
	}
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_quantity", "invalid body", err)
	}
	return h.mutateCart(c, "update_quantity", func(ctx context.Context, cart *store.Cart) error {
		return cart.UpdateQuantity(ctx, id, req.Quantity)
	})
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "cart.remove_from_cart")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "remove_from_cart", "invalid product id", err)
	}
	return h.mutateCart(c, "remove_from_cart", func(ctx context.Context, cart *store.Cart) error {
		return cart.Remove(ctx, id)
	})
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	return h.mutateCart(c, "clear_cart", func(ctx context.Context, cart *store.Cart) error {
		return cart.Clear(ctx)
	})
}

func (h *CartHTTP) GetWishlist(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_wishlist")

	key, err := h.session(c)
	if err != nil {
		return fail(l, "get_wishlist", err)
	}
	var snap store.WishlistSnapshot
	err = h.Sessions.WithWishlist(ctx, key, func(w *store.Wishlist) error {
		snap = w.Snapshot()
		return nil
	})
	if err != nil {
		return fail(l, "get_wishlist", err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *CartHTTP) AddToWishlist(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_to_wishlist")

	var req productRef
	if err := c.Bind(&req); err != nil || req.ProductID == uuid.Nil {
		return badRequest(l, "add_to_wishlist", "product_id is required", err)
	}
	product, err := h.Catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return fail(l, "add_to_wishlist", err)
	}

	key, err := h.session(c)
	if err != nil {
		return fail(l, "add_to_wishlist", err)
	}
	var snap store.WishlistSnapshot
	err = h.Sessions.WithWishlist(ctx, key, func(w *store.Wishlist) error {
		if err := w.Add(ctx, *product); err != nil {
			return err
		}
		snap = w.Snapshot()
		return nil
	})
	if err != nil {
		return fail(l, "add_to_wishlist", err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *CartHTTP) RemoveFromWishlist(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_from_wishlist")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "remove_from_wishlist", "invalid product id", err)
	}

	key, err := h.session(c)
	if err != nil {
		return fail(l, "remove_from_wishlist", err)
	}
	var snap store.WishlistSnapshot
	err = h.Sessions.WithWishlist(ctx, key, func(w *store.Wishlist) error {
		if err := w.Remove(ctx, id); err != nil {
			return err
		}
		snap = w.Snapshot()
		return nil
	})
	if err != nil {
		return fail(l, "remove_from_wishlist", err)
	}
	return c.JSON(http.StatusOK, snap)
}

// Checkout places the caller's cart. The Idempotency-Key header is used when
// the body carries no key.
func (h *CartHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.checkout")

	var req service.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "checkout", "invalid body", err)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")
	}

	if _, err := h.session(c); err != nil {
		return fail(l, "checkout", err)
	}
	res, err := h.Orders.CheckoutSession(ctx, auth.PrincipalFrom(c), h.Sessions, req)
	if err != nil {
		return fail(l, "checkout", err)
	}

	out := CheckoutResponse{CheckoutResult: res}
	if h.Settings != nil {
		pix, err := h.Settings.Get(ctx, service.SettingPixKey)
		if err != nil {
			l.Warn("checkout_pix_key_error", "error", err)
		}
		out.PixKey = pix
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	l.Info("checkout_success", "orders", len(res.Orders), "replayed", res.Replayed)
	return c.JSON(status, out)
}
