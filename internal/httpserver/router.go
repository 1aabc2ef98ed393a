package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/auth"
)

type Deps struct {
	Catalog   *CatalogHTTP
	Cart      *CartHTTP
	Orders    *OrderHTTP
	Chat      *ChatHTTP
	Affiliate *AffiliateHTTP
	Settings  *SettingsHTTP

	Auth *auth.Middleware
	// AuthProxy, when set, serves AuthPrefix.
	AuthProxy echo.HandlerFunc
	// Ready reports whether the backing stores answer.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			}
		}
		return c.NoContent(http.StatusOK)
	})

	if d.AuthProxy != nil {
		e.Any(AuthPrefix+"/*", d.AuthProxy)
	}

	api := e.Group("/api/v1")
	authed := api.Group("", d.Auth.RequireAuth)
	optional := api.Group("", d.Auth.OptionalAuth)

	api.GET("/products", d.Catalog.GetProducts)
	api.GET("/products/:id", d.Catalog.GetProduct)
	api.GET("/categories", d.Catalog.GetCategories)

	catalog := authed.Group("", d.Auth.Require(auth.CapManageCatalog))
	catalog.POST("/products", d.Catalog.CreateProduct)
	catalog.PATCH("/products/:id", d.Catalog.PatchProduct)
	catalog.DELETE("/products/:id", d.Catalog.DeleteProduct)
	catalog.POST("/categories", d.Catalog.CreateCategory)
	catalog.PUT("/categories/:id", d.Catalog.UpdateCategory)
	catalog.DELETE("/categories/:id", d.Catalog.DeleteCategory)

	optional.GET("/cart", d.Cart.GetCart)
	optional.DELETE("/cart", d.Cart.ClearCart)
	optional.POST("/cart/items", d.Cart.AddToCart)
	optional.PATCH("/cart/items/:id", d.Cart.UpdateQuantity)
	optional.DELETE("/cart/items/:id", d.Cart.RemoveFromCart)
	optional.GET("/wishlist", d.Cart.GetWishlist)
	optional.POST("/wishlist", d.Cart.AddToWishlist)
	optional.DELETE("/wishlist/:id", d.Cart.RemoveFromWishlist)

	authed.POST("/checkout", d.Cart.Checkout)

	authed.GET("/orders", d.Orders.GetOrders)
	authed.GET("/orders/events", d.Orders.Events)
	authed.GET("/orders/:id", d.Orders.GetOrder)
	authed.PATCH("/orders/:id/status", d.Orders.UpdateStatus)

	authed.GET("/orders/:id/messages", d.Chat.GetMessages)
	authed.POST("/orders/:id/messages", d.Chat.SendMessage)
	authed.GET("/orders/:id/messages/stream", d.Chat.Stream)

	authed.POST("/affiliate/application", d.Affiliate.Apply)
	authed.GET("/affiliate/application", d.Affiliate.Mine)
	authed.GET("/affiliate/link", d.Affiliate.Link)

	admin := authed.Group("/admin")
	admin.GET("/stats", d.Orders.Stats)
	admin.GET("/affiliate/applications", d.Affiliate.List)
	admin.PATCH("/affiliate/applications/:id", d.Affiliate.Review)

	api.GET("/settings", d.Settings.GetSettings)
	api.GET("/settings/events", d.Settings.Events)
	authed.PUT("/settings", d.Settings.UpdateSettings)
}
