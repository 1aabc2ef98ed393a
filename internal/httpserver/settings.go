package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/service"
)

type SettingsHTTP struct {
	Svc *service.SettingsService
}

func (h *SettingsHTTP) GetSettings(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "settings.get")

	all, err := h.Svc.All(ctx)
	if err != nil {
		return fail(l, "get_settings", err)
	}
	return c.JSON(http.StatusOK, all)
}

func (h *SettingsHTTP) UpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "settings.update")

	var values map[string]string
	if err := c.Bind(&values); err != nil {
		return badRequest(l, "update_settings", "invalid body", err)
	}
	all, err := h.Svc.Set(ctx, auth.PrincipalFrom(c), values)
	if err != nil {
		return fail(l, "update_settings", err)
	}
	l.Info("update_settings_success", "keys", len(values))
	return c.JSON(http.StatusOK, all)
}

func (h *SettingsHTTP) Events(c echo.Context) error {
	sub := h.Svc.Subscribe()
	defer sub.Close()
	return openStream(c).relay(c.Request().Context(), sub)
}
