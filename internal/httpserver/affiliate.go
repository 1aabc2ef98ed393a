package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
)

type AffiliateHTTP struct {
	Svc *service.AffiliateService
	// BaseURL is the storefront address referral links point at.
	BaseURL string
}

type reviewRequest struct {
	Status models.ApplicationStatus `json:"status"`
	Reason *string                  `json:"reason"`
}

func (h *AffiliateHTTP) Apply(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "affiliate.apply")

	app, err := h.Svc.Apply(ctx, auth.PrincipalFrom(c))
	if err != nil {
		return fail(l, "apply", err)
	}
	return c.JSON(http.StatusCreated, app)
}

func (h *AffiliateHTTP) Mine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "affiliate.mine")

	app, err := h.Svc.Mine(ctx, auth.PrincipalFrom(c))
	if err != nil {
		return fail(l, "get_application", err)
	}
	return c.JSON(http.StatusOK, app)
}

func (h *AffiliateHTTP) Link(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "affiliate.link")

	link, err := h.Svc.Link(auth.PrincipalFrom(c), h.BaseURL)
	if err != nil {
		return fail(l, "affiliate_link", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"link": link})
}

func (h *AffiliateHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "affiliate.list")

	apps, err := h.Svc.List(ctx, auth.PrincipalFrom(c), models.ApplicationStatus(c.QueryParam("status")))
	if err != nil {
		return fail(l, "list_applications", err)
	}
	return c.JSON(http.StatusOK, apps)
}

func (h *AffiliateHTTP) Review(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "affiliate.review")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "review_application", "invalid application id", err)
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "review_application", "invalid body", err)
	}
	app, err := h.Svc.Review(ctx, auth.PrincipalFrom(c), id, req.Status, req.Reason)
	if err != nil {
		return fail(l, "review_application", err)
	}
	return c.JSON(http.StatusOK, app)
}
