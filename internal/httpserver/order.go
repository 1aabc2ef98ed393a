package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/util"
)

type OrderHTTP struct {
	Svc *service.OrderService
}

type statusRequest struct {
	Status        models.OrderStatus `json:"status"`
	TicketMessage *string            `json:"ticket_message"`
}

func (h *OrderHTTP) GetOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_orders")

	all, _ := strconv.ParseBool(c.QueryParam("all"))
	page, err := h.Svc.List(ctx, auth.PrincipalFrom(c), service.ListOrdersRequest{
		Status: models.OrderStatus(c.QueryParam("status")),
		All:    all,
		Page:   util.ParseIntDefault(c.QueryParam("page"), 1),
		Size:   util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize),
	})
	if err != nil {
		return fail(l, "get_orders", err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_order")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "get_order", "invalid order id", err)
	}
	o, err := h.Svc.Get(ctx, auth.PrincipalFrom(c), id)
	if err != nil {
		return fail(l, "get_order", err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "update_status", "invalid order id", err)
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_status", "invalid body", err)
	}
	o, err := h.Svc.UpdateStatus(ctx, auth.PrincipalFrom(c), id, req.Status, req.TicketMessage)
	if err != nil {
		return fail(l, "update_status", err)
	}
	l.Info("update_status_success", "order_id", o.ID, "status", o.Status)
	return c.JSON(http.StatusOK, o)
}

// Events streams order changes visible to the caller as server-sent events.
func (h *OrderHTTP) Events(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.events")

	sub, err := h.Svc.Subscribe(auth.PrincipalFrom(c))
	if err != nil {
		return fail(l, "order_events", err)
	}
	defer sub.Close()

	return openStream(c).relay(ctx, sub)
}

func (h *OrderHTTP) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.stats")

	stats, err := h.Svc.Stats(ctx, auth.PrincipalFrom(c))
	if err != nil {
		return fail(l, "stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}
