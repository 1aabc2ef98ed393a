package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/store"
)

// statusOf maps a service error to the response status and the message the
// client may see.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrCheckoutFailed):
		return http.StatusServiceUnavailable, "checkout failed, please retry"
	case errors.Is(err, store.ErrOutOfStock):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, trimSentinel(err, service.ErrValidation)
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, trimSentinel(err, service.ErrConflict)
	}
	return http.StatusInternalServerError, "internal error"
}

func trimSentinel(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

// fail logs err under "<op>_error" and converts it into an HTTP error.
func fail(l *slog.Logger, op string, err error) error {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		l.Error(op+"_error", "status", status, "error", err)
	} else {
		l.Warn(op+"_error", "status", status, "reason", msg, "error", err)
	}
	return echo.NewHTTPError(status, msg)
}

func badRequest(l *slog.Logger, op, reason string, err error) error {
	l.Warn(op+"_error", "status", 400, "reason", reason, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, reason)
}

func paramID(c echo.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}
