package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/service"
)

type ChatHTTP struct {
	Svc *service.ChatService
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *ChatHTTP) GetMessages(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "chat.get_messages")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "get_messages", "invalid order id", err)
	}
	msgs, err := h.Svc.History(ctx, auth.PrincipalFrom(c), id)
	if err != nil {
		return fail(l, "get_messages", err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *ChatHTTP) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "chat.send_message")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "send_message", "invalid order id", err)
	}
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "send_message", "invalid body", err)
	}
	m, err := h.Svc.Send(ctx, auth.PrincipalFrom(c), id, req.Message)
	if err != nil {
		return fail(l, "send_message", err)
	}
	l.Info("send_message_success", "order_id", id, "message_id", m.ID)
	return c.JSON(http.StatusCreated, m)
}

// Stream replays the thread history and then follows new messages. Every
// message is delivered once, in the order the server accepted them.
func (h *ChatHTTP) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "chat.stream")

	id, err := paramID(c, "id")
	if err != nil {
		return badRequest(l, "chat_stream", "invalid order id", err)
	}
	th, err := h.Svc.Open(ctx, auth.PrincipalFrom(c), id)
	if err != nil {
		return fail(l, "chat_stream", err)
	}
	defer th.Close()

	s := openStream(c)
	for _, m := range th.History {
		if err := s.send("message", m.ID.String(), m); err != nil {
			return nil
		}
	}
	if err := s.send("ready", "", map[string]int{"history": len(th.History)}); err != nil {
		return nil
	}

	t := time.NewTicker(heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.ping(); err != nil {
				return nil
			}
		case m, ok := <-th.C:
			if !ok {
				if err := th.Err(); err != nil {
					l.Warn("chat_stream_dropped", "order_id", id, "error", err)
					_ = s.send("error", "", map[string]string{"error": err.Error()})
				}
				return nil
			}
			if err := s.send("message", m.ID.String(), m); err != nil {
				return nil
			}
		}
	}
}
