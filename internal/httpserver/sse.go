package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/realtime"
)

var heartbeat = 20 * time.Second

type eventStream struct {
	w *echo.Response
}

func openStream(c echo.Context) *eventStream {
	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	return &eventStream{w: w}
}

func (s *eventStream) send(event, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func (s *eventStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// relay forwards hub events until the client leaves or the subscription
// ends. A subscription dropped for falling behind gets a final error event so
// the client knows to reconnect.
func (s *eventStream) relay(ctx context.Context, sub *realtime.Subscription) error {
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
		case e, ok := <-sub.C:
			if !ok {
				if err := sub.Err(); err != nil {
					_ = s.send("error", "", map[string]string{"error": err.Error()})
				}
				return nil
			}
			if err := s.send(string(e.Kind), e.Key, e); err != nil {
				return nil
			}
		}
	}
}
