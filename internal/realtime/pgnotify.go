package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const DefaultChannel = "storefront_changes"

// PGNotifyPublisher sends events through postgres NOTIFY. Payloads above the
// server limit of 8000 bytes are rejected by postgres.
type PGNotifyPublisher struct {
	DB      *sql.DB
	Channel string
}

func NewPGNotifyPublisher(db *sql.DB, channel string) *PGNotifyPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGNotifyPublisher{DB: db, Channel: channel}
}

func (p *PGNotifyPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("pg notify: encode: %w", err)
	}
	if _, err := p.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.Channel, string(data)); err != nil {
		return fmt.Errorf("pg notify %s: %w", e.Topic, err)
	}
	return nil
}

// PGRelay LISTENs on the channel and republishes notifications on the hub.
type PGRelay struct {
	dsn     string
	channel string
	hub     *Hub
	log     *slog.Logger
}

func NewPGRelay(dsn, channel string, hub *Hub, log *slog.Logger) *PGRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGRelay{dsn: dsn, channel: channel, hub: hub, log: log}
}

func (r *PGRelay) Run(ctx context.Context) error {
	listener := pq.NewListener(r.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			r.log.Warn("pg_listener_event", "event", int(ev), "err", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(r.channel); err != nil {
		return fmt.Errorf("pg listen %s: %w", r.channel, err)
	}

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost
			if n == nil {
				r.log.Warn("pg_listener_reconnected", "channel", r.channel)
				continue
			}
			var e Event
			if err := json.Unmarshal([]byte(n.Extra), &e); err != nil {
				r.log.Warn("pg_relay_decode_error", "err", err)
				continue
			}
			if err := r.hub.Publish(ctx, e); err != nil {
				if errors.Is(err, ErrHubClosed) {
					return nil
				}
				return err
			}
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					r.log.Warn("pg_listener_ping_error", "err", err)
				}
			}()
		}
	}
}
