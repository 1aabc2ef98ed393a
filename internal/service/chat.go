package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
)

const MaxMessageLength = 4000

// ChatService is the per-order message thread between a customer and the
// moderators. Messages are append-only.
type ChatService struct {
	Repo   *repo.GormRepo
	Events realtime.Publisher
	Hub    *realtime.Hub

	// threads orders insert and publish within one order so live delivery
	// follows creation time; other orders are not held up.
	threads keyedMutex

	clock sync.Mutex
	last  time.Time
}

// tick returns a strictly increasing timestamp at microsecond precision,
// the finest postgres keeps.
func (s *ChatService) tick() time.Time {
	s.clock.Lock()
	defer s.clock.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*refMutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (s *ChatService) participantOrder(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if !p.CanSee(order.UserID) {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	return order, nil
}

func (s *ChatService) Send(ctx context.Context, p auth.Principal, orderID uuid.UUID, text string) (*models.OrderMessage, error) {
	l := logging.FromContext(ctx).With("svc", "chat.send", "order_id", orderID)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrValidation, MaxMessageLength)
	}

	order, err := s.participantOrder(ctx, p, orderID)
	if err != nil {
		return nil, err
	}

	unlock := s.threads.lock(orderID)
	defer unlock()

	msg := models.OrderMessage{
		OrderID:   orderID,
		UserID:    p.UserID,
		Message:   text,
		IsAdmin:   p.Can(auth.CapModerateOrders),
		CreatedAt: s.tick(),
	}
	if err := s.Repo.CreateMessage(ctx, &msg); err != nil {
		l.Error("send_message_error", "status", 500, "error", err)
		return nil, err
	}

	ev, err := realtime.NewEvent(realtime.TopicMessages, realtime.KindInsert, msg.ID.String(), msg)
	if err == nil {
		err = s.Events.Publish(ctx, ev.WithScope(orderID.String()).WithOwner(order.UserID.String()))
	}
	if err != nil {
		l.Warn("send_message_publish_error", "error", err)
	}
	return &msg, nil
}

func (s *ChatService) History(ctx context.Context, p auth.Principal, orderID uuid.UUID) ([]models.OrderMessage, error) {
	if _, err := s.participantOrder(ctx, p, orderID); err != nil {
		return nil, err
	}
	return s.Repo.ListMessages(ctx, orderID)
}

// Thread is an open view of one order's chat: the history at open time
// followed by every later message exactly once. Close must be called.
type Thread struct {
	History []models.OrderMessage
	C       <-chan models.OrderMessage

	sub  *realtime.Subscription
	done chan struct{}
	once sync.Once
}

// Open subscribes before reading the history so no message can fall between
// the two; live events already present in the history are dropped.
func (s *ChatService) Open(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*Thread, error) {
	if _, err := s.participantOrder(ctx, p, orderID); err != nil {
		return nil, err
	}

	scope := orderID.String()
	sub := s.Hub.Subscribe(realtime.TopicMessages, func(e realtime.Event) bool {
		return e.Scope == scope && e.Kind == realtime.KindInsert
	})

	history, err := s.Repo.ListMessages(ctx, orderID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(history))
	for _, m := range history {
		seen[m.ID] = struct{}{}
	}

	out := make(chan models.OrderMessage, realtime.DefaultBuffer)
	t := &Thread{History: history, C: out, sub: sub, done: make(chan struct{})}
	go t.forward(ctx, seen, out)
	return t, nil
}

func (t *Thread) forward(ctx context.Context, seen map[uuid.UUID]struct{}, out chan<- models.OrderMessage) {
	defer close(out)
	for {
		select {
		case <-t.done:
			return
		case e, ok := <-t.sub.C:
			if !ok {
				return
			}
			var m models.OrderMessage
			if err := e.Decode(&m); err != nil {
				logging.FromContext(ctx).Warn("chat_event_decode_error", "error", err)
				continue
			}
			if _, dup := seen[m.ID]; dup {
				delete(seen, m.ID)
				continue
			}
			select {
			case out <- m:
			case <-t.done:
				return
			}
		}
	}
}

// Err reports why the live stream ended early, for example because the
// reader fell behind.
func (t *Thread) Err() error {
	return t.sub.Err()
}

func (t *Thread) Close() {
	t.once.Do(func() {
		close(t.done)
		t.sub.Close()
	})
}
