package realtime

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrSlowSubscriber = errors.New("subscriber fell behind")
	ErrHubClosed      = errors.New("hub closed")
)

const DefaultBuffer = 64

type Matcher func(Event) bool

func MatchAll(Event) bool { return true }

// Hub fans events out to in-process subscribers. Publishing never blocks: a
// subscriber whose buffer is full is dropped and its channel closed with
// ErrSlowSubscriber. Events published by one goroutine reach every
// subscriber in publish order.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

type Subscription struct {
	C <-chan Event

	ch    chan Event
	hub   *Hub
	topic string
	match Matcher

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (h *Hub) Subscribe(topic string, match Matcher) *Subscription {
	if match == nil {
		match = MatchAll
	}
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h, topic: topic, match: match}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.finish(ErrHubClosed)
		return s
	}
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	return s
}

func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	for s := range h.subs[e.Topic] {
		if !s.match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			delete(h.subs[e.Topic], s)
			s.finish(ErrSlowSubscriber)
		}
	}
	return nil
}

// Close ends every subscription with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subs {
		for s := range set {
			s.finish(ErrHubClosed)
		}
		delete(h.subs, topic)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.topic]; ok {
		if _, ok := set[s]; ok {
			delete(set, s)
			s.finish(nil)
		}
	}
}

// finish is called with h.mu held.
func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Err reports why C was closed; nil after a plain Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
