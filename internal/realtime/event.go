package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

const (
	TopicOrders   = "orders"
	TopicMessages = "order_messages"
	TopicSettings = "settings"
	TopicProducts = "products"
)

// Event is a change notification. Key identifies the changed row, Scope the
// parent it belongs to (the order of a chat message) and Owner the user the
// row is visible to besides moderators.
type Event struct {
	Topic   string          `json:"topic"`
	Kind    Kind            `json:"kind"`
	Key     string          `json:"key"`
	Scope   string          `json:"scope,omitempty"`
	Owner   string          `json:"owner,omitempty"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

func NewEvent(topic string, kind Kind, key string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", topic, err)
	}
	return Event{
		Topic:   topic,
		Kind:    kind,
		Key:     key,
		Payload: raw,
		At:      time.Now().UTC(),
	}, nil
}

func (e Event) WithScope(scope string) Event {
	e.Scope = scope
	return e
}

func (e Event) WithOwner(owner string) Event {
	e.Owner = owner
	return e
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// partitionKey keeps every event of one order on the same partition.
func (e Event) partitionKey() string {
	if e.Scope != "" {
		return e.Scope
	}
	return e.Key
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
