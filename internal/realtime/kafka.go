package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a single topic. The hash balancer keeps all
// events of one order on one partition so consumers see them in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            5,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network string, address string) (net.Conn, error) {
				dialer := &kafka.Dialer{
					Timeout:   10 * time.Second,
					DualStack: true,
					KeepAlive: 30 * time.Second,
				}
				return dialer.DialContext(ctx, network, address)
			},
		},
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.partitionKey()),
		Value: data,
		Time:  e.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s event: %w", e.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaRelay consumes the change topic and republishes every event on the
// local hub. Each instance joins its own consumer group so it sees every
// partition.
type KafkaRelay struct {
	reader *kafka.Reader
	hub    *Hub
	log    *slog.Logger
}

// RelayGroupID names the consumer group of one instance. The name is stable
// across restarts, so the broker holds one group per instance rather than
// one per process start.
func RelayGroupID(service, instance string) string {
	return service + "-relay-" + instance
}

func NewKafkaRelay(brokers []string, topic, groupID string, hub *Hub, log *slog.Logger) *KafkaRelay {
	return &KafkaRelay{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     250 * time.Millisecond,
		}),
		hub: hub,
		log: log,
	}
}

// Run blocks until ctx is cancelled.
func (r *KafkaRelay) Run(ctx context.Context) error {
	defer r.reader.Close()
	for {
		m, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: read: %w", err)
		}

		var e Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			r.log.Warn("kafka_relay_decode_error", "err", err, "offset", m.Offset, "partition", m.Partition)
			continue
		}
		if err := r.hub.Publish(ctx, e); err != nil {
			if errors.Is(err, ErrHubClosed) {
				return nil
			}
			return err
		}
	}
}
