package kafkax

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Envelope is the canonical metadata carried on every message the engine publishes.
type Envelope struct {
	EventID   string
	EventType string
	TenantID  string
	Key       string
	Payload   []byte
}

// Message builds the kafka message for an envelope. The topic equals the event type and
// the key keeps a staff member's events on one partition.
func Message(ctx context.Context, env Envelope) kafka.Message {
	msg := kafka.Message{
		Topic: env.EventType,
		Key:   []byte(env.Key),
		Value: env.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "tenant_id", Value: []byte(env.TenantID)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
