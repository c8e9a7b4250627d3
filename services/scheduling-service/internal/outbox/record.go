// Package outbox stores engine events in Postgres after the booking commit and relays
// them to Kafka, one topic per event type.
package outbox

import "time"

// Record is one row of outbox_events.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	TenantID      string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
