package kafkax

import (
	"context"
	"testing"
)

func TestMessage_CarriesEnvelopeHeaders(t *testing.T) {
	msg := Message(context.Background(), Envelope{
		EventID:   "evt-1",
		EventType: "scheduling.appointment.created.v1",
		TenantID:  "tenant-1",
		Key:       "staff-1",
		Payload:   []byte(`{}`),
	})
	if msg.Topic != "scheduling.appointment.created.v1" || string(msg.Key) != "staff-1" {
		t.Fatalf("unexpected topic/key: %s %s", msg.Topic, msg.Key)
	}
	if HeaderValue(msg.Headers, "event_id") != "evt-1" || HeaderValue(msg.Headers, "tenant_id") != "tenant-1" {
		t.Fatalf("missing headers: %+v", msg.Headers)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
