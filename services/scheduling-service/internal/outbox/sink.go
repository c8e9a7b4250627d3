package outbox

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/events"
)

type inserter interface {
	Insert(ctx context.Context, rec Record) error
}

// Sink implements events.Sink by appending to the outbox table.
type Sink struct {
	repo inserter
}

func NewSink(repo *Repository) *Sink {
	return &Sink{repo: repo}
}

func (s *Sink) Publish(ctx context.Context, evt events.Event) error {
	rec, err := toRecord(evt)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, rec)
}

// toRecord keys records by staff so one staff member's events stay ordered on a
// single partition.
func toRecord(evt events.Event) (Record, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return Record{}, err
	}
	return Record{
		EventID:       evt.ID,
		AggregateType: "staff",
		AggregateID:   evt.StaffID,
		EventType:     evt.Type,
		TenantID:      evt.TenantID,
		Payload:       body,
	}, nil
}
