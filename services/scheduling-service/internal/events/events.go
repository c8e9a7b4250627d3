// Package events defines the notifications the engine emits after a successful commit.
// Delivery is at-least-once; consumers dedupe on ID.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

const (
	TypeAppointmentCreated       = "scheduling.appointment.created.v1"
	TypeAppointmentCancelled     = "scheduling.appointment.cancelled.v1"
	TypeAppointmentRescheduled   = "scheduling.appointment.rescheduled.v1"
	TypeAppointmentStatusChanged = "scheduling.appointment.status_changed.v1"
	TypeReminderRequested        = "scheduling.reminder.requested.v1"
	TypeReminderDue              = "scheduling.reminder.due.v1"
)

// Event is the envelope. Payload is the JSON-encoded body for Type.
type Event struct {
	ID         string          `json:"event_id"`
	Type       string          `json:"event_type"`
	TenantID   string          `json:"tenant_id"`
	StaffID    string          `json:"staff_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// AppointmentPayload is shared by the appointment.* events.
type AppointmentPayload struct {
	AppointmentID  string     `json:"appointment_id"`
	SalonID        string     `json:"salon_id,omitempty"`
	StaffID        string     `json:"staff_id"`
	ServiceID      string     `json:"service_id"`
	CustomerID     string     `json:"customer_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         string     `json:"status"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	PreviousStaff  string     `json:"previous_staff_id,omitempty"`
	PreviousStart  *time.Time `json:"previous_start_time,omitempty"`
	PreviousEnd    *time.Time `json:"previous_end_time,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
}

type ReminderPayload struct {
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	StartTime     time.Time `json:"start_time"`
	RemindAt      time.Time `json:"remind_at"`
	OffsetMinutes int       `json:"offset_minutes,omitempty"`
}

// Sink receives events. Implementations must not block the caller for long.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

func New(eventType string, appt model.Appointment, payload any, now time.Time) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   appt.TenantID,
		StaffID:    appt.StaffID,
		OccurredAt: now.UTC(),
		Payload:    body,
	}, nil
}

func AppointmentBody(a model.Appointment) AppointmentPayload {
	return AppointmentPayload{
		AppointmentID: a.ID,
		SalonID:       a.SalonID,
		StaffID:       a.StaffID,
		ServiceID:     a.ServiceID,
		CustomerID:    a.CustomerID,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Status:        string(a.Status),
		CancelReason:  a.CancelReason,
	}
}

// Recorder keeps events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events with the given type, oldest first.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
