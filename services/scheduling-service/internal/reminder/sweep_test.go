package reminder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
)

func TestRunOnce_MarksDueAppointmentsOnce(t *testing.T) {
	monday := calendar.NewDate(2024, time.June, 10)
	at := func(d calendar.Date, h int) time.Time { return d.At(calendar.NewClock(h, 0), time.UTC) }
	now := at(monday, 8)

	store := storage.NewMemory()
	for _, d := range []calendar.Date{monday, monday.AddDays(1)} {
		err := store.PutRecurring("t1", calendar.RecurringAvailability{
			StaffID:  "s1",
			Weekday:  d.Weekday(),
			DayHours: calendar.DayHours{Start: calendar.NewClock(9, 0), End: calendar.NewClock(17, 0)},
		})
		if err != nil {
			t.Fatalf("put recurring: %v", err)
		}
	}
	store.PutStaff(model.StaffMember{ID: "s1", TenantID: "t1", Status: model.EmploymentActive})
	store.PutService(model.Service{ID: "cut", TenantID: "t1", DurationMinutes: 30})

	sink := &events.Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := booking.NewCoordinator(booking.Deps{Store: store, Sink: sink, Logger: logger, Now: func() time.Time { return now }}, booking.Config{})

	book := func(start time.Time) model.Appointment {
		a, err := coord.Book(context.Background(), booking.BookRequest{TenantID: "t1", StaffID: "s1", ServiceID: "cut", CustomerID: "c", Start: start})
		if err != nil {
			t.Fatalf("book: %v", err)
		}
		return a
	}
	soon := book(at(monday, 10))
	tomorrow := book(at(monday.AddDays(1), 9))

	s := NewSweeper(coord, logger, nil, Config{Window: 24 * time.Hour, BatchSize: 1})
	s.now = func() time.Time { return now }

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	due := sink.OfType(events.TypeReminderDue)
	if len(due) != 1 {
		t.Fatalf("expected one reminder.due, got %d", len(due))
	}
	got, _ := store.GetAppointment(context.Background(), "t1", soon.ID)
	if !got.ReminderSent {
		t.Fatal("appointment within the window should be marked")
	}
	later, _ := store.GetAppointment(context.Background(), "t1", tomorrow.ID)
	if later.ReminderSent {
		t.Fatal("appointment outside the window must not be marked")
	}
}
