package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

var day = calendar.NewDate(2024, time.June, 10)

func at(h, m int) time.Time { return day.At(calendar.NewClock(h, m), time.UTC) }

func newAppt(staff string, h1, m1, h2, m2 int) model.Appointment {
	return model.Appointment{
		TenantID:   "t1",
		StaffID:    staff,
		ServiceID:  "svc",
		CustomerID: "cust",
		StartTime:  at(h1, m1),
		EndTime:    at(h2, m2),
		Status:     model.StatusPending,
	}
}

func TestCommitAppointment_RechecksOverlap(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{ExpectNoConflict: true})
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if first.ID == "" || first.Version != 1 {
		t.Fatalf("expected id and version 1, got %+v", first)
	}

	if _, err := m.CommitAppointment(ctx, newAppt("s1", 10, 30, 11, 30), CommitOptions{ExpectNoConflict: true}); !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if _, err := m.CommitAppointment(ctx, newAppt("s1", 11, 0, 11, 30), CommitOptions{ExpectNoConflict: true}); err != nil {
		t.Fatalf("touching interval must commit: %v", err)
	}
	if _, err := m.CommitAppointment(ctx, newAppt("s2", 10, 0, 11, 0), CommitOptions{ExpectNoConflict: true}); err != nil {
		t.Fatalf("other staff must commit: %v", err)
	}
}

func TestCommitAppointment_VersionCheck(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, _ := m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{})

	a.Status = model.StatusConfirmed
	updated, err := m.CommitAppointment(ctx, a, CommitOptions{ExpectedVersion: 1})
	if err != nil || updated.Version != 2 {
		t.Fatalf("expected version 2, got %+v err=%v", updated, err)
	}
	if _, err := m.CommitAppointment(ctx, a, CommitOptions{ExpectedVersion: 1}); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	a.ID = "missing"
	if _, err := m.CommitAppointment(ctx, a, CommitOptions{ExpectedVersion: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommitAppointment_CancelledFreesInterval(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, _ := m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{ExpectNoConflict: true})
	a.Status = model.StatusCancelled
	if _, err := m.CommitAppointment(ctx, a, CommitOptions{ExpectedVersion: a.Version}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{ExpectNoConflict: true}); err != nil {
		t.Fatalf("slot should be free after cancel: %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := newAppt("s1", 10, 0, 11, 0)
	a.IdempotencyKey = "k1"
	stored, err := m.CommitAppointment(ctx, a, CommitOptions{})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := m.CommitAppointment(ctx, a, CommitOptions{}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	found, err := m.FindByIdempotencyKey(ctx, "t1", "k1")
	if err != nil || found.ID != stored.ID {
		t.Fatalf("expected %s, got %+v err=%v", stored.ID, found, err)
	}
	if _, err := m.FindByIdempotencyKey(ctx, "t2", "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("keys are tenant scoped, got %v", err)
	}
}

func TestMarkReminderSent_Once(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, _ := m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{})

	if _, changed, err := m.MarkReminderSent(ctx, "t1", a.ID); err != nil || !changed {
		t.Fatalf("first mark should change, changed=%v err=%v", changed, err)
	}
	if _, changed, err := m.MarkReminderSent(ctx, "t1", a.ID); err != nil || changed {
		t.Fatalf("second mark should be a no-op, changed=%v err=%v", changed, err)
	}
	if _, _, err := m.MarkReminderSent(ctx, "other", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant access must be not found, got %v", err)
	}
}

func TestMarkReminderSent_SkipsInactive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, st := range []model.Status{model.StatusCancelled, model.StatusCompleted, model.StatusNoShow} {
		appt := newAppt("s1", 10, 0, 11, 0)
		appt.Status = st
		a, err := m.CommitAppointment(ctx, appt, CommitOptions{})
		if err != nil {
			t.Fatalf("commit %s: %v", st, err)
		}
		got, changed, err := m.MarkReminderSent(ctx, "t1", a.ID)
		if err != nil || changed || got.ReminderSent || got.Version != a.Version {
			t.Fatalf("%s: expected untouched row, got %+v changed=%v err=%v", st, got, changed, err)
		}
	}
}

func TestListDueReminders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	due, _ := m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{})
	late, _ := m.CommitAppointment(ctx, newAppt("s1", 12, 0, 13, 0), CommitOptions{})
	sent, _ := m.CommitAppointment(ctx, newAppt("s2", 10, 0, 11, 0), CommitOptions{})
	_, _, _ = m.MarkReminderSent(ctx, "t1", sent.ID)

	got, err := m.ListDueReminders(ctx, at(9, 0), at(12, 0), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected only %s, got %+v (late=%s)", due.ID, got, late.ID)
	}
}

func TestPutRejectsInvalidSchedule(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	hours := calendar.DayHours{
		Start: calendar.NewClock(9, 0),
		End:   calendar.NewClock(12, 0),
		Break: &calendar.Break{Start: calendar.NewClock(11, 0), End: calendar.NewClock(15, 0)},
	}
	if err := m.PutRecurring("t1", calendar.RecurringAvailability{StaffID: "s1", Weekday: time.Monday, DayHours: hours}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for recurring rule, got %v", err)
	}
	if err := m.PutOverride("t1", calendar.DateOverride{StaffID: "s1", Date: day, Active: true, DayHours: hours}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for override, got %v", err)
	}
	if _, err := m.PutTimeOff("t1", calendar.TimeOffPeriod{StaffID: "s1", StartDate: day.AddDays(1), EndDate: day}); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for time off, got %v", err)
	}

	cal, err := m.LoadWorkingCalendar(ctx, "t1", "s1", day)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cal.Recurring != nil || cal.Override != nil || len(cal.TimeOff) != 0 {
		t.Fatalf("rejected rules must not be stored, got %+v", cal)
	}

	if err := m.PutOverride("t1", calendar.DateOverride{StaffID: "s1", Date: day}); err != nil {
		t.Fatalf("day-off override: %v", err)
	}
}

func TestApproveTimeOff(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first, err := m.PutTimeOff("t1", calendar.TimeOffPeriod{StaffID: "s1", StartDate: day, EndDate: day.AddDays(2), Status: calendar.ApprovalRequested})
	if err != nil {
		t.Fatalf("put first: %v", err)
	}
	second, err := m.PutTimeOff("t1", calendar.TimeOffPeriod{StaffID: "s1", StartDate: day.AddDays(2), EndDate: day.AddDays(4), Status: calendar.ApprovalRequested})
	if err != nil {
		t.Fatalf("put second: %v", err)
	}

	if _, err := m.ApproveTimeOff(ctx, "t1", first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := m.ApproveTimeOff(ctx, "t1", first.ID); !errors.Is(err, ErrTimeOffState) {
		t.Fatalf("expected ErrTimeOffState, got %v", err)
	}
	if _, err := m.ApproveTimeOff(ctx, "t1", second.ID); !errors.Is(err, ErrTimeOffOverlap) {
		t.Fatalf("expected ErrTimeOffOverlap, got %v", err)
	}
	if _, err := m.ApproveTimeOff(ctx, "t2", first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cal, _ := m.LoadWorkingCalendar(ctx, "t1", "s1", day.AddDays(1))
	if len(cal.TimeOff) != 1 || cal.TimeOff[0].Status != calendar.ApprovalApproved {
		t.Fatalf("expected the approved period on the calendar, got %+v", cal.TimeOff)
	}
}

func TestCreateBlockedInterval(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CommitAppointment(ctx, newAppt("s1", 10, 0, 11, 0), CommitOptions{})

	if _, err := m.CreateBlockedInterval(ctx, model.BlockedInterval{TenantID: "t1", StaffID: "s1", StartTime: at(10, 30), EndTime: at(11, 30)}); !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	hold, err := m.CreateBlockedInterval(ctx, model.BlockedInterval{TenantID: "t1", StaffID: "s1", StartTime: at(11, 0), EndTime: at(12, 0)})
	if err != nil || hold.ID == "" {
		t.Fatalf("hold: %+v err=%v", hold, err)
	}
	if _, err := m.CommitAppointment(ctx, newAppt("s1", 11, 30, 12, 30), CommitOptions{ExpectNoConflict: true}); !errors.Is(err, ErrOverlap) {
		t.Fatalf("holds must block commits, got %v", err)
	}
}
