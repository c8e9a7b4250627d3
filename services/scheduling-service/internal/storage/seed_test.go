package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

const seedJSON = `{
  "staff": [
    {"tenant_id": "t1", "id": "s1", "salon_id": "salon-1", "timezone": "UTC"},
    {"tenant_id": "t1", "id": "s2", "salon_id": "salon-1", "status": "on_leave"}
  ],
  "services": [{"tenant_id": "t1", "id": "cut", "name": "Haircut", "duration_minutes": 30, "price": "25.00"}],
  "recurring": [
    {"tenant_id": "t1", "staff_id": "s1", "weekday": "Monday", "start": "09:00", "end": "17:00", "break_start": "13:00", "break_end": "14:00"}
  ],
  "overrides": [
    {"tenant_id": "t1", "staff_id": "s1", "date": "2024-06-17", "active": false}
  ],
  "time_off": [
    {"tenant_id": "t1", "id": "to-1", "staff_id": "s1", "type": "sick", "start_date": "2024-06-24", "end_date": "2024-06-24", "start_time": "09:00", "end_time": "12:00", "status": "approved"}
  ]
}`

func TestLoadSeed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	counts, err := m.LoadSeed(strings.NewReader(seedJSON))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if counts != (SeedCounts{Staff: 2, Services: 1, Recurring: 1, Overrides: 1, TimeOff: 1}) {
		t.Fatalf("unexpected counts %+v", counts)
	}

	s1, err := m.LoadStaff(ctx, "t1", "s1")
	if err != nil || s1.Status != model.EmploymentActive || s1.SalonID != "salon-1" || s1.Timezone != "UTC" {
		t.Fatalf("unexpected staff %+v err=%v", s1, err)
	}
	if s2, _ := m.LoadStaff(ctx, "t1", "s2"); s2.Status != model.EmploymentOnLeave {
		t.Fatalf("expected on_leave, got %s", s2.Status)
	}
	if svc, err := m.LoadService(ctx, "t1", "cut"); err != nil || svc.Duration() != 30*time.Minute {
		t.Fatalf("unexpected service %+v err=%v", svc, err)
	}

	cal, err := m.LoadWorkingCalendar(ctx, "t1", "s1", day)
	if err != nil || cal.Recurring == nil || cal.Recurring.Break == nil || cal.Recurring.Break.Start != calendar.NewClock(13, 0) {
		t.Fatalf("unexpected monday calendar %+v err=%v", cal, err)
	}
	cal, _ = m.LoadWorkingCalendar(ctx, "t1", "s1", day.AddDays(7))
	if cal.Override == nil || cal.Override.Active {
		t.Fatalf("expected a day-off override, got %+v", cal.Override)
	}
	cal, _ = m.LoadWorkingCalendar(ctx, "t1", "s1", day.AddDays(14))
	if len(cal.TimeOff) != 1 || cal.TimeOff[0].Status != calendar.ApprovalApproved || cal.TimeOff[0].EndClock == nil || *cal.TimeOff[0].EndClock != calendar.NewClock(12, 0) {
		t.Fatalf("unexpected time off %+v", cal.TimeOff)
	}
}

func TestLoadSeedRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"staf": []}`,
		"break past closing": `{"recurring": [{"tenant_id": "t1", "staff_id": "s1", "weekday": "monday",
			"start": "09:00", "end": "12:00", "break_start": "11:00", "break_end": "15:00"}]}`,
		"bad weekday":   `{"recurring": [{"tenant_id": "t1", "staff_id": "s1", "weekday": "funday", "start": "09:00", "end": "12:00"}]}`,
		"bad clock":     `{"recurring": [{"tenant_id": "t1", "staff_id": "s1", "weekday": "monday", "start": "09:00xyz", "end": "12:00"}]}`,
		"zero duration": `{"services": [{"tenant_id": "t1", "id": "cut", "duration_minutes": 0}]}`,
		"bad timezone":  `{"staff": [{"tenant_id": "t1", "id": "s1", "timezone": "Mars/Olympus"}]}`,
		"reversed time off": `{"time_off": [{"tenant_id": "t1", "staff_id": "s1",
			"start_date": "2024-06-12", "end_date": "2024-06-10"}]}`,
	}
	for name, doc := range cases {
		if _, err := NewMemory().LoadSeed(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := NewMemory().LoadSeed(strings.NewReader(cases["break past closing"]))
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestLoadSeedFile_Example(t *testing.T) {
	counts, err := NewMemory().LoadSeedFile("../../seed.example.json")
	if err != nil {
		t.Fatalf("example seed: %v", err)
	}
	if counts.Staff == 0 || counts.Services == 0 || counts.Recurring == 0 {
		t.Fatalf("example seed looks empty: %+v", counts)
	}
	if _, err := NewMemory().LoadSeedFile("does-not-exist.json"); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
