package calendar

import (
	"testing"
	"time"
)

var day = NewDate(2024, time.June, 10)

func at(h, m int) time.Time { return day.At(NewClock(h, m), time.UTC) }

func iv(h1, m1, h2, m2 int) Interval { return Interval{Start: at(h1, m1), End: at(h2, m2)} }

func TestOverlaps_HalfOpen(t *testing.T) {
	if iv(13, 0, 14, 0).Overlaps(iv(14, 0, 15, 0)) {
		t.Fatal("touching intervals must not overlap")
	}
	if !iv(13, 0, 14, 1).Overlaps(iv(14, 0, 15, 0)) {
		t.Fatal("expected overlap")
	}
}

func TestNewWindows_MergesTouchingAndOverlapping(t *testing.T) {
	w := NewWindows(iv(12, 0, 13, 0), iv(9, 0, 10, 0), iv(10, 0, 11, 0), iv(10, 30, 11, 30), iv(15, 0, 15, 0))
	if len(w) != 2 {
		t.Fatalf("expected 2 windows, got %d: %v", len(w), w)
	}
	if !w[0].Start.Equal(at(9, 0)) || !w[0].End.Equal(at(11, 30)) {
		t.Fatalf("unexpected first window %v", w[0])
	}
}

func TestSubtract(t *testing.T) {
	w := NewWindows(iv(9, 0, 17, 0))
	got := w.Subtract(iv(13, 0, 14, 0), iv(8, 0, 9, 30), iv(16, 30, 18, 0))
	want := Windows{iv(9, 30, 13, 0), iv(14, 0, 16, 30)}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("window %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if out := w.Subtract(iv(8, 0, 18, 0)); len(out) != 0 {
		t.Fatalf("expected nothing left, got %v", out)
	}
}

func TestIntersectAndContains(t *testing.T) {
	a := NewWindows(iv(9, 0, 12, 0), iv(13, 0, 17, 0))
	b := NewWindows(iv(11, 0, 14, 0))
	got := a.Intersect(b)
	if len(got) != 2 || !got[0].Start.Equal(at(11, 0)) || !got[1].End.Equal(at(14, 0)) {
		t.Fatalf("unexpected intersection %v", got)
	}

	if !a.Contains(iv(13, 0, 17, 0)) {
		t.Fatal("exact window should be contained")
	}
	if a.Contains(iv(11, 30, 13, 30)) {
		t.Fatal("interval spanning a gap must not be contained")
	}
	if a.Total() != 7*time.Hour {
		t.Fatalf("unexpected total %s", a.Total())
	}
}

func TestTimeOffIntervalOn_ClipsHalfDays(t *testing.T) {
	start := NewClock(12, 0)
	end := NewClock(10, 0)
	p := TimeOffPeriod{
		StartDate:  NewDate(2024, time.June, 10),
		EndDate:    NewDate(2024, time.June, 11),
		StartClock: &start,
		EndClock:   &end,
		Status:     ApprovalApproved,
	}

	first, ok := p.IntervalOn(NewDate(2024, time.June, 10), time.UTC)
	if !ok || !first.Start.Equal(at(12, 0)) || !first.End.Equal(NewDate(2024, time.June, 11).At(0, time.UTC)) {
		t.Fatalf("unexpected first day interval %v", first)
	}
	second, ok := p.IntervalOn(NewDate(2024, time.June, 11), time.UTC)
	if !ok || !second.End.Equal(NewDate(2024, time.June, 11).At(end, time.UTC)) {
		t.Fatalf("unexpected second day interval %v", second)
	}
	if _, ok := p.IntervalOn(NewDate(2024, time.June, 12), time.UTC); ok {
		t.Fatal("date outside the period must not produce an interval")
	}
}

func TestDayHoursValidate(t *testing.T) {
	ok := DayHours{Start: NewClock(9, 0), End: NewClock(17, 0), Break: &Break{Start: NewClock(13, 0), End: NewClock(14, 0)}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid hours: %v", err)
	}
	bad := DayHours{Start: NewClock(9, 0), End: NewClock(17, 0), Break: &Break{Start: NewClock(16, 0), End: NewClock(18, 0)}}
	if err := bad.Validate(); err == nil {
		t.Fatal("break outside hours must be rejected")
	}
	if err := (DayHours{Start: NewClock(10, 0), End: NewClock(10, 0)}).Validate(); err == nil {
		t.Fatal("empty hours must be rejected")
	}
}

func TestOverrideAndRecurringValidate(t *testing.T) {
	day := NewDate(2024, time.June, 10)
	badBreak := DayHours{Start: NewClock(9, 0), End: NewClock(12, 0), Break: &Break{Start: NewClock(11, 0), End: NewClock(15, 0)}}

	if err := (RecurringAvailability{StaffID: "s1", Weekday: time.Monday, DayHours: badBreak}).Validate(); err == nil {
		t.Fatal("recurring rule with a break past closing must be rejected")
	}
	if err := (RecurringAvailability{StaffID: "s1", Weekday: time.Weekday(7), DayHours: DayHours{Start: NewClock(9, 0), End: NewClock(12, 0)}}).Validate(); err == nil {
		t.Fatal("weekday 7 must be rejected")
	}
	if err := (DateOverride{StaffID: "s1", Date: day, Active: true, DayHours: badBreak}).Validate(); err == nil {
		t.Fatal("active override with a bad break must be rejected")
	}
	if err := (DateOverride{StaffID: "s1", Date: day}).Validate(); err != nil {
		t.Fatalf("inactive override is a day off and needs no hours: %v", err)
	}
	if err := (DateOverride{StaffID: "s1", Active: true, DayHours: DayHours{Start: NewClock(9, 0), End: NewClock(12, 0)}}).Validate(); err == nil {
		t.Fatal("override without a date must be rejected")
	}
}

func TestParseClockAndDate(t *testing.T) {
	c, err := ParseClock("24:00")
	if err != nil || c != EndOfDay {
		t.Fatalf("expected end of day, got %v err=%v", c, err)
	}
	for _, bad := range []string{"25:00", "09:00xyz", "09:60", "-1:00", "9", ""} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if c, err := ParseClock("09:30"); err != nil || c != NewClock(9, 30) {
		t.Fatalf("expected 09:30, got %v err=%v", c, err)
	}
	d, err := ParseDate("2024-06-10")
	if err != nil || d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %v err=%v", d.Weekday(), err)
	}
	if d.AddDays(21).String() != "2024-07-01" {
		t.Fatalf("unexpected date arithmetic: %s", d.AddDays(21))
	}
}
