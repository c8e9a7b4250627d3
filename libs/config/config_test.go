package config

import (
	"testing"
	"time"
)

func TestInt_BoundsAndFallback(t *testing.T) {
	t.Setenv("SLOT_GRANULARITY_MINUTES", "")
	n, err := Int("SLOT_GRANULARITY_MINUTES", 15, 240)
	if err != nil || n != 15 {
		t.Fatalf("expected fallback 15, got %d err=%v", n, err)
	}

	t.Setenv("SLOT_GRANULARITY_MINUTES", "30")
	n, err = Int("SLOT_GRANULARITY_MINUTES", 15, 240)
	if err != nil || n != 30 {
		t.Fatalf("expected 30, got %d err=%v", n, err)
	}

	t.Setenv("SLOT_GRANULARITY_MINUTES", "0")
	if _, err := Int("SLOT_GRANULARITY_MINUTES", 15, 240); err == nil {
		t.Fatal("expected error for zero")
	}
	t.Setenv("SLOT_GRANULARITY_MINUTES", "500")
	if _, err := Int("SLOT_GRANULARITY_MINUTES", 15, 240); err == nil {
		t.Fatal("expected error above max")
	}
}

func TestMinutesAndDuration(t *testing.T) {
	t.Setenv("CHECKIN_GRACE_MINUTES", "20")
	d, err := Minutes("CHECKIN_GRACE_MINUTES", 15, 240)
	if err != nil || d != 20*time.Minute {
		t.Fatalf("expected 20m, got %s err=%v", d, err)
	}

	t.Setenv("LOCK_TTL", "bogus")
	if _, err := Duration("LOCK_TTL", time.Second); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBoolAndIntList(t *testing.T) {
	t.Setenv("AUTO_CONFIRM", "yes")
	if !Bool("AUTO_CONFIRM", false) {
		t.Fatal("expected true")
	}
	t.Setenv("AUTO_CONFIRM", "maybe")
	if Bool("AUTO_CONFIRM", false) {
		t.Fatal("expected fallback false for unknown value")
	}

	t.Setenv("REMINDER_OFFSETS_MINUTES", "1440, x, -5, 60")
	got := IntList("REMINDER_OFFSETS_MINUTES", "1440")
	if len(got) != 2 || got[0] != 1440 || got[1] != 60 {
		t.Fatalf("unexpected list: %v", got)
	}
}
