package periodic

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAddRejectsBadSchedule(t *testing.T) {
	r := NewRunner(testLogger())
	if err := r.Add(context.Background(), "every now and then", "bad", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunExecutesTask(t *testing.T) {
	r := NewRunner(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	if err := r.Add(ctx, "@every 1s", "count", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for atomic.LoadInt32(&runs) == 0 {
		select {
		case <-deadline:
			t.Fatal("task never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
