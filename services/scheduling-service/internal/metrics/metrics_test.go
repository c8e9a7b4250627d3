package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Booking("ok")
	m.SlotQuery(time.Millisecond)
	m.EmitFailure("x")
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New("salonbook")
	m.Booking("ok")
	m.Booking("slot_unavailable")
	m.CommitConflict()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	if !strings.Contains(out, `salonbook_bookings_total{outcome="ok"} 1`) {
		t.Fatalf("missing booking counter in:\n%s", out)
	}
	if !strings.Contains(out, "salonbook_commit_conflicts_total 1") {
		t.Fatalf("missing conflict counter in:\n%s", out)
	}
}
