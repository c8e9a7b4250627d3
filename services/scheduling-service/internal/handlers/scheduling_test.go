package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	store := storage.NewMemory()
	store.PutStaff(model.StaffMember{ID: "s1", TenantID: "t1", Status: model.EmploymentActive})
	store.PutService(model.Service{ID: "cut", TenantID: "t1", DurationMinutes: 30})
	err := store.PutRecurring("t1", calendar.RecurringAvailability{
		StaffID:  "s1",
		Weekday:  time.Monday,
		DayHours: calendar.DayHours{Start: calendar.NewClock(9, 0), End: calendar.NewClock(12, 0)},
	})
	if err != nil {
		t.Fatalf("put recurring: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2024, time.June, 9, 12, 0, 0, 0, time.UTC)
	coord := booking.NewCoordinator(booking.Deps{
		Store:  store,
		Sink:   &events.Recorder{},
		Logger: logger,
		Now:    func() time.Time { return now },
	}, booking.Config{})

	mux := http.NewServeMux()
	NewSchedulingHandler(coord, logger).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set(httpx.TenantHeader, "t1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestBookAndSlots(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", bookRequest{
		StaffID: "s1", ServiceID: "cut", CustomerID: "c1", StartTime: "2024-06-10T09:00:00Z",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var appt appointmentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &appt)
	if appt.AppointmentID == "" || appt.Status != "pending" || appt.EndTime != "2024-06-10T09:30:00Z" {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/slots?staff_id=s1&service_id=cut&date=2024-06-10", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var slots slotsResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &slots)
	if len(slots.Slots) == 0 || slots.Slots[0] != "2024-06-10T09:30:00Z" {
		t.Fatalf("unexpected slots %v", slots.Slots)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/conflicts?staff_id=s1&start=2024-06-10T09:15:00Z&end=2024-06-10T09:45:00Z", nil, nil)
	var c conflictResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &c)
	if !c.Conflict || c.Reason != "appointment_overlap" || c.WithID != appt.AppointmentID {
		t.Fatalf("unexpected conflict %+v", c)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newServer(t)
	book := bookRequest{StaffID: "s1", ServiceID: "cut", CustomerID: "c1", StartTime: "2024-06-10T09:00:00Z"}
	if rec := do(t, h, http.MethodPost, "/api/v1/appointments", book, nil); rec.Code != http.StatusCreated {
		t.Fatalf("seed booking failed: %d", rec.Code)
	}

	cases := []struct {
		name   string
		method string
		target string
		body   any
		status int
		code   string
	}{
		{"slot taken", http.MethodPost, "/api/v1/appointments", book, http.StatusConflict, "slot_unavailable"},
		{"bad time", http.MethodPost, "/api/v1/appointments", bookRequest{StaffID: "s1", ServiceID: "cut", CustomerID: "c1", StartTime: "tomorrow"}, http.StatusBadRequest, "validation_error"},
		{"unknown staff", http.MethodPost, "/api/v1/appointments", bookRequest{StaffID: "nobody", ServiceID: "cut", CustomerID: "c1", StartTime: "2024-06-10T10:00:00Z"}, http.StatusNotFound, "not_found"},
		{"unknown appointment", http.MethodPost, "/api/v1/appointments/cancel", cancelRequest{AppointmentID: "missing"}, http.StatusNotFound, "not_found"},
		{"bad date", http.MethodGet, "/api/v1/slots?staff_id=s1&service_id=cut&date=10/06/2024", nil, http.StatusBadRequest, "validation_error"},
	}
	for _, c := range cases {
		rec := do(t, h, c.method, c.target, c.body, nil)
		if rec.Code != c.status {
			t.Fatalf("%s: expected %d, got %d: %s", c.name, c.status, rec.Code, rec.Body.String())
		}
		if body := decodeError(t, rec); body.Code != c.code {
			t.Fatalf("%s: expected code %s, got %+v", c.name, c.code, body)
		}
	}
}

func TestCancelTwiceIsInvalidTransition(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/appointments", bookRequest{StaffID: "s1", ServiceID: "cut", CustomerID: "c1", StartTime: "2024-06-10T10:00:00Z"}, nil)
	var appt appointmentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &appt)

	rec = do(t, h, http.MethodPost, "/api/v1/appointments/cancel", cancelRequest{AppointmentID: appt.AppointmentID, Reason: "ill"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/appointments/cancel", cancelRequest{AppointmentID: appt.AppointmentID}, nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyKeyHeader(t *testing.T) {
	h := newServer(t)
	body := bookRequest{StaffID: "s1", ServiceID: "cut", CustomerID: "c1", StartTime: "2024-06-10T11:00:00Z"}
	hdr := map[string]string{"Idempotency-Key": "abc"}

	var first, second appointmentResponse
	_ = json.Unmarshal(do(t, h, http.MethodPost, "/api/v1/appointments", body, hdr).Body.Bytes(), &first)
	rec := do(t, h, http.MethodPost, "/api/v1/appointments", body, hdr)
	if rec.Code != http.StatusCreated {
		t.Fatalf("replay should succeed, got %d %s", rec.Code, rec.Body.String())
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &second)
	if first.AppointmentID == "" || first.AppointmentID != second.AppointmentID {
		t.Fatalf("expected same appointment, got %q and %q", first.AppointmentID, second.AppointmentID)
	}
}

func TestMissingTenant(t *testing.T) {
	h := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant, got %d", rec.Code)
	}
}
