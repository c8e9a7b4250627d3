package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
)

type SchedulingHandler struct {
	coord  *booking.Coordinator
	logger *slog.Logger
}

func NewSchedulingHandler(coord *booking.Coordinator, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{coord: coord, logger: logger}
}

// Register mounts the scheduling API on mux.
func (h *SchedulingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/slots", h.Slots)
	mux.HandleFunc("GET /api/v1/conflicts", h.Conflicts)
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("POST /api/v1/appointments", h.Book)
	mux.HandleFunc("POST /api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("POST /api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("POST /api/v1/appointments/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/v1/appointments/reminder-sent", h.ReminderSent)
	mux.HandleFunc("POST /api/v1/holds", h.PlaceHold)
	mux.HandleFunc("POST /api/v1/time-off/approve", h.ApproveTimeOff)
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	CustomerID    string `json:"customer_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	ReminderSent  bool   `json:"reminder_sent"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	Version       int    `json:"version"`
}

func toResponse(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		AppointmentID: a.ID,
		StaffID:       a.StaffID,
		ServiceID:     a.ServiceID,
		CustomerID:    a.CustomerID,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		ReminderSent:  a.ReminderSent,
		CancelReason:  a.CancelReason,
		Version:       a.Version,
	}
	if a.CancelledAt != nil {
		out.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return out
}

type slotsResponse struct {
	StaffID   string   `json:"staff_id"`
	Date      string   `json:"date"`
	ServiceID string   `json:"service_id"`
	Slots     []string `json:"slots"`
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := calendar.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), "date must be YYYY-MM-DD")
		return
	}
	staffID := strings.TrimSpace(q.Get("staff_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))

	slots, err := h.coord.GetAvailableSlots(r.Context(), tenantID, staffID, date, serviceID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	out := slotsResponse{StaffID: staffID, Date: date.String(), ServiceID: serviceID, Slots: make([]string, 0, len(slots))}
	for _, s := range slots {
		out.Slots = append(out.Slots, s.UTC().Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type conflictResponse struct {
	Conflict bool   `json:"conflict"`
	Reason   string `json:"reason,omitempty"`
	WithID   string `json:"with_id,omitempty"`
}

func (h *SchedulingHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, err1 := time.Parse(time.RFC3339, q.Get("start"))
	end, err2 := time.Parse(time.RFC3339, q.Get("end"))
	if err1 != nil || err2 != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), "start and end must be RFC3339")
		return
	}
	res, err := h.coord.GetConflict(r.Context(), tenantID, strings.TrimSpace(q.Get("staff_id")), start, end, strings.TrimSpace(q.Get("exclude_id")))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, conflictResponse{Conflict: res.Conflict, Reason: string(res.Reason), WithID: res.WithID})
}

type bookRequest struct {
	StaffID    string `json:"staff_id"`
	ServiceID  string `json:"service_id"`
	CustomerID string `json:"customer_id"`
	StartTime  string `json:"start_time"`
}

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	start, ok := parseTime(w, "start_time", req.StartTime)
	if !ok {
		return
	}
	appt, err := h.coord.Book(r.Context(), booking.BookRequest{
		TenantID:       tenantID,
		StaffID:        strings.TrimSpace(req.StaffID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		CustomerID:     strings.TrimSpace(req.CustomerID),
		Start:          start,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id"`
	StartTime     string `json:"start_time"`
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	start, ok := parseTime(w, "start_time", req.StartTime)
	if !ok {
		return
	}
	appt, err := h.coord.Reschedule(r.Context(), booking.RescheduleRequest{
		TenantID:      tenantID,
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		NewStaffID:    strings.TrimSpace(req.StaffID),
		NewStart:      start,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.coord.Cancel(r.Context(), tenantID, strings.TrimSpace(req.AppointmentID), req.Reason)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Event         string `json:"event"`
}

func (h *SchedulingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.coord.UpdateStatus(r.Context(), tenantID, strings.TrimSpace(req.AppointmentID), lifecycle.Event(strings.TrimSpace(req.Event)))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type reminderSentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *SchedulingHandler) ReminderSent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req reminderSentRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := h.coord.MarkReminderSent(r.Context(), tenantID, strings.TrimSpace(req.AppointmentID))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := storage.ListFilter{TenantID: tenantID, StaffID: strings.TrimSpace(q.Get("staff_id"))}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		if f.From, ok = parseTime(w, "from", raw); !ok {
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if f.To, ok = parseTime(w, "to", raw); !ok {
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Limit = n
		}
	}

	appts, err := h.coord.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type holdRequest struct {
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type holdResponse struct {
	HoldID    string `json:"hold_id"`
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
}

func (h *SchedulingHandler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req holdRequest
	if !decode(w, r, &req) {
		return
	}
	start, ok := parseTime(w, "start_time", req.StartTime)
	if !ok {
		return
	}
	end, ok := parseTime(w, "end_time", req.EndTime)
	if !ok {
		return
	}
	hold, err := h.coord.PlaceHold(r.Context(), booking.HoldRequest{
		TenantID: tenantID,
		StaffID:  strings.TrimSpace(req.StaffID),
		Start:    start,
		End:      end,
		Reason:   req.Reason,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, holdResponse{
		HoldID:    hold.ID,
		StaffID:   hold.StaffID,
		StartTime: hold.StartTime.UTC().Format(time.RFC3339),
		EndTime:   hold.EndTime.UTC().Format(time.RFC3339),
		Reason:    hold.Reason,
	})
}

type approveTimeOffRequest struct {
	TimeOffID string `json:"time_off_id"`
}

func (h *SchedulingHandler) ApproveTimeOff(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req approveTimeOffRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.coord.ApproveTimeOff(r.Context(), tenantID, strings.TrimSpace(req.TimeOffID))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"time_off_id": p.ID,
		"staff_id":    p.StaffID,
		"start_date":  p.StartDate.String(),
		"end_date":    p.EndDate.String(),
		"status":      string(p.Status),
	})
}

// statusFor maps error kinds onto HTTP statuses.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindSlotUnavailable, apperr.KindConcurrentConflict, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *SchedulingHandler) writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	var typed *apperr.Error
	if errors.As(err, &typed) && typed.Message != "" {
		msg = typed.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("scheduling request failed", "err", err)
		msg = "scheduling temporarily unavailable"
	}
	httpx.WriteError(w, status, string(kind), msg)
}

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := httpx.TenantFromRequest(r)
	if tenantID == "" {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), httpx.TenantHeader+" header required")
		return "", false
	}
	return tenantID, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), "invalid json body")
		return false
	}
	return true
}

func parseTime(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), field+" must be RFC3339")
		return time.Time{}, false
	}
	return t, true
}
