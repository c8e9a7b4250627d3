// Package conflict decides whether a proposed interval for a staff member collides with
// existing bookings, manual holds, or falls outside the staff member's working windows.
package conflict

import (
	"context"
	"time"

	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Timeline reads what already occupies a staff member's calendar.
type Timeline interface {
	LoadActiveAppointments(ctx context.Context, tenantID, staffID string, within calendar.Interval) ([]model.Appointment, error)
	LoadBlockedIntervals(ctx context.Context, tenantID, staffID string, within calendar.Interval) ([]model.BlockedInterval, error)
}

type WindowResolver interface {
	ResolveWorkingWindows(ctx context.Context, staff model.StaffMember, date calendar.Date) (calendar.Windows, error)
}

type Reason string

const (
	ReasonOutsideWorkingHours Reason = "outside_working_hours"
	ReasonAppointmentOverlap  Reason = "appointment_overlap"
	ReasonBlockedInterval     Reason = "blocked_interval"
)

type Result struct {
	Conflict bool
	Reason   Reason
	// WithID names the appointment or hold that collides, when there is one.
	WithID string
}

// Snapshot is one staff member's day: working windows plus everything occupying it.
type Snapshot struct {
	Date         calendar.Date
	Windows      calendar.Windows
	Appointments []model.Appointment
	Blocks       []model.BlockedInterval
}

// Busy returns the occupied intervals, leaving out excludeID.
func (s Snapshot) Busy(excludeID string) []calendar.Interval {
	out := make([]calendar.Interval, 0, len(s.Appointments)+len(s.Blocks))
	for _, a := range s.Appointments {
		if a.ID == excludeID || !a.Status.Active() {
			continue
		}
		out = append(out, a.Interval())
	}
	for _, b := range s.Blocks {
		out = append(out, b.Interval())
	}
	return out
}

type Detector struct {
	resolver WindowResolver
	timeline Timeline
}

func NewDetector(resolver WindowResolver, timeline Timeline) *Detector {
	return &Detector{resolver: resolver, timeline: timeline}
}

// HasConflict reports whether [start, end) cannot be booked for staff. Malformed
// intervals are a validation error, not a conflict.
func (d *Detector) HasConflict(ctx context.Context, staff model.StaffMember, start, end time.Time, excludeAppointmentID string) (bool, error) {
	res, err := d.Check(ctx, staff, calendar.Interval{Start: start, End: end}, excludeAppointmentID)
	if err != nil {
		return false, err
	}
	return res.Conflict, nil
}

// Check is HasConflict with the reason attached.
func (d *Detector) Check(ctx context.Context, staff model.StaffMember, iv calendar.Interval, excludeAppointmentID string) (Result, error) {
	ctx, span := otelx.Tracer("conflict").Start(ctx, "conflict.check",
		trace.WithAttributes(attribute.String("staff_id", staff.ID)),
	)
	defer span.End()

	loc, err := staff.Location()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindValidation, err, "staff timezone")
	}
	date, err := ValidateInterval(iv, loc)
	if err != nil {
		return Result{}, err
	}
	snap, err := d.Snapshot(ctx, staff, date)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	res := Evaluate(snap, iv, excludeAppointmentID)
	span.SetAttributes(attribute.Bool("conflict", res.Conflict))
	return res, nil
}

// Snapshot loads the working windows and occupancy for staff on date.
func (d *Detector) Snapshot(ctx context.Context, staff model.StaffMember, date calendar.Date) (Snapshot, error) {
	loc, err := staff.Location()
	if err != nil {
		return Snapshot{}, apperr.Wrap(apperr.KindValidation, err, "staff timezone")
	}
	windows, err := d.resolver.ResolveWorkingWindows(ctx, staff, date)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Date: date, Windows: windows}
	if len(windows) == 0 {
		return snap, nil
	}

	day := date.Bounds(loc)
	snap.Appointments, err = d.timeline.LoadActiveAppointments(ctx, staff.TenantID, staff.ID, day)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Blocks, err = d.timeline.LoadBlockedIntervals(ctx, staff.TenantID, staff.ID, day)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ValidateInterval rejects empty, inverted and midnight-crossing intervals and returns
// the local date the interval belongs to. An interval may end exactly at midnight.
func ValidateInterval(iv calendar.Interval, loc *time.Location) (calendar.Date, error) {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return calendar.Date{}, apperr.Validation("start and end are required")
	}
	if !iv.Valid() {
		return calendar.Date{}, apperr.Validation("end must be after start")
	}
	date := calendar.DateOf(iv.Start, loc)
	if iv.End.After(date.Bounds(loc).End) {
		return calendar.Date{}, apperr.Validation("appointments may not cross midnight")
	}
	return date, nil
}

// Evaluate is the pure decision over a loaded snapshot.
func Evaluate(snap Snapshot, iv calendar.Interval, excludeAppointmentID string) Result {
	if !snap.Windows.Contains(iv) {
		return Result{Conflict: true, Reason: ReasonOutsideWorkingHours}
	}
	for _, a := range snap.Appointments {
		if a.ID == excludeAppointmentID || !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(iv) {
			return Result{Conflict: true, Reason: ReasonAppointmentOverlap, WithID: a.ID}
		}
	}
	for _, b := range snap.Blocks {
		if b.Interval().Overlaps(iv) {
			return Result{Conflict: true, Reason: ReasonBlockedInterval, WithID: b.ID}
		}
	}
	return Result{}
}
