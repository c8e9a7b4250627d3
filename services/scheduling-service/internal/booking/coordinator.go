// Package booking is the write path of the engine. The Coordinator validates requests,
// serializes them per staff member, commits through the store and emits notifications
// once the commit has succeeded.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/locking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/schedule"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store is everything the coordinator reads and writes. *storage.Memory and
// *storage.Postgres both satisfy it.
type Store interface {
	schedule.Source
	conflict.Timeline

	LoadStaff(ctx context.Context, tenantID, staffID string) (model.StaffMember, error)
	LoadService(ctx context.Context, tenantID, serviceID string) (model.Service, error)
	GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Appointment, error)
	CommitAppointment(ctx context.Context, appt model.Appointment, opts storage.CommitOptions) (model.Appointment, error)
	MarkReminderSent(ctx context.Context, tenantID, id string) (model.Appointment, bool, error)
	ListAppointments(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
	ListDueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error)
	ApproveTimeOff(ctx context.Context, tenantID, id string) (calendar.TimeOffPeriod, error)
	CreateBlockedInterval(ctx context.Context, b model.BlockedInterval) (model.BlockedInterval, error)
}

type Config struct {
	Granularity  time.Duration
	CheckInGrace time.Duration
	// EmitTimeout bounds each post-commit notification hand-off.
	EmitTimeout time.Duration
}

type Deps struct {
	Store   Store
	Locker  locking.Locker
	Policy  policy.Provider
	Sink    events.Sink
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

type Coordinator struct {
	store    Store
	detector *conflict.Detector
	slots    *availability.Generator
	machine  lifecycle.Machine
	locker   locking.Locker
	policy   policy.Provider
	sink     events.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	emitTimeout time.Duration
}

func NewCoordinator(deps Deps, cfg Config) *Coordinator {
	if deps.Locker == nil {
		deps.Locker = locking.NewLocalLocker()
	}
	if deps.Policy == nil {
		deps.Policy = policy.NewStaticProvider(policy.Policy{})
	}
	if deps.Sink == nil {
		deps.Sink = &events.Recorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CheckInGrace == 0 {
		cfg.CheckInGrace = lifecycle.DefaultCheckInGrace
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 5 * time.Second
	}

	detector := conflict.NewDetector(schedule.NewResolver(deps.Store), deps.Store)
	return &Coordinator{
		store:       deps.Store,
		detector:    detector,
		slots:       availability.NewGenerator(detector, cfg.Granularity),
		machine:     lifecycle.New(cfg.CheckInGrace),
		locker:      deps.Locker,
		policy:      deps.Policy,
		sink:        deps.Sink,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		emitTimeout: cfg.EmitTimeout,
	}
}

func (c *Coordinator) Detector() *conflict.Detector { return c.detector }

type BookRequest struct {
	TenantID   string
	StaffID    string
	ServiceID  string
	CustomerID string
	Start      time.Time
	// IdempotencyKey makes retries of the same request return the first booking.
	IdempotencyKey string
}

func (r BookRequest) validate() error {
	switch {
	case r.TenantID == "":
		return apperr.Validation("tenant_id is required")
	case r.StaffID == "":
		return apperr.Validation("staff_id is required")
	case r.ServiceID == "":
		return apperr.Validation("service_id is required")
	case r.CustomerID == "":
		return apperr.Validation("customer_id is required")
	case r.Start.IsZero():
		return apperr.Validation("start_time is required")
	}
	return nil
}

// Book creates an appointment at req.Start for the service's duration.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (appt model.Appointment, err error) {
	ctx, span := otelx.Tracer("booking").Start(ctx, "booking.book", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("staff_id", req.StaffID),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			c.metrics.Booking(string(apperr.KindOf(err)))
			return
		}
		c.metrics.Booking("ok")
	}()

	if err := req.validate(); err != nil {
		return model.Appointment{}, err
	}
	if req.IdempotencyKey != "" {
		prior, err := c.store.FindByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
		if err == nil {
			c.logger.Info("idempotent book replay", "tenant_id", req.TenantID, "appointment_id", prior.ID)
			return prior, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, storeErr(err, "idempotency lookup")
		}
	}

	now := c.now()
	if req.Start.Before(now) {
		return model.Appointment{}, apperr.Validation("start_time %s is in the past", req.Start.Format(time.RFC3339))
	}
	staff, err := c.store.LoadStaff(ctx, req.TenantID, req.StaffID)
	if err != nil {
		return model.Appointment{}, storeErr(err, "staff %s", req.StaffID)
	}
	svc, err := c.store.LoadService(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		return model.Appointment{}, storeErr(err, "service %s", req.ServiceID)
	}
	if err := svc.Validate(); err != nil {
		return model.Appointment{}, apperr.Wrap(apperr.KindValidation, err, "service %s", svc.ID)
	}
	pol := c.bookingPolicy(ctx, req.TenantID)

	candidate := model.Appointment{
		TenantID:       req.TenantID,
		SalonID:        staff.SalonID,
		StaffID:        staff.ID,
		ServiceID:      svc.ID,
		CustomerID:     req.CustomerID,
		StartTime:      req.Start,
		EndTime:        req.Start.Add(svc.Duration()),
		Status:         model.StatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	if pol.AutoConfirm {
		candidate.Status = model.StatusConfirmed
	}

	unlock, err := c.lock(ctx, locking.StaffKey(req.TenantID, staff.ID))
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	if err := c.ensureFree(ctx, staff, candidate.Interval(), ""); err != nil {
		return model.Appointment{}, err
	}
	appt, err = c.store.CommitAppointment(ctx, candidate, storage.CommitOptions{ExpectNoConflict: true})
	if errors.Is(err, storage.ErrDuplicateKey) {
		if prior, ferr := c.store.FindByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey); ferr == nil {
			return prior, nil
		}
	}
	if err != nil {
		return model.Appointment{}, c.commitErr(err)
	}
	unlock()

	c.logger.Info("appointment booked",
		"tenant_id", appt.TenantID,
		"staff_id", appt.StaffID,
		"appointment_id", appt.ID,
		"start", appt.StartTime,
	)
	c.emitAppointment(ctx, events.TypeAppointmentCreated, appt, events.AppointmentBody(appt))
	c.requestReminders(ctx, appt, pol.ReminderOffsets)
	return appt, nil
}

type RescheduleRequest struct {
	TenantID      string
	AppointmentID string
	// NewStaffID moves the appointment to another staff member when set.
	NewStaffID string
	NewStart   time.Time
}

// Reschedule moves an active appointment, keeping its duration. The appointment's own
// current interval does not count as a conflict.
func (c *Coordinator) Reschedule(ctx context.Context, req RescheduleRequest) (model.Appointment, error) {
	ctx, span := otelx.Tracer("booking").Start(ctx, "booking.reschedule", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("appointment_id", req.AppointmentID),
	))
	defer span.End()

	if req.TenantID == "" || req.AppointmentID == "" {
		return model.Appointment{}, apperr.Validation("tenant_id and appointment_id are required")
	}
	if req.NewStart.IsZero() {
		return model.Appointment{}, apperr.Validation("new start_time is required")
	}
	now := c.now()
	if req.NewStart.Before(now) {
		return model.Appointment{}, apperr.Validation("new start_time %s is in the past", req.NewStart.Format(time.RFC3339))
	}

	current, err := c.store.GetAppointment(ctx, req.TenantID, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, storeErr(err, "appointment %s", req.AppointmentID)
	}
	targetID := current.StaffID
	if req.NewStaffID != "" {
		targetID = req.NewStaffID
	}
	target, err := c.store.LoadStaff(ctx, req.TenantID, targetID)
	if err != nil {
		return model.Appointment{}, storeErr(err, "staff %s", targetID)
	}

	lockedStaff := current.StaffID
	unlock, err := c.lock(ctx, locking.StaffKey(req.TenantID, lockedStaff), locking.StaffKey(req.TenantID, target.ID))
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	// Re-read under the lock so the version we check against is the latest.
	current, err = c.store.GetAppointment(ctx, req.TenantID, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, storeErr(err, "appointment %s", req.AppointmentID)
	}
	if current.StaffID != lockedStaff {
		return model.Appointment{}, apperr.New(apperr.KindConcurrentConflict,
			"appointment %s moved to staff %s while waiting for the lock", current.ID, current.StaffID)
	}
	next, err := c.machine.Apply(current, lifecycle.Transition{
		Event:      lifecycle.EventReschedule,
		NewStaffID: target.ID,
		NewSalonID: target.SalonID,
		NewStart:   req.NewStart,
		NewEnd:     req.NewStart.Add(current.EndTime.Sub(current.StartTime)),
	}, now)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := c.ensureFree(ctx, target, next.Interval(), current.ID); err != nil {
		return model.Appointment{}, err
	}
	saved, err := c.store.CommitAppointment(ctx, next, storage.CommitOptions{ExpectNoConflict: true, ExpectedVersion: current.Version})
	if err != nil {
		return model.Appointment{}, c.commitErr(err)
	}
	unlock()

	c.metrics.Transition(string(lifecycle.EventReschedule))
	c.logger.Info("appointment rescheduled",
		"tenant_id", saved.TenantID,
		"appointment_id", saved.ID,
		"staff_id", saved.StaffID,
		"previous_staff_id", current.StaffID,
		"start", saved.StartTime,
	)
	body := events.AppointmentBody(saved)
	body.PreviousStaff = current.StaffID
	body.PreviousStart = &current.StartTime
	body.PreviousEnd = &current.EndTime
	c.emitAppointment(ctx, events.TypeAppointmentRescheduled, saved, body)
	c.requestReminders(ctx, saved, c.bookingPolicy(ctx, saved.TenantID).ReminderOffsets)
	return saved, nil
}

// Cancel moves the appointment to Cancelled, recording reason and time.
func (c *Coordinator) Cancel(ctx context.Context, tenantID, appointmentID, reason string) (model.Appointment, error) {
	ctx, span := otelx.Tracer("booking").Start(ctx, "booking.cancel", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("appointment_id", appointmentID),
	))
	defer span.End()

	saved, prev, err := c.transition(ctx, tenantID, appointmentID, lifecycle.Transition{Event: lifecycle.EventCancel, Reason: reason})
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.Info("appointment cancelled", "tenant_id", tenantID, "appointment_id", saved.ID, "staff_id", saved.StaffID)
	body := events.AppointmentBody(saved)
	body.PreviousStatus = string(prev.Status)
	c.emitAppointment(ctx, events.TypeAppointmentCancelled, saved, body)
	return saved, nil
}

// UpdateStatus applies confirm, check_in, start, complete or no_show.
func (c *Coordinator) UpdateStatus(ctx context.Context, tenantID, appointmentID string, event lifecycle.Event) (model.Appointment, error) {
	ctx, span := otelx.Tracer("booking").Start(ctx, "booking.update_status", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("appointment_id", appointmentID),
		attribute.String("event", string(event)),
	))
	defer span.End()

	switch event {
	case lifecycle.EventConfirm, lifecycle.EventCheckIn, lifecycle.EventStart, lifecycle.EventComplete, lifecycle.EventNoShow:
	case lifecycle.EventCancel, lifecycle.EventReschedule:
		return model.Appointment{}, apperr.Validation("use the dedicated %s operation", event)
	default:
		return model.Appointment{}, apperr.Validation("unknown status event %q", event)
	}

	saved, prev, err := c.transition(ctx, tenantID, appointmentID, lifecycle.Transition{Event: event})
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.Info("appointment status changed",
		"tenant_id", tenantID,
		"appointment_id", saved.ID,
		"from", prev.Status,
		"to", saved.Status,
	)
	body := events.AppointmentBody(saved)
	body.PreviousStatus = string(prev.Status)
	c.emitAppointment(ctx, events.TypeAppointmentStatusChanged, saved, body)
	return saved, nil
}

// transition loads, applies tr and commits with a version check. Status-only changes never
// widen the occupied interval, so no overlap re-check is needed.
func (c *Coordinator) transition(ctx context.Context, tenantID, appointmentID string, tr lifecycle.Transition) (saved, prev model.Appointment, err error) {
	if tenantID == "" || appointmentID == "" {
		return model.Appointment{}, model.Appointment{}, apperr.Validation("tenant_id and appointment_id are required")
	}
	prev, err = c.store.GetAppointment(ctx, tenantID, appointmentID)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, storeErr(err, "appointment %s", appointmentID)
	}
	next, err := c.machine.Apply(prev, tr, c.now())
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	saved, err = c.store.CommitAppointment(ctx, next, storage.CommitOptions{ExpectedVersion: prev.Version})
	if err != nil {
		return model.Appointment{}, model.Appointment{}, c.commitErr(err)
	}
	c.metrics.Transition(string(tr.Event))
	return saved, prev, nil
}

// MarkReminderSent is idempotent: only the call that flips the flag emits reminder.due.
func (c *Coordinator) MarkReminderSent(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	if tenantID == "" || appointmentID == "" {
		return model.Appointment{}, apperr.Validation("tenant_id and appointment_id are required")
	}
	appt, changed, err := c.store.MarkReminderSent(ctx, tenantID, appointmentID)
	if err != nil {
		return model.Appointment{}, storeErr(err, "appointment %s", appointmentID)
	}
	if !changed {
		return appt, nil
	}
	c.metrics.ReminderMarked()
	c.emitAppointment(ctx, events.TypeReminderDue, appt, events.ReminderPayload{
		AppointmentID: appt.ID,
		CustomerID:    appt.CustomerID,
		StartTime:     appt.StartTime.UTC(),
		RemindAt:      c.now().UTC(),
	})
	return appt, nil
}

// DueReminders lists appointments across tenants starting in [from, to) without a sent
// reminder.
func (c *Coordinator) DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	appts, err := c.store.ListDueReminders(ctx, from, to, limit)
	if err != nil {
		return nil, storeErr(err, "due reminders")
	}
	return appts, nil
}

func (c *Coordinator) ListAppointments(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	if f.TenantID == "" {
		return nil, apperr.Validation("tenant_id is required")
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return nil, apperr.Validation("to must be after from")
	}
	appts, err := c.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, storeErr(err, "list appointments")
	}
	return appts, nil
}

func (c *Coordinator) ensureFree(ctx context.Context, staff model.StaffMember, iv calendar.Interval, excludeID string) error {
	res, err := c.detector.Check(ctx, staff, iv, excludeID)
	if err != nil {
		return storeErr(err, "conflict check")
	}
	if res.Conflict {
		if res.WithID != "" {
			return apperr.New(apperr.KindSlotUnavailable, "%s (%s)", res.Reason, res.WithID)
		}
		return apperr.New(apperr.KindSlotUnavailable, "%s", res.Reason)
	}
	return nil
}

func (c *Coordinator) lock(ctx context.Context, keys ...string) (func(), error) {
	unlock, err := locking.LockAll(ctx, c.locker, keys...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "acquire staff lock")
	}
	return unlock, nil
}

func (c *Coordinator) bookingPolicy(ctx context.Context, tenantID string) policy.Policy {
	pol, err := c.policy.BookingPolicy(ctx, tenantID)
	if err != nil {
		c.logger.Warn("booking policy fetch failed; using defaults", "tenant_id", tenantID, "err", err)
		return policy.Policy{ReminderOffsets: policy.DefaultReminderOffsets}
	}
	return pol
}

func (c *Coordinator) requestReminders(ctx context.Context, appt model.Appointment, offsets []time.Duration) {
	now := c.now()
	for _, off := range offsets {
		remindAt := appt.StartTime.Add(-off)
		if remindAt.Before(now) {
			continue
		}
		c.emitAppointment(ctx, events.TypeReminderRequested, appt, events.ReminderPayload{
			AppointmentID: appt.ID,
			CustomerID:    appt.CustomerID,
			StartTime:     appt.StartTime.UTC(),
			RemindAt:      remindAt.UTC(),
			OffsetMinutes: int(off / time.Minute),
		})
	}
}

// emitAppointment hands an event to the sink after a commit. The request context may
// already be cancelled by then, so a detached, bounded context is used. Failures are
// logged and counted; the booking outcome stands.
func (c *Coordinator) emitAppointment(ctx context.Context, eventType string, appt model.Appointment, payload any) {
	evt, err := events.New(eventType, appt, payload, c.now())
	if err != nil {
		c.logger.Error("event encode failed", "event_type", eventType, "appointment_id", appt.ID, "err", err)
		c.metrics.EmitFailure(eventType)
		return
	}
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.emitTimeout)
	defer cancel()
	if err := c.sink.Publish(emitCtx, evt); err != nil {
		c.logger.Warn("event emit failed", "event_type", eventType, "appointment_id", appt.ID, "err", err)
		c.metrics.EmitFailure(eventType)
	}
}

func (c *Coordinator) commitErr(err error) error {
	if errors.Is(err, storage.ErrOverlap) || errors.Is(err, storage.ErrStale) {
		c.metrics.CommitConflict()
	}
	return storeErr(err, "commit")
}
