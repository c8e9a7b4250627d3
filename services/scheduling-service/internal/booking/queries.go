package booking

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/locking"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/storage"
)

// GetAvailableSlots lists bookable start times for serviceID on date, oldest first.
// Starts already in the past are left out.
func (c *Coordinator) GetAvailableSlots(ctx context.Context, tenantID, staffID string, date calendar.Date, serviceID string) ([]time.Time, error) {
	if tenantID == "" || staffID == "" || serviceID == "" {
		return nil, apperr.Validation("tenant_id, staff_id and service_id are required")
	}
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	began := time.Now()
	defer func() { c.metrics.SlotQuery(time.Since(began)) }()

	staff, err := c.store.LoadStaff(ctx, tenantID, staffID)
	if err != nil {
		return nil, storeErr(err, "staff %s", staffID)
	}
	svc, err := c.store.LoadService(ctx, tenantID, serviceID)
	if err != nil {
		return nil, storeErr(err, "service %s", serviceID)
	}
	if err := svc.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "service %s", svc.ID)
	}
	seq, err := c.slots.EnumerateSlots(ctx, staff, date, svc.Duration())
	if err != nil {
		return nil, storeErr(err, "enumerate slots")
	}
	return slices.Collect(availability.NotBefore(seq, c.now())), nil
}

// GetConflict reports whether [start, end) is unbookable for staffID and why.
func (c *Coordinator) GetConflict(ctx context.Context, tenantID, staffID string, start, end time.Time, excludeAppointmentID string) (conflict.Result, error) {
	if tenantID == "" || staffID == "" {
		return conflict.Result{}, apperr.Validation("tenant_id and staff_id are required")
	}
	staff, err := c.store.LoadStaff(ctx, tenantID, staffID)
	if err != nil {
		return conflict.Result{}, storeErr(err, "staff %s", staffID)
	}
	res, err := c.detector.Check(ctx, staff, calendar.Interval{Start: start, End: end}, excludeAppointmentID)
	if err != nil {
		return conflict.Result{}, storeErr(err, "conflict check")
	}
	return res, nil
}

// ApproveTimeOff moves a requested period to approved. From then on the resolver removes
// it from the staff member's windows.
func (c *Coordinator) ApproveTimeOff(ctx context.Context, tenantID, timeOffID string) (calendar.TimeOffPeriod, error) {
	if tenantID == "" || timeOffID == "" {
		return calendar.TimeOffPeriod{}, apperr.Validation("tenant_id and time_off_id are required")
	}
	p, err := c.store.ApproveTimeOff(ctx, tenantID, timeOffID)
	if err != nil {
		return calendar.TimeOffPeriod{}, storeErr(err, "time off %s", timeOffID)
	}
	c.logger.Info("time off approved", "tenant_id", tenantID, "staff_id", p.StaffID, "time_off_id", p.ID,
		"from", p.StartDate.String(), "to", p.EndDate.String())
	return p, nil
}

type HoldRequest struct {
	TenantID string
	StaffID  string
	Start    time.Time
	End      time.Time
	Reason   string
}

// PlaceHold blocks [Start, End) for the staff member without creating a booking. It is
// refused when an active appointment already occupies part of it.
func (c *Coordinator) PlaceHold(ctx context.Context, req HoldRequest) (model.BlockedInterval, error) {
	if req.TenantID == "" || req.StaffID == "" {
		return model.BlockedInterval{}, apperr.Validation("tenant_id and staff_id are required")
	}
	staff, err := c.store.LoadStaff(ctx, req.TenantID, req.StaffID)
	if err != nil {
		return model.BlockedInterval{}, storeErr(err, "staff %s", req.StaffID)
	}
	loc, err := staff.Location()
	if err != nil {
		return model.BlockedInterval{}, apperr.Wrap(apperr.KindValidation, err, "staff timezone")
	}
	iv := calendar.Interval{Start: req.Start, End: req.End}
	if _, err := conflict.ValidateInterval(iv, loc); err != nil {
		return model.BlockedInterval{}, err
	}

	unlock, err := c.lock(ctx, locking.StaffKey(req.TenantID, staff.ID))
	if err != nil {
		return model.BlockedInterval{}, err
	}
	defer unlock()

	hold, err := c.store.CreateBlockedInterval(ctx, model.BlockedInterval{
		TenantID:  req.TenantID,
		StaffID:   staff.ID,
		StartTime: req.Start,
		EndTime:   req.End,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		if errors.Is(err, storage.ErrOverlap) {
			return model.BlockedInterval{}, apperr.New(apperr.KindSlotUnavailable, "hold overlaps an active appointment")
		}
		return model.BlockedInterval{}, storeErr(err, "place hold")
	}
	c.logger.Info("hold placed", "tenant_id", hold.TenantID, "staff_id", hold.StaffID, "hold_id", hold.ID)
	return hold, nil
}
