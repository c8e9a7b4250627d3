// Package schedule turns a staff member's recurring hours, date overrides and approved
// time off into the working windows of a single date.
package schedule

import (
	"context"
	"time"

	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Source loads the raw calendar for one staff member and date.
type Source interface {
	LoadWorkingCalendar(ctx context.Context, tenantID, staffID string, date calendar.Date) (calendar.WorkingCalendar, error)
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// ResolveWorkingWindows returns the ordered, disjoint windows during which staff is
// theoretically bookable on date, before existing appointments are subtracted.
// Staff who are not Active have no windows.
func (r *Resolver) ResolveWorkingWindows(ctx context.Context, staff model.StaffMember, date calendar.Date) (calendar.Windows, error) {
	ctx, span := otelx.Tracer("schedule").Start(ctx, "schedule.resolve",
		trace.WithAttributes(
			attribute.String("staff_id", staff.ID),
			attribute.String("date", date.String()),
		),
	)
	defer span.End()

	if !staff.Schedulable() {
		return nil, nil
	}
	loc, err := staff.Location()
	if err != nil {
		return nil, err
	}
	cal, err := r.source.LoadWorkingCalendar(ctx, staff.TenantID, staff.ID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return Resolve(cal, date, loc), nil
}

// Resolve is the pure part of ResolveWorkingWindows:
//  1. a DateOverride for date wins; inactive overrides mean no work that day
//  2. otherwise the recurring rule for the weekday; none means a day off
//  3. the break is removed
//  4. every approved time-off period, clipped to date, is removed
func Resolve(cal calendar.WorkingCalendar, date calendar.Date, loc *time.Location) calendar.Windows {
	var base calendar.Windows
	switch {
	case cal.Override != nil && cal.Override.Date == date:
		if !cal.Override.Active {
			return nil
		}
		base = cal.Override.On(date, loc)
	case cal.Recurring != nil && cal.Recurring.Weekday == date.Weekday():
		base = cal.Recurring.On(date, loc)
	default:
		return nil
	}

	var off []calendar.Interval
	for _, p := range cal.TimeOff {
		if p.Status != calendar.ApprovalApproved {
			continue
		}
		if iv, ok := p.IntervalOn(date, loc); ok {
			off = append(off, iv)
		}
	}
	return base.Subtract(off...)
}
