package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Break is an optional pause inside a working day.
type Break struct {
	Start Clock
	End   Clock
}

// DayHours is one day's working hours with an optional break.
type DayHours struct {
	Start Clock
	End   Clock
	Break *Break
}

func (h DayHours) Validate() error {
	if !h.Start.Valid() || !h.End.Valid() {
		return errors.New("working hours must be within 00:00-24:00")
	}
	if h.Start >= h.End {
		return fmt.Errorf("working hours start %s must be before end %s", h.Start, h.End)
	}
	if h.Break != nil {
		if h.Break.Start >= h.Break.End {
			return fmt.Errorf("break start %s must be before end %s", h.Break.Start, h.Break.End)
		}
		if h.Break.Start < h.Start || h.Break.End > h.End {
			return fmt.Errorf("break %s-%s must lie within %s-%s", h.Break.Start, h.Break.End, h.Start, h.End)
		}
	}
	return nil
}

// On materializes the hours on date d in loc, break already removed.
func (h DayHours) On(d Date, loc *time.Location) Windows {
	w := NewWindows(Interval{Start: d.At(h.Start, loc), End: d.At(h.End, loc)})
	if h.Break != nil {
		w = w.Subtract(Interval{Start: d.At(h.Break.Start, loc), End: d.At(h.Break.End, loc)})
	}
	return w
}

// RecurringAvailability applies every week on Weekday unless a DateOverride exists.
type RecurringAvailability struct {
	StaffID string
	Weekday time.Weekday
	DayHours
}

func (r RecurringAvailability) Validate() error {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", r.Weekday)
	}
	return r.DayHours.Validate()
}

// DateOverride replaces the recurring rule for one date. Active=false means a day off.
type DateOverride struct {
	StaffID string
	Date    Date
	Active  bool
	DayHours
}

// Validate checks the hours only when the override is a working day.
func (o DateOverride) Validate() error {
	if o.Date.IsZero() {
		return errors.New("override needs a date")
	}
	if !o.Active {
		return nil
	}
	return o.DayHours.Validate()
}

type TimeOffType string

const (
	TimeOffVacation TimeOffType = "vacation"
	TimeOffSick     TimeOffType = "sick"
	TimeOffPersonal TimeOffType = "personal"
	TimeOffOther    TimeOffType = "other"
)

type ApprovalStatus string

const (
	ApprovalRequested ApprovalStatus = "requested"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// TimeOffPeriod covers StartDate..EndDate inclusive. StartClock and EndClock, when set,
// narrow the first and last day to model half days.
type TimeOffPeriod struct {
	ID         string
	StaffID    string
	Type       TimeOffType
	StartDate  Date
	EndDate    Date
	StartClock *Clock
	EndClock   *Clock
	Status     ApprovalStatus
}

func (p TimeOffPeriod) Validate() error {
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return errors.New("time off needs start and end dates")
	}
	if p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("time off end %s is before start %s", p.EndDate, p.StartDate)
	}
	if p.StartClock != nil && !p.StartClock.Valid() {
		return errors.New("invalid time off start clock")
	}
	if p.EndClock != nil && !p.EndClock.Valid() {
		return errors.New("invalid time off end clock")
	}
	if p.StartDate == p.EndDate && p.StartClock != nil && p.EndClock != nil && *p.StartClock >= *p.EndClock {
		return errors.New("time off start must be before end")
	}
	return nil
}

// Covers reports whether the period touches date d at all.
func (p TimeOffPeriod) Covers(d Date) bool {
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// IntervalOn returns the portion of the period that falls on date d, clipped to that day.
func (p TimeOffPeriod) IntervalOn(d Date, loc *time.Location) (Interval, bool) {
	if !p.Covers(d) {
		return Interval{}, false
	}
	iv := d.Bounds(loc)
	if d == p.StartDate && p.StartClock != nil {
		iv.Start = d.At(*p.StartClock, loc)
	}
	if d == p.EndDate && p.EndClock != nil {
		iv.End = d.At(*p.EndClock, loc)
	}
	return iv, iv.Valid()
}

// Span is the whole period as instants in loc.
func (p TimeOffPeriod) Span(loc *time.Location) Interval {
	start := p.StartDate.At(0, loc)
	if p.StartClock != nil {
		start = p.StartDate.At(*p.StartClock, loc)
	}
	end := p.EndDate.AddDays(1).At(0, loc)
	if p.EndClock != nil {
		end = p.EndDate.At(*p.EndClock, loc)
	}
	return Interval{Start: start, End: end}
}

// WorkingCalendar is everything the resolver needs for one staff member on one date.
type WorkingCalendar struct {
	Recurring *RecurringAvailability
	Override  *DateOverride
	TimeOff   []TimeOffPeriod
}
