// Package lifecycle is the appointment state machine. It is pure: callers load the
// appointment, apply a transition here, and persist the result through the coordinator.
package lifecycle

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

type Event string

const (
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventCheckIn    Event = "check_in"
	EventStart      Event = "start"
	EventComplete   Event = "complete"
	EventNoShow     Event = "no_show"
	EventReschedule Event = "reschedule"
)

// DefaultCheckInGrace is how early before start a customer may check in.
const DefaultCheckInGrace = 15 * time.Minute

// Transition is one requested change. Reason applies to cancel, the New* fields to
// reschedule.
type Transition struct {
	Event      Event
	Reason     string
	NewStaffID string
	NewSalonID string
	NewStart   time.Time
	NewEnd     time.Time
}

type rule struct {
	to    model.Status
	guard func(m Machine, a model.Appointment, tr Transition, now time.Time) error
}

// table maps (from, event) to the target status. Reschedule is handled separately since
// it keeps the status.
var table = map[model.Status]map[Event]rule{
	model.StatusPending: {
		EventConfirm: {to: model.StatusConfirmed},
		EventCancel:  {to: model.StatusCancelled},
		EventNoShow:  {to: model.StatusNoShow, guard: afterEnd},
	},
	model.StatusConfirmed: {
		EventCancel:  {to: model.StatusCancelled},
		EventCheckIn: {to: model.StatusCheckedIn, guard: withinCheckIn},
		EventNoShow:  {to: model.StatusNoShow, guard: afterEnd},
	},
	// A checked-in customer has shown up, so no_show is not offered here.
	model.StatusCheckedIn: {
		EventCancel: {to: model.StatusCancelled},
		EventStart:  {to: model.StatusInProgress},
	},
	model.StatusInProgress: {
		EventComplete: {to: model.StatusCompleted},
	},
}

type Machine struct {
	CheckInGrace time.Duration
}

func New(checkInGrace time.Duration) Machine {
	if checkInGrace < 0 {
		checkInGrace = 0
	}
	return Machine{CheckInGrace: checkInGrace}
}

// Can reports whether event is defined for status, ignoring time guards.
func Can(status model.Status, event Event) bool {
	if event == EventReschedule {
		return status.Active()
	}
	_, ok := table[status][event]
	return ok
}

// Apply returns the appointment after tr, or an InvalidTransition error. It never
// touches ID, tenant, customer or service. Reschedule only moves staff/start/end; the
// caller must re-validate the new interval for conflicts.
func (m Machine) Apply(a model.Appointment, tr Transition, now time.Time) (model.Appointment, error) {
	if tr.Event == EventReschedule {
		return m.reschedule(a, tr, now)
	}

	r, ok := table[a.Status][tr.Event]
	if !ok {
		return model.Appointment{}, apperr.InvalidTransition("cannot %s an appointment that is %s", tr.Event, a.Status)
	}
	if r.guard != nil {
		if err := r.guard(m, a, tr, now); err != nil {
			return model.Appointment{}, err
		}
	}

	next := a
	next.Status = r.to
	next.UpdatedAt = now
	if r.to == model.StatusCancelled {
		at := now
		next.CancelledAt = &at
		next.CancelReason = strings.TrimSpace(tr.Reason)
	}
	return next, nil
}

func (m Machine) reschedule(a model.Appointment, tr Transition, now time.Time) (model.Appointment, error) {
	if !a.Status.Active() {
		return model.Appointment{}, apperr.InvalidTransition("cannot reschedule an appointment that is %s", a.Status)
	}
	if !now.Before(a.EndTime) {
		return model.Appointment{}, apperr.InvalidTransition("appointment %s has already ended", a.ID)
	}
	if !tr.NewEnd.After(tr.NewStart) {
		return model.Appointment{}, apperr.Validation("new end must be after new start")
	}

	next := a
	if staff := strings.TrimSpace(tr.NewStaffID); staff != "" {
		next.StaffID = staff
	}
	if salon := strings.TrimSpace(tr.NewSalonID); salon != "" {
		next.SalonID = salon
	}
	next.StartTime = tr.NewStart
	next.EndTime = tr.NewEnd
	next.ReminderSent = false
	next.UpdatedAt = now
	return next, nil
}

func withinCheckIn(m Machine, a model.Appointment, _ Transition, now time.Time) error {
	opens := a.StartTime.Add(-m.CheckInGrace)
	if now.Before(opens) || !now.Before(a.EndTime) {
		return apperr.InvalidTransition("check-in is open from %s until %s", opens.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
	}
	return nil
}

func afterEnd(_ Machine, a model.Appointment, _ Transition, now time.Time) error {
	if !now.After(a.EndTime) {
		return apperr.InvalidTransition("no-show can only be recorded after %s", a.EndTime.Format(time.RFC3339))
	}
	return nil
}
