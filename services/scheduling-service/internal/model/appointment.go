package model

import (
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses still occupy the staff member's calendar.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusCheckedIn, StatusInProgress}

func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool { return s.Active() || s.Terminal() }

type Appointment struct {
	ID             string
	TenantID       string
	SalonID        string
	StaffID        string
	ServiceID      string
	CustomerID     string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	CancelledAt    *time.Time
	CancelReason   string
	ReminderSent   bool
	IdempotencyKey string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) Interval() calendar.Interval {
	return calendar.Interval{Start: a.StartTime, End: a.EndTime}
}

// BlockedInterval is a manual hold that occupies the calendar without being a booking.
type BlockedInterval struct {
	ID        string
	TenantID  string
	StaffID   string
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	CreatedAt time.Time
}

func (b BlockedInterval) Interval() calendar.Interval {
	return calendar.Interval{Start: b.StartTime, End: b.EndTime}
}
