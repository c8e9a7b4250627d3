// Package storage persists staff calendars, appointments and holds. Memory is the
// in-process implementation used for local runs and tests; Postgres is the production one.
// Both re-check non-overlap inside the commit so a stale read can never double-book.
package storage

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrOverlap means the commit-time re-check found another active booking or hold.
	ErrOverlap = errors.New("interval overlaps an existing booking")

	// ErrStale means the row changed since it was read (version mismatch).
	ErrStale = errors.New("appointment was modified concurrently")

	ErrDuplicateKey   = errors.New("idempotency key already used")
	ErrTimeOffState   = errors.New("time off is not awaiting approval")
	ErrTimeOffOverlap = errors.New("time off overlaps an approved period")

	// ErrInvalidSchedule rejects working hours, overrides or time off that fail validation.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// CommitOptions controls the atomic checks CommitAppointment performs.
type CommitOptions struct {
	// ExpectNoConflict re-checks the interval against other active appointments and holds
	// of the same staff member before writing.
	ExpectNoConflict bool
	// ExpectedVersion must equal the stored version for updates. Ignored on insert.
	ExpectedVersion int
}

type ListFilter struct {
	TenantID string
	StaffID  string
	From     time.Time
	To       time.Time
	Limit    int
}

const defaultListLimit = 100

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultListLimit
	}
	return f.Limit
}

func activeStatusStrings() []string {
	out := make([]string, 0, len(model.ActiveStatuses))
	for _, s := range model.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}
