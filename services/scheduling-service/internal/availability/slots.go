// Package availability enumerates bookable start times for a staff member on a date.
package availability

import (
	"context"
	"iter"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

// DefaultGranularity is the step between candidate start times.
const DefaultGranularity = 15 * time.Minute

// SnapshotLoader is satisfied by *conflict.Detector. Sharing it keeps slot enumeration and
// conflict checks reading the exact same view of the calendar.
type SnapshotLoader interface {
	Snapshot(ctx context.Context, staff model.StaffMember, date calendar.Date) (conflict.Snapshot, error)
}

type Generator struct {
	loader SnapshotLoader
	step   time.Duration
}

func NewGenerator(loader SnapshotLoader, step time.Duration) *Generator {
	if step <= 0 {
		step = DefaultGranularity
	}
	return &Generator{loader: loader, step: step}
}

func (g *Generator) Granularity() time.Duration { return g.step }

// EnumerateSlots loads the day once and returns a lazy sequence of start times where a
// booking of the given duration fits. The sequence is finite, chronological and may be
// ranged over any number of times.
func (g *Generator) EnumerateSlots(ctx context.Context, staff model.StaffMember, date calendar.Date, duration time.Duration) (iter.Seq[time.Time], error) {
	if duration <= 0 || duration > model.MaxServiceDuration {
		return nil, apperr.Validation("duration must be in (0, 24h], got %s", duration)
	}
	snap, err := g.loader.Snapshot(ctx, staff, date)
	if err != nil {
		return nil, err
	}
	return Slots(FreeWindows(snap, ""), duration, g.step), nil
}

// FreeWindows is the working windows minus everything occupying them.
func FreeWindows(snap conflict.Snapshot, excludeAppointmentID string) calendar.Windows {
	return snap.Windows.Subtract(snap.Busy(excludeAppointmentID)...)
}

// Slots walks each free window from its own start in step increments and yields every
// start whose [start, start+duration) still fits in that window.
func Slots(free calendar.Windows, duration, step time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if duration <= 0 || step <= 0 {
			return
		}
		for _, w := range free {
			for t := w.Start; !t.Add(duration).After(w.End); t = t.Add(step) {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// NotBefore drops starts earlier than cutoff, e.g. slots already in the past.
func NotBefore(seq iter.Seq[time.Time], cutoff time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for t := range seq {
			if t.Before(cutoff) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}
