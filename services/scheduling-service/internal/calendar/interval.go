package calendar

import (
	"slices"
	"time"
)

// Interval is the half-open range [Start, End). An interval ending at 14:00 never overlaps
// one starting at 14:00.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Valid() bool { return iv.End.After(iv.Start) }

func (iv Interval) Duration() time.Duration {
	if !iv.Valid() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the two intervals share any instant.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Contains reports whether o lies entirely within iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// Intersect returns the common part, ok=false when empty.
func (iv Interval) Intersect(o Interval) (Interval, bool) {
	out := Interval{Start: later(iv.Start, o.Start), End: earlier(iv.End, o.End)}
	return out, out.Valid()
}

// Windows is an ordered set of disjoint, non-adjacent intervals. Build it with
// NewWindows; the operations below keep that shape.
type Windows []Interval

// NewWindows normalizes arbitrary intervals: drops empty ones, sorts, merges overlapping
// and touching ones.
func NewWindows(ivs ...Interval) Windows {
	in := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Valid() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	slices.SortFunc(in, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	out := make(Windows, 0, len(in))
	for _, cur := range in {
		if len(out) == 0 {
			out = append(out, cur)
			continue
		}
		last := &out[len(out)-1]
		if cur.Start.After(last.End) {
			out = append(out, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return out
}

// Subtract removes every instant covered by cut.
func (w Windows) Subtract(cut ...Interval) Windows {
	blocks := NewWindows(cut...)
	if len(blocks) == 0 || len(w) == 0 {
		return w
	}

	var out Windows
	for _, base := range w {
		cursor := base.Start
		for _, b := range blocks {
			if !b.End.After(cursor) {
				continue
			}
			if !b.Start.Before(base.End) {
				break
			}
			if b.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: b.Start})
			}
			cursor = b.End
		}
		if base.End.After(cursor) {
			out = append(out, Interval{Start: cursor, End: base.End})
		}
	}
	return out
}

// Intersect keeps only the parts of w that also lie in o.
func (w Windows) Intersect(o Windows) Windows {
	var out Windows
	i, j := 0, 0
	for i < len(w) && j < len(o) {
		if iv, ok := w[i].Intersect(o[j]); ok {
			out = append(out, iv)
		}
		if w[i].End.Before(o[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Contains reports whether iv fits entirely inside a single window.
func (w Windows) Contains(iv Interval) bool {
	if !iv.Valid() {
		return false
	}
	for _, win := range w {
		if win.Contains(iv) {
			return true
		}
	}
	return false
}

// Overlaps reports whether any window shares an instant with iv.
func (w Windows) Overlaps(iv Interval) bool {
	for _, win := range w {
		if win.Overlaps(iv) {
			return true
		}
	}
	return false
}

func (w Windows) Total() time.Duration {
	var d time.Duration
	for _, iv := range w {
		d += iv.Duration()
	}
	return d
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
