package entity

import "time"

// TimeWindow is a closed interval of desired delivery time.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewPointWindow returns a window that starts and ends at t.
func NewPointWindow(t time.Time) TimeWindow {
	return TimeWindow{Start: t, End: t}
}

// Valid reports whether the window is set and not inverted.
func (w TimeWindow) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && !w.End.Before(w.Start)
}

// Center returns the midpoint of the window.
func (w TimeWindow) Center() time.Time {
	return w.Start.Add(w.End.Sub(w.Start) / 2)
}

// Duration returns the length of the window.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether the two windows share at least one instant.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return !w.End.Before(other.Start) && !other.End.Before(w.Start)
}

// Intersect returns the shared part of both windows.
func (w TimeWindow) Intersect(other TimeWindow) (TimeWindow, bool) {
	if !w.Overlaps(other) {
		return TimeWindow{}, false
	}

	start := w.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := w.End
	if other.End.Before(end) {
		end = other.End
	}

	return TimeWindow{Start: start, End: end}, true
}

// Gap returns the empty time between two windows, zero when they overlap.
func (w TimeWindow) Gap(other TimeWindow) time.Duration {
	switch {
	case w.Overlaps(other):
		return 0
	case w.End.Before(other.Start):
		return other.Start.Sub(w.End)
	default:
		return w.Start.Sub(other.End)
	}
}

// CenterGap returns the absolute distance between the two window centers.
func (w TimeWindow) CenterGap(other TimeWindow) time.Duration {
	gap := w.Center().Sub(other.Center())
	if gap < 0 {
		return -gap
	}

	return gap
}

// CommonWindow folds the windows into the time every member can make.
// When the windows do not intersect but each gap is within tolerance, the result bridges
// the gap between the latest end and the earliest start.
func CommonWindow(windows []TimeWindow, tolerance time.Duration) (TimeWindow, bool) {
	if len(windows) == 0 {
		return TimeWindow{}, false
	}

	for i := range windows {
		for j := i + 1; j < len(windows); j++ {
			if windows[i].Gap(windows[j]) > tolerance {
				return TimeWindow{}, false
			}
		}
	}

	latestStart := windows[0].Start
	earliestEnd := windows[0].End
	for _, w := range windows[1:] {
		if w.Start.After(latestStart) {
			latestStart = w.Start
		}
		if w.End.Before(earliestEnd) {
			earliestEnd = w.End
		}
	}

	if !earliestEnd.Before(latestStart) {
		return TimeWindow{Start: latestStart, End: earliestEnd}, true
	}

	return TimeWindow{Start: earliestEnd, End: latestStart}, true
}
