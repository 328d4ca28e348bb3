package calendar

import "time"

// Window is anything with an inclusive [start, end] time-of-day window.
type Window interface {
	Window() (start, end TimeOfDay)
}

// Contains reports whether tod falls inside w, both ends inclusive.
func Contains(w Window, tod TimeOfDay) bool {
	start, end := w.Window()
	return tod >= start && tod <= end
}

// ActiveSlot picks the schedule window that governs date at instant now.
// windows must be the day's active windows ordered by start time, and now must
// already be expressed in the clinic's location.
//
// For today it returns the first window containing now, otherwise the first
// window that has not started yet; past the last window nothing is active.
// For any other date the first window of the day is used.
func ActiveSlot[W Window](windows []W, date Date, now time.Time) (W, bool) {
	var zero W
	if len(windows) == 0 {
		return zero, false
	}
	if date != DateOf(now) {
		return windows[0], true
	}
	clock := ClockOf(now)
	for _, w := range windows {
		start, _ := w.Window()
		if Contains(w, clock) || start > clock {
			return w, true
		}
	}
	return zero, false
}
