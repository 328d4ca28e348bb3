package queue

import (
	"sort"
	"time"

	"github.com/wolfman30/caretoken/internal/calendar"
)

// Selection is the visible part of a doctor's day.
type Selection struct {
	Queue  []*Appointment
	OnHold []*Appointment
}

// Select filters the appointments of one doctor and date into the live queue
// and the parked tokens. With a slot, scheduled appointments inside the slot
// window are shown. Emergency and held tokens are always shown. loc is the
// clinic timezone in which scheduled_start is compared to the window.
func Select(day []*Appointment, slot calendar.Window, loc *time.Location, filter []State) Selection {
	var visible []*Appointment
	for _, a := range day {
		if !inView(a, slot, loc) {
			continue
		}
		if len(filter) > 0 && !containsState(filter, a.State) {
			continue
		}
		visible = append(visible, a)
	}
	sortTokens(visible)

	sel := Selection{Queue: []*Appointment{}, OnHold: []*Appointment{}}
	for _, a := range visible {
		if a.State == StateHold {
			sel.OnHold = append(sel.OnHold, a)
		} else {
			sel.Queue = append(sel.Queue, a)
		}
	}
	return sel
}

func inView(a *Appointment, slot calendar.Window, loc *time.Location) bool {
	if a.IsEmergency || a.State == StateHold {
		return true
	}
	if slot == nil {
		return false
	}
	return calendar.Contains(slot, calendar.ClockOf(a.ScheduledStart.In(loc)))
}

func containsState(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

// sortTokens orders by token number, emergency first on equal numbers, then booking time.
func sortTokens(appts []*Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.TokenNumber != b.TokenNumber {
			return a.TokenNumber < b.TokenNumber
		}
		if a.IsEmergency != b.IsEmergency {
			return a.IsEmergency
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// Summary is the compact board shown at the clinic entrance.
type Summary struct {
	LastCompletedToken *string `json:"last_completed_token"`
	CurrentToken       *string `json:"current_token"`
	NextToken          *string `json:"next_token"`
	TotalWaiting       int     `json:"total_waiting"`
}

// Summarize builds the board from the whole day and the selected queue.
func Summarize(day []*Appointment, sel Selection) Summary {
	var sum Summary
	var lastDone, current *Appointment
	for _, a := range day {
		switch a.State {
		case StateCompleted:
			if a.EndedAt != nil && (lastDone == nil || a.EndedAt.After(*lastDone.EndedAt)) {
				lastDone = a
			}
		case StateConsulting:
			if current == nil || laterStart(a, current) {
				current = a
			}
		}
	}
	if lastDone != nil {
		sum.LastCompletedToken = tokenPtr(lastDone)
	}
	if current != nil {
		sum.CurrentToken = tokenPtr(current)
	}

	var next *Appointment
	for _, a := range sel.Queue {
		if !a.State.Pending() {
			continue
		}
		sum.TotalWaiting++
		if next == nil || (a.IsEmergency && !next.IsEmergency) {
			next = a
		}
	}
	if next != nil {
		sum.NextToken = tokenPtr(next)
	}
	return sum
}

func laterStart(a, b *Appointment) bool {
	switch {
	case a.StartedAt == nil:
		return false
	case b.StartedAt == nil:
		return true
	}
	return a.StartedAt.After(*b.StartedAt)
}

func tokenPtr(a *Appointment) *string {
	s := a.TokenDisplay()
	return &s
}
