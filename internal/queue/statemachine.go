package queue

import (
	"fmt"
	"time"
)

var transitions = map[State][]State{
	StateCreated:    {StateWaiting, StateHold, StateConsulting, StateCompleted, StateCancelled},
	StateWaiting:    {StateConsulting, StateCompleted, StateCancelled},
	StateHold:       {StateConsulting, StateCompleted, StateCancelled},
	StateConsulting: {StateCompleted, StateCancelled},
}

// CanTransition reports whether an explicit status update may move from to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition applies an explicit status update and stamps the consult times.
func Transition(a *Appointment, to State, now time.Time) error {
	if !CanTransition(a.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, to)
	}
	enter(a, to, now)
	return nil
}

// CallNext moves a waiting or parked appointment into consultation.
func CallNext(a *Appointment, now time.Time) error {
	if !a.State.Pending() && a.State != StateHold {
		return fmt.Errorf("%w: cannot call %s appointment", ErrInvalidTransition, a.State)
	}
	enter(a, StateConsulting, now)
	return nil
}

// ToggleHold parks a created appointment or releases a held one.
func ToggleHold(a *Appointment) error {
	switch a.State {
	case StateCreated:
		a.State = StateHold
	case StateHold:
		a.State = StateCreated
	default:
		return fmt.Errorf("%w: only created appointments can be held, got %s", ErrInvalidTransition, a.State)
	}
	return nil
}

func enter(a *Appointment, to State, now time.Time) {
	a.State = to
	switch to {
	case StateConsulting:
		started := now
		a.StartedAt = &started
	case StateCompleted, StateCancelled:
		ended := now
		a.EndedAt = &ended
		if a.StartedAt != nil {
			d := int(ended.Sub(*a.StartedAt) / time.Second)
			a.DurationSeconds = &d
		}
	}
}
