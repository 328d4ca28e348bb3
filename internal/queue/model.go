// Package queue allocates doctor tokens, estimates waits and orders the live queue.
package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/calendar"
)

// State is the lifecycle state of an appointment.
type State string

const (
	StateCreated    State = "created"
	StateWaiting    State = "waiting"
	StateHold       State = "hold"
	StateConsulting State = "consulting"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
)

// ParseState validates a state name.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StateCreated, StateWaiting, StateHold, StateConsulting, StateCompleted, StateCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// ParseStates parses a comma separated state filter. An empty string yields nil.
func ParseStates(raw string) ([]State, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []State
	for _, part := range strings.Split(raw, ",") {
		st, err := ParseState(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Active reports whether the state counts toward wait estimates.
func (s State) Active() bool {
	return s == StateCreated || s == StateWaiting || s == StateConsulting
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Pending reports whether the appointment is still waiting to be called.
func (s State) Pending() bool {
	return s == StateCreated || s == StateWaiting
}

// Class is the counter class a token is drawn from.
type Class string

const (
	ClassEmergency Class = "emergency"
	ClassNormal    Class = "normal"
	// ClassAll is used when both priority classes share one counter.
	ClassAll Class = "all"
)

// ClassOf maps the emergency flag to its priority class.
func ClassOf(emergency bool) Class {
	if emergency {
		return ClassEmergency
	}
	return ClassNormal
}

// Patient is a person booking tokens at a clinic, unique per (phone, tenant).
type Patient struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Age       *int      `json:"age,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is one token in a doctor's daily queue.
type Appointment struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	TokenNumber     int
	TokenDate       calendar.Date
	TokenClass      Class
	State           State
	ScheduledStart  time.Time
	IsEmergency     bool
	IsPhoneBooking  bool
	IsLate          bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int

	// Patient is populated by list and get operations.
	Patient *Patient
}

// TokenDisplay renders the token the way it is called out in the clinic.
func (a *Appointment) TokenDisplay() string {
	return FormatToken(a.TokenNumber, a.IsEmergency)
}

// FormatToken renders emergency tokens with an "E" prefix.
func FormatToken(number int, emergency bool) string {
	if emergency {
		return fmt.Sprintf("E%d", number)
	}
	return fmt.Sprintf("%d", number)
}

func (a *Appointment) clone() *Appointment {
	cp := *a
	if a.Patient != nil {
		p := *a.Patient
		cp.Patient = &p
	}
	return &cp
}

// PatientDetails is the patient block of a booking request.
type PatientDetails struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Age    *int   `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
}

// Validate checks the required patient fields.
func (p *PatientDetails) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidPatient)
	}
	if p.Phone == "" {
		return fmt.Errorf("%w: phone required", ErrInvalidPatient)
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return fmt.Errorf("%w: age out of range", ErrInvalidPatient)
	}
	return nil
}

// BookingRequest is the body for creating a token. Priority flags are only
// honored for staff bookings.
type BookingRequest struct {
	DoctorID       uuid.UUID      `json:"doctor_id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	PreferredSlot  *time.Time     `json:"preferred_slot,omitempty"`
	Patient        PatientDetails `json:"patient"`
	IsEmergency    bool           `json:"is_emergency,omitempty"`
	IsPhoneBooking bool           `json:"is_phone_booking,omitempty"`
	IsLate         bool           `json:"is_late,omitempty"`
}

// StatusUpdate is the body for an admin status change.
type StatusUpdate struct {
	Status            string     `json:"status"`
	NextAppointmentID *uuid.UUID `json:"next_appointment_id,omitempty"`
}
