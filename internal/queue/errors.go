package queue

import (
	"errors"
	"fmt"

	"github.com/wolfman30/caretoken/internal/doctors"
)

// ErrNotFound is the class of every lookup failure. Use errors.Is against it
// or against the specific sentinel.
var ErrNotFound = errors.New("not found")

var (
	// ErrAppointmentNotFound is returned when an appointment id does not exist.
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	// ErrNextAppointmentNotFound is returned when the cascaded next appointment does not exist.
	ErrNextAppointmentNotFound = fmt.Errorf("next appointment %w", ErrNotFound)
)

var (
	// ErrInvalidState is returned for an unknown state name.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition is returned when the state machine forbids a move.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidDate is returned for a malformed booking or query date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidPatient is returned when patient details are missing or malformed.
	ErrInvalidPatient = errors.New("invalid patient details")

	// ErrInvalidNextAppointment is returned when the next appointment is the same
	// appointment or belongs to another doctor.
	ErrInvalidNextAppointment = errors.New("next appointment must be a different appointment of the same doctor")
)

var (
	// ErrCrossTenant is returned when a request mixes entities of different clinics.
	ErrCrossTenant = errors.New("cross-tenant reference")

	// ErrIntegrity is returned when an appointment references a doctor that no longer exists.
	ErrIntegrity = errors.New("appointment references a missing doctor")

	// ErrTokenConflict is returned when an insert collides on the token partition.
	ErrTokenConflict = errors.New("token number already taken")
)

// IsNotFound reports whether err is any not-found error, including doctor and schedule lookups.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, doctors.ErrDoctorNotFound) ||
		errors.Is(err, doctors.ErrScheduleNotFound)
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidState,
		ErrInvalidTransition,
		ErrInvalidDate,
		ErrInvalidPatient,
		ErrInvalidNextAppointment,
		doctors.ErrInvalidSchedule,
		doctors.ErrScheduleOverlap,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
