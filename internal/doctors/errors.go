package doctors

import "errors"

// DefaultConsultDurationMinutes applies when a doctor is created without a duration.
const DefaultConsultDurationMinutes = 10

var (
	// ErrDoctorNotFound is returned when a doctor is not found
	ErrDoctorNotFound = errors.New("doctor not found")

	// ErrScheduleNotFound is returned when a schedule is not found
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrInvalidName is returned when the doctor name is missing
	ErrInvalidName = errors.New("name is required")

	// ErrInvalidDuration is returned for a non-positive consult duration
	ErrInvalidDuration = errors.New("consult_duration_minutes must be positive")

	// ErrInvalidSchedule is returned for a malformed schedule window
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrScheduleOverlap is returned when two active sessions of a day overlap
	ErrScheduleOverlap = errors.New("schedule overlaps another session on the same day")
)
