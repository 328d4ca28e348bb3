package doctors

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/calendar"
)

// Doctor is a clinician whose patients are served in token order.
type Doctor struct {
	ID                     uuid.UUID `json:"id"`
	TenantID               uuid.UUID `json:"tenant_id"`
	Name                   string    `json:"name"`
	Specialty              string    `json:"specialty,omitempty"`
	ConsultDurationMinutes int       `json:"consult_duration_minutes"`
	IsConsulting           bool      `json:"is_consulting"`
	CreatedAt              time.Time `json:"created_at"`
}

// ConsultDuration returns the per-patient consult time.
func (d *Doctor) ConsultDuration() time.Duration {
	return time.Duration(d.ConsultDurationMinutes) * time.Minute
}

// Schedule is one recurring weekly session of a doctor.
type Schedule struct {
	ID        uuid.UUID          `json:"id"`
	DoctorID  uuid.UUID          `json:"doctor_id"`
	DayOfWeek int                `json:"day_of_week"` // 0=Sunday..6=Saturday
	StartTime calendar.TimeOfDay `json:"start_time"`
	EndTime   calendar.TimeOfDay `json:"end_time"`
	IsActive  bool               `json:"is_active"`
}

// Window implements calendar.Window.
func (s *Schedule) Window() (calendar.TimeOfDay, calendar.TimeOfDay) {
	return s.StartTime, s.EndTime
}

func (s *Schedule) overlaps(other *Schedule) bool {
	return s.StartTime < other.EndTime && other.StartTime < s.EndTime
}

// CreateDoctorRequest is the body for registering a doctor.
type CreateDoctorRequest struct {
	Name                   string `json:"name"`
	Specialty              string `json:"specialty"`
	ConsultDurationMinutes int    `json:"consult_duration_minutes"`
}

// Validate checks the request, applying the default duration when unset.
func (r *CreateDoctorRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.ConsultDurationMinutes == 0 {
		r.ConsultDurationMinutes = DefaultConsultDurationMinutes
	}
	if r.ConsultDurationMinutes < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// ScheduleInput is one session in a schedule replacement request.
type ScheduleInput struct {
	DayOfWeek int                `json:"day_of_week"`
	StartTime calendar.TimeOfDay `json:"start_time"`
	EndTime   calendar.TimeOfDay `json:"end_time"`
}

// SlotWindow is a bookable session on a concrete date.
type SlotWindow struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Capacity   int       `json:"capacity"`
}

// DailySlots lists the sessions of one date.
type DailySlots struct {
	Date  calendar.Date `json:"date"`
	Slots []SlotWindow  `json:"slots"`
}

// WeeklySlots is the seven-day availability view of a doctor.
type WeeklySlots struct {
	DoctorID   uuid.UUID     `json:"doctor_id"`
	StartDate  calendar.Date `json:"start_date"`
	EndDate    calendar.Date `json:"end_date"`
	DailySlots []DailySlots  `json:"daily_slots"`
}
