package doctors

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

var tracer = otel.Tracer("caretoken.internal.doctors")

// Locator resolves the timezone a tenant's clinic operates in.
type Locator interface {
	Location(ctx context.Context, tenantID uuid.UUID) (*time.Location, error)
}

// Service holds doctor and schedule business rules.
type Service struct {
	repo    Repository
	locator Locator
	logger  *logging.Logger
	now     func() time.Time
}

// NewService creates a doctor service.
func NewService(repo Repository, locator Locator, logger *logging.Logger) *Service {
	if repo == nil {
		panic("doctors: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		locator: locator,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateDoctor registers a doctor under tenantID. Caller must be an admin of the tenant.
func (s *Service) CreateDoctor(ctx context.Context, tenantID uuid.UUID, req CreateDoctorRequest) (*Doctor, error) {
	if err := tenancy.PrincipalFromContext(ctx).RequireAdminOf(tenantID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	doctor := &Doctor{
		TenantID:               tenantID,
		Name:                   req.Name,
		Specialty:              req.Specialty,
		ConsultDurationMinutes: req.ConsultDurationMinutes,
	}
	if err := s.repo.CreateDoctor(ctx, doctor); err != nil {
		return nil, err
	}
	s.logger.Info("doctor created", "doctor_id", doctor.ID, "tenant_id", tenantID)
	return doctor, nil
}

// GetDoctor returns a doctor by id.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctor(ctx, id)
}

// ListDoctors returns the doctors of a clinic.
func (s *Service) ListDoctors(ctx context.Context, tenantID uuid.UUID) ([]*Doctor, error) {
	return s.repo.ListDoctors(ctx, tenantID)
}

// UpdateConsultDuration changes the per-patient consult time. Admin only.
func (s *Service) UpdateConsultDuration(ctx context.Context, id uuid.UUID, minutes int) (*Doctor, error) {
	if minutes <= 0 {
		return nil, ErrInvalidDuration
	}
	doctor, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireAdminOf(doctor.TenantID); err != nil {
		return nil, err
	}
	doctor.ConsultDurationMinutes = minutes
	if err := s.repo.UpdateDoctor(ctx, doctor); err != nil {
		return nil, err
	}
	s.logger.Info("consult duration updated", "doctor_id", id, "minutes", minutes)
	return doctor, nil
}

// SetConsulting flips the informational consulting flag. Any staff of the tenant may do this.
func (s *Service) SetConsulting(ctx context.Context, id uuid.UUID, consulting bool) (*Doctor, error) {
	doctor, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireStaffOf(doctor.TenantID); err != nil {
		return nil, err
	}
	doctor.IsConsulting = consulting
	if err := s.repo.UpdateDoctor(ctx, doctor); err != nil {
		return nil, err
	}
	return doctor, nil
}

// ReplaceSchedules replaces the sessions of every day named in inputs. Existing
// active sessions on those days are deactivated. All inputs are validated
// before anything is written.
func (s *Service) ReplaceSchedules(ctx context.Context, doctorID uuid.UUID, inputs []ScheduleInput) ([]*Schedule, error) {
	ctx, span := tracer.Start(ctx, "doctors.ReplaceSchedules")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor.id", doctorID.String()),
		attribute.Int("schedules.count", len(inputs)),
	)

	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireAdminOf(doctor.TenantID); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one session required", ErrInvalidSchedule)
	}

	byDay := make(map[int][]*Schedule)
	for _, in := range inputs {
		sched := &Schedule{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			DayOfWeek: in.DayOfWeek,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			IsActive:  true,
		}
		if err := validateWindow(sched); err != nil {
			return nil, err
		}
		byDay[in.DayOfWeek] = append(byDay[in.DayOfWeek], sched)
	}

	days := make([]int, 0, len(byDay))
	for day, sessions := range byDay {
		if err := checkOverlap(sessions); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	sort.Ints(days)

	var out []*Schedule
	for _, day := range days {
		if err := s.repo.ReplaceDaySchedules(ctx, doctorID, day, byDay[day]); err != nil {
			return nil, err
		}
		out = append(out, byDay[day]...)
	}
	sortSchedules(out)
	s.logger.Info("schedules replaced", "doctor_id", doctorID, "days", days)
	return out, nil
}

// UpdateSchedule changes the window of one schedule. Nil bounds keep their current value.
func (s *Service) UpdateSchedule(ctx context.Context, scheduleID uuid.UUID, start, end *calendar.TimeOfDay) (*Schedule, error) {
	sched, doctor, err := s.scheduleForAdmin(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if start != nil {
		sched.StartTime = *start
	}
	if end != nil {
		sched.EndTime = *end
	}
	if err := validateWindow(sched); err != nil {
		return nil, err
	}
	if sched.IsActive {
		active, err := s.repo.ListActiveSchedules(ctx, doctor.ID)
		if err != nil {
			return nil, err
		}
		for _, other := range active {
			if other.ID != sched.ID && other.DayOfWeek == sched.DayOfWeek && other.overlaps(sched) {
				return nil, ErrScheduleOverlap
			}
		}
	}
	if err := s.repo.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule updated", "schedule_id", scheduleID, "start", sched.StartTime, "end", sched.EndTime)
	return sched, nil
}

// DeactivateSchedule soft-deletes a schedule.
func (s *Service) DeactivateSchedule(ctx context.Context, scheduleID uuid.UUID) (*Schedule, error) {
	sched, _, err := s.scheduleForAdmin(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !sched.IsActive {
		return sched, nil
	}
	sched.IsActive = false
	if err := s.repo.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule deactivated", "schedule_id", scheduleID)
	return sched, nil
}

// DaySchedules returns the doctor's active sessions on the weekday of date, ordered by start.
func (s *Service) DaySchedules(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]*Schedule, error) {
	all, err := s.repo.ListActiveSchedules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	day := calendar.DayIndex(date)
	var out []*Schedule
	for _, sched := range all {
		if sched.DayOfWeek == day {
			out = append(out, sched)
		}
	}
	return out, nil
}

// Location returns the clinic timezone of a doctor.
func (s *Service) Location(ctx context.Context, doctor *Doctor) (*time.Location, error) {
	if s.locator == nil {
		return time.UTC, nil
	}
	loc, err := s.locator.Location(ctx, doctor.TenantID)
	if err != nil {
		return nil, fmt.Errorf("doctors: resolve clinic location: %w", err)
	}
	return loc, nil
}

// WeeklySlots lists seven days of bookable windows starting at start. A zero
// start means today in the clinic's timezone.
func (s *Service) WeeklySlots(ctx context.Context, doctorID uuid.UUID, start calendar.Date) (*WeeklySlots, error) {
	ctx, span := tracer.Start(ctx, "doctors.WeeklySlots")
	defer span.End()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))

	doctor, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	loc, err := s.Location(ctx, doctor)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = calendar.DateOf(s.now().In(loc))
	}
	schedules, err := s.repo.ListActiveSchedules(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	week := &WeeklySlots{
		DoctorID:   doctorID,
		StartDate:  start,
		EndDate:    start.AddDays(6),
		DailySlots: make([]DailySlots, 0, 7),
	}
	for i := 0; i < 7; i++ {
		date := start.AddDays(i)
		day := DailySlots{Date: date, Slots: []SlotWindow{}}
		index := calendar.DayIndex(date)
		for _, sched := range schedules {
			if sched.DayOfWeek != index {
				continue
			}
			day.Slots = append(day.Slots, SlotWindow{
				ScheduleID: sched.ID,
				StartTime:  date.At(sched.StartTime, loc),
				EndTime:    date.At(sched.EndTime, loc),
				Capacity:   capacity(sched, doctor.ConsultDurationMinutes),
			})
		}
		week.DailySlots = append(week.DailySlots, day)
	}
	return week, nil
}

func (s *Service) scheduleForAdmin(ctx context.Context, scheduleID uuid.UUID) (*Schedule, *Doctor, error) {
	sched, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	doctor, err := s.repo.GetDoctor(ctx, sched.DoctorID)
	if err != nil {
		return nil, nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireAdminOf(doctor.TenantID); err != nil {
		return nil, nil, err
	}
	return sched, doctor, nil
}

func validateWindow(s *Schedule) error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be 0..6", ErrInvalidSchedule)
	}
	if !s.StartTime.Valid() || !s.EndTime.Valid() {
		return fmt.Errorf("%w: time outside of day", ErrInvalidSchedule)
	}
	if s.StartTime >= s.EndTime {
		return fmt.Errorf("%w: start_time must be before end_time", ErrInvalidSchedule)
	}
	return nil
}

func checkOverlap(sessions []*Schedule) error {
	sortSchedules(sessions)
	for i := 1; i < len(sessions); i++ {
		if sessions[i-1].overlaps(sessions[i]) {
			return ErrScheduleOverlap
		}
	}
	return nil
}

func capacity(s *Schedule, durationMinutes int) int {
	if durationMinutes <= 0 {
		return 0
	}
	return (s.EndTime.Minutes() - s.StartTime.Minutes()) / durationMinutes
}
