package doctors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for doctor and schedule storage
type Repository interface {
	CreateDoctor(ctx context.Context, doctor *Doctor) error
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, tenantID uuid.UUID) ([]*Doctor, error)
	UpdateDoctor(ctx context.Context, doctor *Doctor) error

	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)
	// ListActiveSchedules returns active schedules ordered by day then start time.
	ListActiveSchedules(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error)
	// ReplaceDaySchedules deactivates the active sessions of day and inserts the given ones.
	ReplaceDaySchedules(ctx context.Context, doctorID uuid.UUID, day int, schedules []*Schedule) error
	UpdateSchedule(ctx context.Context, schedule *Schedule) error
}

// InMemoryRepository keeps doctors and schedules in process memory.
type InMemoryRepository struct {
	mu        sync.RWMutex
	doctors   map[uuid.UUID]*Doctor
	schedules map[uuid.UUID]*Schedule
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		doctors:   make(map[uuid.UUID]*Doctor),
		schedules: make(map[uuid.UUID]*Schedule),
	}
}

func (r *InMemoryRepository) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	if doctor.ID == uuid.Nil {
		doctor.ID = uuid.New()
	}
	if doctor.CreatedAt.IsZero() {
		doctor.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *doctor
	r.doctors[doctor.ID] = &stored
	return nil
}

func (r *InMemoryRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	out := *d
	return &out, nil
}

func (r *InMemoryRepository) ListDoctors(ctx context.Context, tenantID uuid.UUID) ([]*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Doctor
	for _, d := range r.doctors {
		if d.TenantID == tenantID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) UpdateDoctor(ctx context.Context, doctor *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[doctor.ID]; !ok {
		return ErrDoctorNotFound
	}
	stored := *doctor
	r.doctors[doctor.ID] = &stored
	return nil
}

func (r *InMemoryRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	out := *s
	return &out, nil
}

func (r *InMemoryRepository) ListActiveSchedules(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Schedule
	for _, s := range r.schedules {
		if s.DoctorID == doctorID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (r *InMemoryRepository) ReplaceDaySchedules(ctx context.Context, doctorID uuid.UUID, day int, schedules []*Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.DoctorID == doctorID && s.DayOfWeek == day {
			s.IsActive = false
		}
	}
	for _, s := range schedules {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		stored := *s
		r.schedules[s.ID] = &stored
	}
	return nil
}

func (r *InMemoryRepository) UpdateSchedule(ctx context.Context, schedule *Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[schedule.ID]; !ok {
		return ErrScheduleNotFound
	}
	stored := *schedule
	r.schedules[schedule.ID] = &stored
	return nil
}

func sortSchedules(s []*Schedule) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].DayOfWeek != s[j].DayOfWeek {
			return s[i].DayOfWeek < s[j].DayOfWeek
		}
		return s[i].StartTime < s[j].StartTime
	})
}
