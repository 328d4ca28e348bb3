package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/caretoken/internal/calendar"
)

// Repository defines persistence for patients and appointments.
type Repository interface {
	Seeder

	// UpsertPatient finds the patient by (phone, tenant) or creates it. When
	// merge is true an existing record takes the submitted name, and age and
	// gender when they are set.
	UpsertPatient(ctx context.Context, tenantID uuid.UUID, details PatientDetails, merge bool) (*Patient, error)

	// CreateAppointment inserts a new token. It fails with ErrTokenConflict
	// when the partition already holds the number.
	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListDay returns every appointment of a doctor on a date, patients attached.
	ListDay(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]*Appointment, error)

	// Mutate locks the given appointments, passes the ones that exist to fn and
	// persists fn's changes atomically. Nothing is written when fn fails.
	Mutate(ctx context.Context, ids []uuid.UUID, fn func(found map[uuid.UUID]*Appointment) error) error
}

// InMemoryRepository keeps patients and appointments in process memory.
type InMemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]*Patient
	phones       map[string]uuid.UUID
	appointments map[uuid.UUID]*Appointment
	tokens       map[tokenSlot]uuid.UUID
}

type tokenSlot struct {
	key    PartitionKey
	number int
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients:     make(map[uuid.UUID]*Patient),
		phones:       make(map[string]uuid.UUID),
		appointments: make(map[uuid.UUID]*Appointment),
		tokens:       make(map[tokenSlot]uuid.UUID),
	}
}

func phoneKey(tenantID uuid.UUID, phone string) string {
	return tenantID.String() + "|" + phone
}

func (r *InMemoryRepository) UpsertPatient(ctx context.Context, tenantID uuid.UUID, details PatientDetails, merge bool) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.phones[phoneKey(tenantID, details.Phone)]; ok {
		p := r.patients[id]
		if merge {
			mergePatient(p, details)
		}
		out := *p
		return &out, nil
	}

	p := &Patient{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      details.Name,
		Phone:     details.Phone,
		Age:       details.Age,
		Gender:    details.Gender,
		CreatedAt: time.Now().UTC(),
	}
	r.patients[p.ID] = p
	r.phones[phoneKey(tenantID, details.Phone)] = p.ID
	out := *p
	return &out, nil
}

func mergePatient(p *Patient, details PatientDetails) {
	p.Name = details.Name
	if details.Age != nil {
		age := *details.Age
		p.Age = &age
	}
	if details.Gender != "" {
		p.Gender = details.Gender
	}
}

func (r *InMemoryRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := tokenSlot{
		key:    PartitionKey{DoctorID: appt.DoctorID, Date: appt.TokenDate, Class: appt.TokenClass},
		number: appt.TokenNumber,
	}
	if _, taken := r.tokens[slot]; taken {
		return ErrTokenConflict
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	stored := appt.clone()
	stored.Patient = nil
	r.appointments[appt.ID] = stored
	r.tokens[slot] = appt.ID
	if p, ok := r.patients[appt.PatientID]; ok {
		cp := *p
		appt.Patient = &cp
	}
	return nil
}

func (r *InMemoryRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return r.withPatient(a), nil
}

func (r *InMemoryRepository) ListDay(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.TokenDate == date {
			out = append(out, r.withPatient(a))
		}
	}
	sortTokens(out)
	return out, nil
}

func (r *InMemoryRepository) MaxTokenNumber(ctx context.Context, key PartitionKey) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, a := range r.appointments {
		if a.DoctorID == key.DoctorID && a.TokenDate == key.Date && a.TokenClass == key.Class && a.TokenNumber > max {
			max = a.TokenNumber
		}
	}
	return max, nil
}

func (r *InMemoryRepository) Mutate(ctx context.Context, ids []uuid.UUID, fn func(map[uuid.UUID]*Appointment) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := make(map[uuid.UUID]*Appointment, len(ids))
	for _, id := range ids {
		if a, ok := r.appointments[id]; ok {
			found[id] = r.withPatient(a)
		}
	}
	if err := fn(found); err != nil {
		return err
	}
	for id, a := range found {
		stored := a.clone()
		stored.Patient = nil
		r.appointments[id] = stored
	}
	return nil
}

// withPatient must be called with r.mu held.
func (r *InMemoryRepository) withPatient(a *Appointment) *Appointment {
	out := a.clone()
	if p, ok := r.patients[a.PatientID]; ok {
		cp := *p
		out.Patient = &cp
	}
	return out
}
