package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/caretoken/internal/audit"
	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/internal/doctors"
	"github.com/wolfman30/caretoken/internal/observability/metrics"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

var tracer = otel.Tracer("caretoken.internal.queue")

// Booking sources.
const (
	SourcePatient = "patient"
	SourceAdmin   = "admin"
)

// Directory is the doctor lookup the queue depends on.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctors.Doctor, error)
	DaySchedules(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]*doctors.Schedule, error)
	Location(ctx context.Context, doctor *doctors.Doctor) (*time.Location, error)
}

// Item is an appointment with its point-in-time wait estimate.
type Item struct {
	Appointment *Appointment
	WaitSeconds int
}

// View is a doctor's queue on one date.
type View struct {
	Doctor  *doctors.Doctor
	Date    calendar.Date
	Slot    *doctors.Schedule
	Queue   []Item
	OnHold  []Item
	Summary Summary
}

// Options carries the configurable booking policies.
type Options struct {
	Policy        Policy
	MergeOnRebook bool
	// Backend labels allocation metrics.
	Backend string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithAuditLog records every mutation in log.
func WithAuditLog(log audit.Log) ServiceOption {
	return func(s *Service) { s.audit = log }
}

// WithBroker publishes queue events for live boards.
func WithBroker(b Broker) ServiceOption {
	return func(s *Service) { s.broker = b }
}

// WithMetrics records queue metrics.
func WithMetrics(m *metrics.QueueMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// Service runs booking, status updates and queue reads.
type Service struct {
	repo      Repository
	allocator Allocator
	directory Directory
	opts      Options
	audit     audit.Log
	broker    Broker
	metrics   *metrics.QueueMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService creates the queue service.
func NewService(repo Repository, allocator Allocator, directory Directory, opts Options, logger *logging.Logger, options ...ServiceOption) *Service {
	if repo == nil || allocator == nil || directory == nil {
		panic("queue: repository, allocator and directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Policy.Partition == "" {
		opts.Policy.Partition = PartitionPerClass
	}
	if opts.Backend == "" {
		opts.Backend = "memory"
	}
	s := &Service{
		repo:      repo,
		allocator: allocator,
		directory: directory,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Book allocates a token. Patient bookings never carry priority flags; admin
// bookings require a staff principal of the doctor's clinic.
func (s *Service) Book(ctx context.Context, source string, req BookingRequest) (*Item, error) {
	ctx, span := tracer.Start(ctx, "queue.Book")
	defer span.End()
	span.SetAttributes(
		attribute.String("queue.source", source),
		attribute.String("doctor.id", req.DoctorID.String()),
	)

	principal := tenancy.PrincipalFromContext(ctx)
	if source == SourceAdmin {
		if principal.Kind != tenancy.Staff {
			if principal.Kind == tenancy.Anonymous {
				return nil, tenancy.ErrUnauthenticated
			}
			return nil, tenancy.ErrForbidden
		}
	} else {
		req.IsEmergency, req.IsPhoneBooking, req.IsLate = false, false, false
		// A signed-in patient books under their own phone only.
		if principal.Kind == tenancy.Patient {
			phone := strings.TrimSpace(req.Patient.Phone)
			switch {
			case phone == "":
				req.Patient.Phone = principal.Phone
			case phone != principal.Phone:
				return nil, fmt.Errorf("%w: patient phone does not match session", tenancy.ErrForbidden)
			}
		}
	}
	if err := req.Patient.Validate(); err != nil {
		return nil, err
	}

	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if req.TenantID != uuid.Nil && req.TenantID != doctor.TenantID {
		return nil, ErrCrossTenant
	}
	if source == SourceAdmin {
		if err := principal.RequireStaffOf(doctor.TenantID); err != nil {
			return nil, err
		}
	}

	loc, err := s.directory.Location(ctx, doctor)
	if err != nil {
		return nil, err
	}
	now := s.now().In(loc)
	scheduled := now
	if req.PreferredSlot != nil {
		scheduled = req.PreferredSlot.In(loc)
	}
	date := calendar.DateOf(scheduled)
	if date.Before(calendar.DateOf(now)) {
		return nil, fmt.Errorf("%w: %s is in the past", ErrInvalidDate, date)
	}

	patient, err := s.repo.UpsertPatient(ctx, doctor.TenantID, req.Patient, s.opts.MergeOnRebook)
	if err != nil {
		return nil, err
	}

	key := s.opts.Policy.Key(doctor.ID, date, req.IsEmergency)
	start := time.Now()
	token, err := s.allocator.Allocate(ctx, key)
	s.metrics.ObserveAllocation(s.opts.Backend, time.Since(start).Seconds())
	if err != nil {
		s.metrics.ObserveBooking(source, string(ClassOf(req.IsEmergency)), "error")
		return nil, err
	}

	appt := &Appointment{
		ID:             uuid.New(),
		TenantID:       doctor.TenantID,
		DoctorID:       doctor.ID,
		PatientID:      patient.ID,
		TokenNumber:    token,
		TokenDate:      date,
		TokenClass:     key.Class,
		State:          StateCreated,
		ScheduledStart: scheduled.UTC(),
		IsEmergency:    req.IsEmergency,
		IsPhoneBooking: req.IsPhoneBooking,
		IsLate:         req.IsLate,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		outcome := "error"
		if errors.Is(err, ErrTokenConflict) {
			outcome = "conflict"
			s.metrics.ObserveConflict(s.opts.Backend)
			s.logger.Warn("token partition conflict", "partition", key.String(), "token", token)
		}
		s.metrics.ObserveBooking(source, string(ClassOf(req.IsEmergency)), outcome)
		return nil, err
	}
	appt.Patient = patient
	s.metrics.ObserveBooking(source, string(ClassOf(req.IsEmergency)), "ok")
	s.logger.Info("token allocated",
		"doctor_id", doctor.ID,
		"date", date.String(),
		"token", appt.TokenDisplay(),
		"source", source,
	)
	span.SetAttributes(attribute.Int("queue.token", token))

	s.record(ctx, appt, audit.ActionBooked, map[string]any{
		"token":  appt.TokenDisplay(),
		"source": source,
	})
	s.publish(ctx, EventBooked, appt)
	return s.item(ctx, doctor, appt)
}

// Get returns one appointment with its live estimate.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	doctor, err := s.doctorOf(ctx, appt)
	if err != nil {
		return nil, err
	}
	return s.item(ctx, doctor, appt)
}

// UpdateStatus applies an explicit status change and, when next is set, moves
// that appointment into consultation in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*Item, error) {
	ctx, span := tracer.Start(ctx, "queue.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("queue.status", update.Status),
	)

	to, err := ParseState(update.Status)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireStaffOf(current.TenantID); err != nil {
		return nil, err
	}

	ids := []uuid.UUID{id}
	var nextID uuid.UUID
	if update.NextAppointmentID != nil {
		nextID = *update.NextAppointmentID
		if nextID == id {
			return nil, ErrInvalidNextAppointment
		}
		ids = append(ids, nextID)
	}

	var updated, next *Appointment
	var from, nextFrom State
	now := s.now().UTC()
	err = s.repo.Mutate(ctx, ids, func(found map[uuid.UUID]*Appointment) error {
		appt, ok := found[id]
		if !ok {
			return ErrAppointmentNotFound
		}
		from = appt.State
		if err := Transition(appt, to, now); err != nil {
			return err
		}
		updated = appt
		if nextID == uuid.Nil {
			return nil
		}
		n, ok := found[nextID]
		if !ok {
			return ErrNextAppointmentNotFound
		}
		if n.DoctorID != appt.DoctorID || n.TenantID != appt.TenantID {
			return ErrInvalidNextAppointment
		}
		nextFrom = n.State
		if err := CallNext(n, now); err != nil {
			return err
		}
		next = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(to))
	s.logger.Info("appointment status updated", "appointment_id", id, "from", from, "to", to)
	s.record(ctx, updated, audit.ActionStatusUpdated, map[string]any{"from": from, "to": to})
	s.publish(ctx, EventStatusChanged, updated)
	if next != nil {
		s.metrics.ObserveTransition(string(nextFrom), string(StateConsulting))
		s.logger.Info("next appointment called", "appointment_id", next.ID, "token", next.TokenDisplay())
		s.record(ctx, next, audit.ActionCalledNext, map[string]any{
			"from":        nextFrom,
			"to":          StateConsulting,
			"previous_id": id,
		})
		s.publish(ctx, EventStatusChanged, next)
	}

	doctor, err := s.doctorOf(ctx, updated)
	if err != nil {
		return nil, err
	}
	return s.item(ctx, doctor, updated)
}

// ToggleHold parks a created appointment or releases a held one.
func (s *Service) ToggleHold(ctx context.Context, id uuid.UUID) (*Item, error) {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireStaffOf(current.TenantID); err != nil {
		return nil, err
	}

	var updated *Appointment
	var from State
	err = s.repo.Mutate(ctx, []uuid.UUID{id}, func(found map[uuid.UUID]*Appointment) error {
		appt, ok := found[id]
		if !ok {
			return ErrAppointmentNotFound
		}
		from = appt.State
		if err := ToggleHold(appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(updated.State))
	s.logger.Info("appointment hold toggled", "appointment_id", id, "state", updated.State)
	s.record(ctx, updated, audit.ActionHoldToggled, map[string]any{"from": from, "to": updated.State})
	s.publish(ctx, EventHoldToggled, updated)

	doctor, err := s.doctorOf(ctx, updated)
	if err != nil {
		return nil, err
	}
	return s.item(ctx, doctor, updated)
}

// Queue selects the visible tokens of a doctor on date. A zero date means
// today in the clinic's timezone. filter narrows the result to the given states.
func (s *Service) Queue(ctx context.Context, doctorID uuid.UUID, date calendar.Date, filter []State) (*View, error) {
	ctx, span := tracer.Start(ctx, "queue.Queue")
	defer span.End()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))

	doctor, err := s.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	loc, err := s.directory.Location(ctx, doctor)
	if err != nil {
		return nil, err
	}
	now := s.now().In(loc)
	if date.IsZero() {
		date = calendar.DateOf(now)
	}

	schedules, err := s.directory.DaySchedules(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	day, err := s.repo.ListDay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	view := &View{Doctor: doctor, Date: date}
	var window calendar.Window
	if slot, ok := calendar.ActiveSlot(schedules, date, now); ok {
		view.Slot = slot
		window = slot
	}

	full := Select(day, window, loc, nil)
	view.Summary = Summarize(day, full)
	sel := full
	if len(filter) > 0 {
		sel = Select(day, window, loc, filter)
	}

	view.Queue = s.items(day, doctor, sel.Queue)
	view.OnHold = s.items(day, doctor, sel.OnHold)
	span.SetAttributes(
		attribute.Int("queue.visible", len(view.Queue)),
		attribute.Int("queue.on_hold", len(view.OnHold)),
	)
	return view, nil
}

// Status returns the compact board of a doctor's queue.
func (s *Service) Status(ctx context.Context, doctorID uuid.UUID, date calendar.Date) (Summary, error) {
	view, err := s.Queue(ctx, doctorID, date, nil)
	if err != nil {
		return Summary{}, err
	}
	return view.Summary, nil
}

// Estimate returns the current wait estimate in seconds for an appointment.
func (s *Service) Estimate(ctx context.Context, id uuid.UUID) (int, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return item.WaitSeconds, nil
}

// History lists an appointment's audit trail. Staff only.
func (s *Service) History(ctx context.Context, id uuid.UUID, actions []audit.Action) ([]audit.Entry, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenancy.PrincipalFromContext(ctx).RequireStaffOf(appt.TenantID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	entries, err := s.audit.List(ctx, id, actions)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

// Subscribe exposes the broker to live boards.
func (s *Service) Subscribe(ctx context.Context, doctorID uuid.UUID) (<-chan Event, func(), bool) {
	if s.broker == nil {
		return nil, func() {}, false
	}
	ch, cancel := s.broker.Subscribe(ctx, doctorID)
	return ch, cancel, true
}

func (s *Service) doctorOf(ctx context.Context, appt *Appointment) (*doctors.Doctor, error) {
	doctor, err := s.directory.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		if errors.Is(err, doctors.ErrDoctorNotFound) {
			s.logger.Error("appointment references missing doctor", "appointment_id", appt.ID, "doctor_id", appt.DoctorID)
			return nil, ErrIntegrity
		}
		return nil, err
	}
	return doctor, nil
}

func (s *Service) item(ctx context.Context, doctor *doctors.Doctor, appt *Appointment) (*Item, error) {
	day, err := s.repo.ListDay(ctx, appt.DoctorID, appt.TokenDate)
	if err != nil {
		return nil, err
	}
	return &Item{
		Appointment: appt,
		WaitSeconds: EstimateWait(day, appt.TokenNumber, appt.IsEmergency, doctor.ConsultDurationMinutes),
	}, nil
}

func (s *Service) items(day []*Appointment, doctor *doctors.Doctor, appts []*Appointment) []Item {
	out := make([]Item, 0, len(appts))
	for _, a := range appts {
		out = append(out, Item{
			Appointment: a,
			WaitSeconds: EstimateWait(day, a.TokenNumber, a.IsEmergency, doctor.ConsultDurationMinutes),
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, appt *Appointment, action audit.Action, payload map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActorID:       tenancy.PrincipalFromContext(ctx).UserID,
		TenantID:      appt.TenantID,
		AppointmentID: appt.ID,
		Action:        action,
		Payload:       audit.Payload(payload),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "appointment_id", appt.ID, "action", action, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, appt *Appointment) {
	if s.broker == nil {
		return
	}
	evt := Event{
		Type:          kind,
		DoctorID:      appt.DoctorID,
		Date:          appt.TokenDate,
		AppointmentID: appt.ID,
		State:         appt.State,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.broker.Publish(ctx, evt); err != nil {
		s.logger.Warn("queue event publish failed", "doctor_id", appt.DoctorID, "error", err)
	}
}
