package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caretoken/internal/audit"
	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/internal/doctors"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

type fixedLocator struct{ loc *time.Location }

func (f fixedLocator) Location(context.Context, uuid.UUID) (*time.Location, error) {
	return f.loc, nil
}

var testLoc = time.FixedZone("IST", 5*3600+1800)

// wednesday is 2026-10-14, a Wednesday (day index 3).
var wednesday = calendar.Date{Year: 2026, Month: time.October, Day: 14}

func at(h, m int) time.Time {
	return time.Date(2026, 10, 14, h, m, 0, 0, testLoc)
}

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	doctors  *doctors.Service
	audit    *audit.MemoryLog
	broker   *LocalBroker
	doctor   *doctors.Doctor
	tenantID uuid.UUID
	admin    context.Context
	clock    *time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	tenantID := uuid.New()
	admin := tenancy.WithPrincipal(context.Background(), tenancy.StaffPrincipal(uuid.New(), tenantID, tenancy.RoleAdmin))

	doctorSvc := doctors.NewService(doctors.NewInMemoryRepository(), fixedLocator{loc: testLoc}, logging.Default())
	doctor, err := doctorSvc.CreateDoctor(admin, tenantID, doctors.CreateDoctorRequest{Name: "Dr. Rao", ConsultDurationMinutes: 10})
	require.NoError(t, err)
	_, err = doctorSvc.ReplaceSchedules(admin, doctor.ID, []doctors.ScheduleInput{
		{DayOfWeek: 3, StartTime: calendar.NewTimeOfDay(9, 0, 0), EndTime: calendar.NewTimeOfDay(12, 0, 0)},
	})
	require.NoError(t, err)

	now := at(8, 0)
	repo := NewInMemoryRepository()
	log := audit.NewMemoryLog()
	broker := NewLocalBroker()
	svc := NewService(repo, NewMemoryAllocator(repo), doctorSvc, opts, logging.Default(),
		WithAuditLog(log),
		WithBroker(broker),
		WithClock(func() time.Time { return now }),
	)
	return &fixture{
		svc:      svc,
		repo:     repo,
		doctors:  doctorSvc,
		audit:    log,
		broker:   broker,
		doctor:   doctor,
		tenantID: tenantID,
		admin:    admin,
		clock:    &now,
	}
}

func (f *fixture) setNow(t time.Time) { *f.clock = t }

func (f *fixture) book(t *testing.T, name string, slot time.Time, emergency bool) *Item {
	t.Helper()
	item, err := f.svc.Book(f.admin, SourceAdmin, BookingRequest{
		DoctorID:      f.doctor.ID,
		PreferredSlot: &slot,
		Patient:       PatientDetails{Name: name, Phone: "+91" + uuid.NewString()[:10]},
		IsEmergency:   emergency,
	})
	require.NoError(t, err)
	return item
}

func appt(number int, emergency bool, state State, scheduled time.Time) *Appointment {
	return &Appointment{
		ID:             uuid.New(),
		TokenNumber:    number,
		IsEmergency:    emergency,
		State:          state,
		ScheduledStart: scheduled,
		TokenDate:      wednesday,
		TokenClass:     ClassOf(emergency),
		CreatedAt:      scheduled,
	}
}
