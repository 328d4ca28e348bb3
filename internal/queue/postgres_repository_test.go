package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentColumns = []string{
	"id", "tenant_id", "doctor_id", "patient_id", "token_number", "token_date",
	"token_class", "state", "scheduled_start", "is_emergency", "is_phone_booking",
	"is_late", "created_at", "started_at", "ended_at", "duration_seconds",
	"name", "phone", "age", "gender",
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresRepositoryWithQuerier(mock), mock
}

func appointmentRow(rows *pgxmock.Rows, a *Appointment, state State, started *time.Time) *pgxmock.Rows {
	age := 30
	return rows.AddRow(
		a.ID, a.TenantID, a.DoctorID, a.PatientID, a.TokenNumber, pgDate(a.TokenDate),
		string(a.TokenClass), string(state), a.ScheduledStart, a.IsEmergency, false,
		false, a.CreatedAt, started, (*time.Time)(nil), (*int)(nil),
		"Asha", "+919800000001", &age, "female",
	)
}

func TestPostgresUpsertPatient(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenantID := uuid.New()
	patientID := uuid.New()
	created := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), tenantID, "Asha", "+919800000001", (*int)(nil), "", true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "phone", "age", "gender", "created_at"}).
			AddRow(patientID, tenantID, "Asha", "+919800000001", (*int)(nil), "", created))

	p, err := repo.UpsertPatient(context.Background(), tenantID, PatientDetails{Name: "Asha", Phone: "+919800000001"}, true)
	require.NoError(t, err)
	assert.Equal(t, patientID, p.ID)
	assert.Nil(t, p.Age)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppointmentMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := appt(4, false, StateCreated, at(9, 0))

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.TenantID, a.DoctorID, a.PatientID, 4, pgDate(wednesday), "normal",
			"created", a.ScheduledStart, false, false, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreateAppointment(context.Background(), a)
	assert.ErrorIs(t, err, ErrTokenConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := appt(1, true, StateCreated, at(9, 0))
	created := time.Date(2026, 10, 14, 2, 30, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.TenantID, a.DoctorID, a.PatientID, 1, pgDate(wednesday), "emergency",
			"created", a.ScheduledStart, true, false, false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	require.NoError(t, repo.CreateAppointment(context.Background(), a))
	assert.Equal(t, created, a.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := appt(2, false, StateCreated, at(9, 0))

	mock.ExpectQuery("FROM appointments a").
		WithArgs(a.ID).
		WillReturnRows(appointmentRow(pgxmock.NewRows(appointmentColumns), a, StateWaiting, nil))

	got, err := repo.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, got.State)
	assert.Equal(t, wednesday, got.TokenDate)
	assert.Equal(t, ClassNormal, got.TokenClass)
	require.NotNil(t, got.Patient)
	assert.Equal(t, "Asha", got.Patient.Name)
	assert.Equal(t, a.PatientID, got.Patient.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAppointmentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	mock.ExpectQuery("FROM appointments a").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentColumns))

	_, err := repo.GetAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPostgresListDay(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID := uuid.New()
	first := appt(1, false, StateCreated, at(9, 0))
	second := appt(2, false, StateCreated, at(9, 10))
	rows := pgxmock.NewRows(appointmentColumns)
	appointmentRow(rows, first, StateCreated, nil)
	appointmentRow(rows, second, StateCreated, nil)

	mock.ExpectQuery("FROM appointments a").
		WithArgs(doctorID, pgDate(wednesday)).
		WillReturnRows(rows)

	day, err := repo.ListDay(context.Background(), doctorID, wednesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, tokens(day))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMaxTokenNumber(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := PartitionKey{DoctorID: uuid.New(), Date: wednesday, Class: ClassAll}
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(key.DoctorID, pgDate(wednesday), "all").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(9))

	max, err := repo.MaxTokenNumber(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 9, max)
}

func TestPostgresMutateCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := appt(1, false, StateCreated, at(9, 0))
	now := at(9, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF a").
		WithArgs([]uuid.UUID{a.ID}).
		WillReturnRows(appointmentRow(pgxmock.NewRows(appointmentColumns), a, StateCreated, nil))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(a.ID, "consulting", pgxmock.AnyArg(), (*time.Time)(nil), (*int)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.Mutate(context.Background(), []uuid.UUID{a.ID}, func(found map[uuid.UUID]*Appointment) error {
		return Transition(found[a.ID], StateConsulting, now)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutateRollsBackOnCallbackError(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := appt(1, false, StateCreated, at(9, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF a").
		WithArgs([]uuid.UUID{a.ID}).
		WillReturnRows(appointmentRow(pgxmock.NewRows(appointmentColumns), a, StateCompleted, nil))
	mock.ExpectRollback()

	err := repo.Mutate(context.Background(), []uuid.UUID{a.ID}, func(found map[uuid.UUID]*Appointment) error {
		return Transition(found[a.ID], StateCancelled, time.Now())
	})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	require.NoError(t, mock.ExpectationsWereMet())
}
