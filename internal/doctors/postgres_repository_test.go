package doctors

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryGetDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	id := uuid.New()
	tenantID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, tenant_id, name").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "specialty", "consult_duration_minutes", "is_consulting", "created_at"}).
			AddRow(id, tenantID, "Dr. Rao", "ENT", 10, false, now))

	doctor, err := repo.GetDoctor(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", doctor.Name)
	assert.Equal(t, tenantID, doctor.TenantID)
	assert.Equal(t, 10, doctor.ConsultDurationMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryGetDoctorNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, tenant_id, name").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetDoctor(context.Background(), id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestPostgresRepositoryListActiveSchedules(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	doctorID := uuid.New()
	mock.ExpectQuery("FROM schedules").
		WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "day_of_week", "start_time", "end_time", "is_active"}).
			AddRow(uuid.New(), doctorID, 1, "09:00:00", "12:00:00", true).
			AddRow(uuid.New(), doctorID, 1, "16:00:00", "19:00:00", true))

	schedules, err := repo.ListActiveSchedules(context.Background(), doctorID)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, tod(9, 0), schedules[0].StartTime)
	assert.Equal(t, tod(19, 0), schedules[1].EndTime)
}

func TestPostgresRepositoryReplaceDaySchedules(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	doctorID := uuid.New()
	sched := &Schedule{ID: uuid.New(), DoctorID: doctorID, DayOfWeek: 2, StartTime: tod(9, 0), EndTime: tod(12, 0), IsActive: true}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE schedules SET is_active = FALSE").
		WithArgs(doctorID, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO schedules").
		WithArgs(sched.ID, doctorID, 2, toPGTime(sched.StartTime), toPGTime(sched.EndTime), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceDaySchedules(context.Background(), doctorID, 2, []*Schedule{sched}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryUpdateDoctorNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	doctor := &Doctor{ID: uuid.New(), Name: "Dr. Rao", ConsultDurationMinutes: 10}
	mock.ExpectExec("UPDATE doctors").
		WithArgs(doctor.ID, doctor.Name, doctor.Specialty, doctor.ConsultDurationMinutes, doctor.IsConsulting).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.UpdateDoctor(context.Background(), doctor)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}
