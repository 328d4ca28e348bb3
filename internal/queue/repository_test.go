package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepositoryTokenUniqueness(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	doctorID := uuid.New()

	first := appt(1, false, StateCreated, at(9, 0))
	first.DoctorID = doctorID
	require.NoError(t, repo.CreateAppointment(ctx, first))

	dup := appt(1, false, StateCreated, at(9, 5))
	dup.DoctorID = doctorID
	assert.ErrorIs(t, repo.CreateAppointment(ctx, dup), ErrTokenConflict)

	emergency := appt(1, true, StateCreated, at(9, 5))
	emergency.DoctorID = doctorID
	require.NoError(t, repo.CreateAppointment(ctx, emergency), "emergency class has its own sequence")

	max, err := repo.MaxTokenNumber(ctx, PartitionKey{DoctorID: doctorID, Date: wednesday, Class: ClassNormal})
	require.NoError(t, err)
	assert.Equal(t, 1, max)
}

func TestInMemoryRepositoryUpsertPatientIsPerTenant(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	details := PatientDetails{Name: "Asha", Phone: "+919800000001"}

	a, err := repo.UpsertPatient(ctx, uuid.New(), details, true)
	require.NoError(t, err)
	b, err := repo.UpsertPatient(ctx, uuid.New(), details, true)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	gender := "female"
	again, err := repo.UpsertPatient(ctx, a.TenantID, PatientDetails{Name: "Asha R", Phone: details.Phone, Gender: gender}, true)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, "Asha R", again.Name)
	assert.Equal(t, gender, again.Gender)
}

func TestInMemoryRepositoryMutateRollsBackOnError(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	a := appt(1, false, StateCreated, at(9, 0))
	require.NoError(t, repo.CreateAppointment(ctx, a))

	boom := errors.New("boom")
	err := repo.Mutate(ctx, []uuid.UUID{a.ID}, func(found map[uuid.UUID]*Appointment) error {
		found[a.ID].State = StateCancelled
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := repo.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, stored.State)

	require.NoError(t, repo.Mutate(ctx, []uuid.UUID{a.ID, uuid.New()}, func(found map[uuid.UUID]*Appointment) error {
		assert.Len(t, found, 1)
		found[a.ID].State = StateWaiting
		return nil
	}))
	stored, err = repo.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, stored.State)
}

func TestInMemoryRepositoryListDayIsOrdered(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	doctorID := uuid.New()
	for _, a := range []*Appointment{
		appt(3, false, StateCreated, at(9, 0)),
		appt(1, false, StateCreated, at(9, 0)),
		appt(1, true, StateCreated, at(9, 0)),
	} {
		a.DoctorID = doctorID
		require.NoError(t, repo.CreateAppointment(ctx, a))
	}
	other := appt(2, false, StateCreated, at(9, 0))
	other.DoctorID = doctorID
	other.TokenDate = wednesday.AddDays(1)
	require.NoError(t, repo.CreateAppointment(ctx, other))

	day, err := repo.ListDay(ctx, doctorID, wednesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "1", "3"}, tokens(day))

	_, err = repo.GetAppointment(ctx, uuid.New())
	assert.True(t, IsNotFound(err))
}
