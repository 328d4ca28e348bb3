package doctors

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/caretoken/internal/calendar"
	"github.com/wolfman30/caretoken/internal/tenancy"
	"github.com/wolfman30/caretoken/pkg/logging"
)

type fixedLocator struct{ loc *time.Location }

func (f fixedLocator) Location(context.Context, uuid.UUID) (*time.Location, error) {
	return f.loc, nil
}

func tod(h, m int) calendar.TimeOfDay { return calendar.NewTimeOfDay(h, m, 0) }

func newTestService(t *testing.T) (*Service, uuid.UUID, context.Context) {
	t.Helper()
	svc := NewService(NewInMemoryRepository(), fixedLocator{loc: time.UTC}, logging.Default())
	tenantID := uuid.New()
	ctx := tenancy.WithPrincipal(context.Background(), tenancy.StaffPrincipal(uuid.New(), tenantID, tenancy.RoleAdmin))
	return svc, tenantID, ctx
}

func TestCreateDoctorAppliesDefaultDuration(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)

	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)
	assert.Equal(t, DefaultConsultDurationMinutes, doctor.ConsultDurationMinutes)
	assert.Equal(t, tenantID, doctor.TenantID)

	list, err := svc.ListDoctors(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, doctor.ID, list[0].ID)
}

func TestCreateDoctorRequiresAdminOfTenant(t *testing.T) {
	svc, tenantID, _ := newTestService(t)

	receptionist := tenancy.WithPrincipal(context.Background(), tenancy.StaffPrincipal(uuid.New(), tenantID, tenancy.RoleReceptionist))
	_, err := svc.CreateDoctor(receptionist, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	assert.ErrorIs(t, err, tenancy.ErrForbidden)

	_, err = svc.CreateDoctor(context.Background(), tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	assert.ErrorIs(t, err, tenancy.ErrUnauthenticated)
}

func TestUpdateConsultDuration(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)

	_, err = svc.UpdateConsultDuration(ctx, doctor.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	updated, err := svc.UpdateConsultDuration(ctx, doctor.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.ConsultDurationMinutes)

	_, err = svc.UpdateConsultDuration(ctx, uuid.New(), 15)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestSetConsultingAllowsAnyStaff(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)

	staff := tenancy.WithPrincipal(context.Background(), tenancy.StaffPrincipal(uuid.New(), tenantID, tenancy.RoleDoctor))
	updated, err := svc.SetConsulting(staff, doctor.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsConsulting)

	other := tenancy.WithPrincipal(context.Background(), tenancy.StaffPrincipal(uuid.New(), uuid.New(), tenancy.RoleAdmin))
	_, err = svc.SetConsulting(other, doctor.ID, false)
	assert.ErrorIs(t, err, tenancy.ErrForbidden)
}

func TestReplaceSchedulesDeactivatesPreviousSessions(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)

	first, err := svc.ReplaceSchedules(ctx, doctor.ID, []ScheduleInput{
		{DayOfWeek: 3, StartTime: tod(9, 0), EndTime: tod(12, 0)},
	})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.ReplaceSchedules(ctx, doctor.ID, []ScheduleInput{
		{DayOfWeek: 3, StartTime: tod(16, 0), EndTime: tod(19, 0)},
		{DayOfWeek: 3, StartTime: tod(8, 0), EndTime: tod(12, 0)},
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, tod(8, 0), second[0].StartTime)

	wednesday := calendar.Date{Year: 2026, Month: time.October, Day: 14}
	day, err := svc.DaySchedules(ctx, doctor.ID, wednesday)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, tod(8, 0), day[0].StartTime)
	assert.Equal(t, tod(16, 0), day[1].StartTime)

	old, err := svc.repo.GetSchedule(ctx, first[0].ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestReplaceSchedulesValidation(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		inputs []ScheduleInput
		want   error
	}{
		{"empty", nil, ErrInvalidSchedule},
		{"bad day", []ScheduleInput{{DayOfWeek: 7, StartTime: tod(9, 0), EndTime: tod(10, 0)}}, ErrInvalidSchedule},
		{"start after end", []ScheduleInput{{DayOfWeek: 1, StartTime: tod(12, 0), EndTime: tod(9, 0)}}, ErrInvalidSchedule},
		{"equal bounds", []ScheduleInput{{DayOfWeek: 1, StartTime: tod(9, 0), EndTime: tod(9, 0)}}, ErrInvalidSchedule},
		{"overlap", []ScheduleInput{
			{DayOfWeek: 1, StartTime: tod(9, 0), EndTime: tod(12, 0)},
			{DayOfWeek: 1, StartTime: tod(11, 0), EndTime: tod(13, 0)},
		}, ErrScheduleOverlap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ReplaceSchedules(ctx, doctor.ID, tt.inputs)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	active, err := svc.repo.ListActiveSchedules(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReplaceSchedulesAllowsTouchingSessions(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)

	_, err = svc.ReplaceSchedules(ctx, doctor.ID, []ScheduleInput{
		{DayOfWeek: 2, StartTime: tod(9, 0), EndTime: tod(12, 0)},
		{DayOfWeek: 2, StartTime: tod(12, 0), EndTime: tod(14, 0)},
	})
	require.NoError(t, err)
}

func TestUpdateScheduleRevalidates(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)
	created, err := svc.ReplaceSchedules(ctx, doctor.ID, []ScheduleInput{
		{DayOfWeek: 1, StartTime: tod(9, 0), EndTime: tod(12, 0)},
		{DayOfWeek: 1, StartTime: tod(16, 0), EndTime: tod(19, 0)},
	})
	require.NoError(t, err)
	evening := created[1]

	overlapStart := tod(11, 0)
	_, err = svc.UpdateSchedule(ctx, evening.ID, &overlapStart, nil)
	assert.ErrorIs(t, err, ErrScheduleOverlap)

	badEnd := tod(15, 0)
	_, err = svc.UpdateSchedule(ctx, evening.ID, nil, &badEnd)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	newEnd := tod(20, 0)
	updated, err := svc.UpdateSchedule(ctx, evening.ID, nil, &newEnd)
	require.NoError(t, err)
	assert.Equal(t, tod(16, 0), updated.StartTime)
	assert.Equal(t, newEnd, updated.EndTime)
}

func TestDeactivateSchedule(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)
	created, err := svc.ReplaceSchedules(ctx, doctor.ID, []ScheduleInput{
		{DayOfWeek: 1, StartTime: tod(9, 0), EndTime: tod(12, 0)},
	})
	require.NoError(t, err)

	sched, err := svc.DeactivateSchedule(ctx, created[0].ID)
	require.NoError(t, err)
	assert.False(t, sched.IsActive)

	_, err = svc.repo.GetSchedule(ctx, created[0].ID)
	require.NoError(t, err, "deactivation keeps the row")

	_, err = svc.DeactivateSchedule(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestWeeklySlots(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	loc := time.FixedZone("IST", 5*3600+1800)
	svc.locator = fixedLocator{loc: loc}

	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao", ConsultDurationMinutes: 15})
	require.NoError(t, err)
	_, err = svc.ReplaceSchedules(ctx, doctor.ID, []ScheduleInput{
		{DayOfWeek: 3, StartTime: tod(9, 0), EndTime: tod(12, 0)},
		{DayOfWeek: 3, StartTime: tod(16, 0), EndTime: tod(17, 10)},
		{DayOfWeek: 5, StartTime: tod(10, 0), EndTime: tod(11, 0)},
	})
	require.NoError(t, err)

	start := calendar.Date{Year: 2026, Month: time.October, Day: 14} // Wednesday
	week, err := svc.WeeklySlots(ctx, doctor.ID, start)
	require.NoError(t, err)

	require.Len(t, week.DailySlots, 7)
	assert.Equal(t, calendar.Date{Year: 2026, Month: time.October, Day: 20}, week.EndDate)

	wed := week.DailySlots[0]
	require.Len(t, wed.Slots, 2)
	assert.Equal(t, 12, wed.Slots[0].Capacity)
	assert.Equal(t, 4, wed.Slots[1].Capacity)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, loc), wed.Slots[0].StartTime)

	assert.Empty(t, week.DailySlots[1].Slots)
	require.Len(t, week.DailySlots[2].Slots, 1)
	assert.Equal(t, 4, week.DailySlots[2].Slots[0].Capacity)
}

func TestWeeklySlotsDefaultsToClinicToday(t *testing.T) {
	svc, tenantID, ctx := newTestService(t)
	loc := time.FixedZone("IST", 5*3600+1800)
	svc.locator = fixedLocator{loc: loc}
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC) }

	doctor, err := svc.CreateDoctor(ctx, tenantID, CreateDoctorRequest{Name: "Dr. Rao"})
	require.NoError(t, err)

	week, err := svc.WeeklySlots(ctx, doctor.ID, calendar.Date{})
	require.NoError(t, err)
	assert.Equal(t, calendar.Date{Year: 2026, Month: time.October, Day: 15}, week.StartDate)
}
