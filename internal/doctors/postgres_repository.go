package doctors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/caretoken/internal/calendar"
)

// pgxQuerier is the subset of pgxpool.Pool the repository uses.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores doctors and schedules in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("doctors: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("doctors: querier required")
	}
	return &PostgresRepository{pool: q}
}

const doctorColumns = `id, tenant_id, name, specialty, consult_duration_minutes, is_consulting, created_at`

func (r *PostgresRepository) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	if doctor.ID == uuid.Nil {
		doctor.ID = uuid.New()
	}
	query := `
		INSERT INTO doctors (id, tenant_id, name, specialty, consult_duration_minutes, is_consulting)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query,
		doctor.ID,
		doctor.TenantID,
		doctor.Name,
		doctor.Specialty,
		doctor.ConsultDurationMinutes,
		doctor.IsConsulting,
	).Scan(&doctor.CreatedAt); err != nil {
		return fmt.Errorf("doctors: insert doctor: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	doctor, err := scanDoctor(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("doctors: select doctor: %w", err)
	}
	return doctor, nil
}

func (r *PostgresRepository) ListDoctors(ctx context.Context, tenantID uuid.UUID) ([]*Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE tenant_id = $1 ORDER BY name, created_at`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("doctors: list doctors: %w", err)
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		doctor, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("doctors: scan doctor: %w", err)
		}
		out = append(out, doctor)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateDoctor(ctx context.Context, doctor *Doctor) error {
	query := `
		UPDATE doctors
		SET name = $2, specialty = $3, consult_duration_minutes = $4, is_consulting = $5
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, doctor.ID, doctor.Name, doctor.Specialty, doctor.ConsultDurationMinutes, doctor.IsConsulting)
	if err != nil {
		return fmt.Errorf("doctors: update doctor: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

const scheduleColumns = `id, doctor_id, day_of_week, start_time::text, end_time::text, is_active`

func (r *PostgresRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	schedule, err := scanSchedule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("doctors: select schedule: %w", err)
	}
	return schedule, nil
}

func (r *PostgresRepository) ListActiveSchedules(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE doctor_id = $1 AND is_active
		ORDER BY day_of_week, start_time
	`
	rows, err := r.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("doctors: list schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("doctors: scan schedule: %w", err)
		}
		out = append(out, schedule)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ReplaceDaySchedules(ctx context.Context, doctorID uuid.UUID, day int, schedules []*Schedule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("doctors: begin replace schedules: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deactivate := `UPDATE schedules SET is_active = FALSE WHERE doctor_id = $1 AND day_of_week = $2 AND is_active`
	if _, err := tx.Exec(ctx, deactivate, doctorID, day); err != nil {
		return fmt.Errorf("doctors: deactivate day schedules: %w", err)
	}

	insert := `
		INSERT INTO schedules (id, doctor_id, day_of_week, start_time, end_time, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, s := range schedules {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, insert, s.ID, s.DoctorID, s.DayOfWeek, toPGTime(s.StartTime), toPGTime(s.EndTime), s.IsActive); err != nil {
			return fmt.Errorf("doctors: insert schedule: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("doctors: commit replace schedules: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateSchedule(ctx context.Context, schedule *Schedule) error {
	query := `
		UPDATE schedules
		SET start_time = $2, end_time = $3, is_active = $4
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, schedule.ID, toPGTime(schedule.StartTime), toPGTime(schedule.EndTime), schedule.IsActive)
	if err != nil {
		return fmt.Errorf("doctors: update schedule: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &d.Specialty, &d.ConsultDurationMinutes, &d.IsConsulting, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	var start, end string
	if err := row.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &start, &end, &s.IsActive); err != nil {
		return nil, err
	}
	var err error
	if s.StartTime, err = calendar.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if s.EndTime, err = calendar.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	return &s, nil
}

func toPGTime(t calendar.TimeOfDay) pgtype.Time {
	return pgtype.Time{
		Microseconds: time.Duration(t).Microseconds(),
		Valid:        true,
	}
}
