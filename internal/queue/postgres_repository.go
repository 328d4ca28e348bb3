package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/caretoken/internal/calendar"
)

const uniqueViolation = "23505"

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository persists patients and appointments.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("queue: querier required")
	}
	return &PostgresRepository{pool: q}
}

func pgDate(d calendar.Date) time.Time {
	return d.In(time.UTC)
}

func (r *PostgresRepository) UpsertPatient(ctx context.Context, tenantID uuid.UUID, details PatientDetails, merge bool) (*Patient, error) {
	query := `
		INSERT INTO patients (id, tenant_id, name, phone, age, gender)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone, tenant_id) DO UPDATE SET
			name = CASE WHEN $7 THEN EXCLUDED.name ELSE patients.name END,
			age = CASE WHEN $7 AND EXCLUDED.age IS NOT NULL THEN EXCLUDED.age ELSE patients.age END,
			gender = CASE WHEN $7 AND EXCLUDED.gender <> '' THEN EXCLUDED.gender ELSE patients.gender END
		RETURNING id, tenant_id, name, phone, age, gender, created_at
	`
	var p Patient
	if err := r.pool.QueryRow(ctx, query,
		uuid.New(),
		tenantID,
		details.Name,
		details.Phone,
		details.Age,
		details.Gender,
		merge,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone, &p.Age, &p.Gender, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("queue: upsert patient: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	query := `
		INSERT INTO appointments (
			id, tenant_id, doctor_id, patient_id, token_number, token_date, token_class,
			state, scheduled_start, is_emergency, is_phone_booking, is_late
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.TenantID,
		appt.DoctorID,
		appt.PatientID,
		appt.TokenNumber,
		pgDate(appt.TokenDate),
		string(appt.TokenClass),
		string(appt.State),
		appt.ScheduledStart,
		appt.IsEmergency,
		appt.IsPhoneBooking,
		appt.IsLate,
	).Scan(&appt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrTokenConflict
		}
		return fmt.Errorf("queue: insert appointment: %w", err)
	}
	return nil
}

const appointmentSelect = `
	SELECT a.id, a.tenant_id, a.doctor_id, a.patient_id, a.token_number, a.token_date,
		a.token_class, a.state, a.scheduled_start, a.is_emergency, a.is_phone_booking,
		a.is_late, a.created_at, a.started_at, a.ended_at, a.duration_seconds,
		p.name, p.phone, p.age, p.gender
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
`

func (r *PostgresRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("queue: select appointment: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) ListDay(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]*Appointment, error) {
	query := appointmentSelect + `
		WHERE a.doctor_id = $1 AND a.token_date = $2
		ORDER BY a.token_number, a.is_emergency DESC, a.created_at
	`
	rows, err := r.pool.Query(ctx, query, doctorID, pgDate(date))
	if err != nil {
		return nil, fmt.Errorf("queue: list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MaxTokenNumber(ctx context.Context, key PartitionKey) (int, error) {
	query := `
		SELECT COALESCE(MAX(token_number), 0)
		FROM appointments
		WHERE doctor_id = $1 AND token_date = $2 AND token_class = $3
	`
	var max int
	if err := r.pool.QueryRow(ctx, query, key.DoctorID, pgDate(key.Date), string(key.Class)).Scan(&max); err != nil {
		return 0, fmt.Errorf("queue: max token: %w", err)
	}
	return max, nil
}

func (r *PostgresRepository) Mutate(ctx context.Context, ids []uuid.UUID, fn func(map[uuid.UUID]*Appointment) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("queue: begin mutate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, appointmentSelect+` WHERE a.id = ANY($1) ORDER BY a.id FOR UPDATE OF a`, ids)
	if err != nil {
		return fmt.Errorf("queue: lock appointments: %w", err)
	}
	found := make(map[uuid.UUID]*Appointment, len(ids))
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("queue: scan appointment: %w", err)
		}
		found[appt.ID] = appt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("queue: lock appointments: %w", err)
	}

	if err := fn(found); err != nil {
		return err
	}

	update := `
		UPDATE appointments
		SET state = $2, started_at = $3, ended_at = $4, duration_seconds = $5
		WHERE id = $1
	`
	for _, id := range ids {
		appt, ok := found[id]
		if !ok {
			continue
		}
		if _, err := tx.Exec(ctx, update, appt.ID, string(appt.State), appt.StartedAt, appt.EndedAt, appt.DurationSeconds); err != nil {
			return fmt.Errorf("queue: update appointment: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("queue: commit mutate: %w", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a         Appointment
		p         Patient
		tokenDate time.Time
		class     string
		state     string
	)
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.DoctorID, &a.PatientID, &a.TokenNumber, &tokenDate,
		&class, &state, &a.ScheduledStart, &a.IsEmergency, &a.IsPhoneBooking,
		&a.IsLate, &a.CreatedAt, &a.StartedAt, &a.EndedAt, &a.DurationSeconds,
		&p.Name, &p.Phone, &p.Age, &p.Gender,
	); err != nil {
		return nil, err
	}
	a.TokenDate = calendar.DateOf(tokenDate.UTC())
	a.TokenClass = Class(class)
	a.State = State(state)
	p.ID = a.PatientID
	p.TenantID = a.TenantID
	a.Patient = &p
	return &a, nil
}
