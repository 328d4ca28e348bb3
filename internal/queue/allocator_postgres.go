package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAllocator keeps counters in the token_counters table. The row lock
// taken by the upsert serializes allocations within a partition.
type PostgresAllocator struct {
	db rowQuerier
}

// NewPostgresAllocator creates a counter-table allocator.
func NewPostgresAllocator(pool *pgxpool.Pool) *PostgresAllocator {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &PostgresAllocator{db: pool}
}

func newPostgresAllocatorWithQuerier(q rowQuerier) *PostgresAllocator {
	return &PostgresAllocator{db: q}
}

const allocateTokenSQL = `
	INSERT INTO token_counters (doctor_id, token_date, token_class, last_token)
	VALUES ($1, $2, $3, (
		SELECT COALESCE(MAX(token_number), 0) + 1
		FROM appointments
		WHERE doctor_id = $1 AND token_date = $2 AND token_class = $3
	))
	ON CONFLICT (doctor_id, token_date, token_class)
	DO UPDATE SET last_token = token_counters.last_token + 1
	RETURNING last_token
`

// Allocate implements Allocator.
func (a *PostgresAllocator) Allocate(ctx context.Context, key PartitionKey) (int, error) {
	var token int
	if err := a.db.QueryRow(ctx, allocateTokenSQL, key.DoctorID, pgDate(key.Date), string(key.Class)).Scan(&token); err != nil {
		return 0, fmt.Errorf("queue: allocate token: %w", err)
	}
	return token, nil
}
