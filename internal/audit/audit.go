// Package audit keeps an append-only log of queue mutations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Action names a queue mutation.
type Action string

const (
	// ActionBooked is logged when a token is allocated.
	ActionBooked Action = "appointment.booked"
	// ActionStatusUpdated is logged for an explicit status update.
	ActionStatusUpdated Action = "appointment.status_updated"
	// ActionCalledNext is logged when an update moves another appointment into consultation.
	ActionCalledNext Action = "appointment.called_next"
	// ActionHoldToggled is logged when an appointment is parked or released.
	ActionHoldToggled Action = "appointment.hold_toggled"
)

// Entry is one immutable audit record.
type Entry struct {
	ID            uuid.UUID       `json:"id"`
	ActorID       uuid.UUID       `json:"actor_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Action        Action          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Payload marshals v for an entry, returning nil when v cannot be encoded.
func Payload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Log records and lists audit entries.
type Log interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, appointmentID uuid.UUID, actions []Action) ([]Entry, error)
}

// SQLLog stores entries in the audit_logs table.
type SQLLog struct {
	db *sql.DB
}

// NewSQLLog creates a database-backed audit log.
func NewSQLLog(db *sql.DB) *SQLLog {
	return &SQLLog{db: db}
}

// Record appends an entry.
func (l *SQLLog) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, actor_id, tenant_id, appointment_id, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.db.ExecContext(ctx, query,
		e.ID,
		nullUUID(e.ActorID),
		e.TenantID,
		e.AppointmentID,
		string(e.Action),
		nullJSON(e.Payload),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record entry: %w", err)
	}
	return nil
}

// List returns an appointment's entries oldest first, optionally filtered by action.
func (l *SQLLog) List(ctx context.Context, appointmentID uuid.UUID, actions []Action) ([]Entry, error) {
	query := `
		SELECT id, actor_id, tenant_id, appointment_id, action, payload, created_at
		FROM audit_logs
		WHERE appointment_id = $1
	`
	args := []interface{}{appointmentID}
	if len(actions) > 0 {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = string(a)
		}
		query += " AND action = ANY($2)"
		args = append(args, pq.Array(names))
	}
	query += " ORDER BY created_at, id"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actor uuid.NullUUID
		var action string
		var payload []byte
		if err := rows.Scan(&e.ID, &actor, &e.TenantID, &e.AppointmentID, &action, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		e.ActorID = actor.UUID
		e.Action = Action(action)
		if len(payload) > 0 {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

// MemoryLog keeps entries in process memory.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLog creates an in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *MemoryLog) List(ctx context.Context, appointmentID uuid.UUID, actions []Action) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.AppointmentID != appointmentID {
			continue
		}
		if len(actions) > 0 && !hasAction(actions, e.Action) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func hasAction(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
