package repository

import (
	"context"
	"database/sql"

	"device-session-gate/internal/telemetry"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session event repository that uses the given db for persistence.
// It also implements telemetry.EventEmitter so it can sit in a telemetry.Fanout.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save persists the event. Events are append-only; a repeated id is ignored.
func (r *PostgresRepository) Save(ctx context.Context, e *telemetry.SessionEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (id, event_type, source, account_id, device_id, superseded_by, count, created, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.EventType, e.Source, e.AccountID, e.DeviceID,
		nullString(e.SupersededBy), e.Count, e.Created, e.CreatedAt,
	)
	return err
}

// Emit implements telemetry.EventEmitter.
func (r *PostgresRepository) Emit(ctx context.Context, e *telemetry.SessionEvent) error {
	if e == nil {
		return nil
	}
	return r.Save(ctx, e)
}

// ListByAccount returns the account's events, newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*telemetry.SessionEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, source, account_id, device_id, superseded_by, count, created, created_at
		FROM session_events WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*telemetry.SessionEvent
	for rows.Next() {
		var (
			e            telemetry.SessionEvent
			supersededBy sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.Source, &e.AccountID, &e.DeviceID,
			&supersededBy, &e.Count, &e.Created, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SupersededBy = supersededBy.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
