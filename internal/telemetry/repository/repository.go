package repository

import (
	"context"

	"device-session-gate/internal/telemetry"
)

// Repository defines persistence for session lifecycle events.
type Repository interface {
	Save(ctx context.Context, e *telemetry.SessionEvent) error
	// ListByAccount returns the newest events of the account first, at most limit of them.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*telemetry.SessionEvent, error)
}
