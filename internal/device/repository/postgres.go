package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"device-session-gate/internal/device/domain"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const deviceColumns = `id, device_id, account_id, api_key, is_active, is_logged_out, logged_out_at,
	superseded_by, last_login_at, expires_at, created_at, updated_at, version`

type PostgresRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
// Every call is bounded by timeout; a non-positive timeout disables the bound.
func NewPostgresRepository(db *sql.DB, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: db, timeout: timeout}
}

func (r *PostgresRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// GetByDeviceAndAccount returns the record for the (device, account) pair, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByDeviceAndAccount(ctx context.Context, deviceID, accountID string) (*domain.Device, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM device_sessions WHERE device_id = $1 AND account_id = $2`,
		deviceID, accountID)
	return scanDevice(row)
}

// GetByAPIKey returns the record holding apiKey, or nil if not found.
func (r *PostgresRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Device, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM device_sessions WHERE api_key = $1`, apiKey)
	return scanDevice(row)
}

// ListByAccount returns all records for the account, oldest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Device, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM device_sessions WHERE account_id = $1 ORDER BY created_at ASC, id ASC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertIfAbsent creates the record. A concurrent insert for the same (device, account) pair,
// or an api_key collision, yields ErrDuplicate.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, d *domain.Device) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO device_sessions (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		ON CONFLICT (device_id, account_id) DO NOTHING`,
		d.ID, d.DeviceID, d.AccountID, d.APIKey, d.IsActive, d.IsLoggedOut,
		timeToNullTime(d.LoggedOutAt), stringToNullString(d.SupersededBy), timeToNullTime(d.LastLoginAt),
		d.ExpiresAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	d.Version = 1
	return nil
}

// Update writes every mutable column of d guarded by its version.
func (r *PostgresRepository) Update(ctx context.Context, d *domain.Device) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE device_sessions SET
			api_key = $3, is_active = $4, is_logged_out = $5, logged_out_at = $6, superseded_by = $7,
			last_login_at = $8, expires_at = $9, updated_at = $10, version = version + 1
		WHERE id = $1 AND version = $2`,
		d.ID, d.Version, d.APIKey, d.IsActive, d.IsLoggedOut,
		timeToNullTime(d.LoggedOutAt), stringToNullString(d.SupersededBy), timeToNullTime(d.LastLoginAt),
		d.ExpiresAt, d.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	d.Version++
	return nil
}

// LogoutMany logs out every active record matched by f in a single statement.
func (r *PostgresRepository) LogoutMany(ctx context.Context, f LogoutFilter, p LogoutPatch) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	query, args := logoutQuery(f, p)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func logoutQuery(f LogoutFilter, p LogoutPatch) (string, []any) {
	args := []any{p.At, stringToNullString(p.SupersededBy)}
	conds := []string{"is_logged_out = FALSE"}
	add := func(cond string, v string) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.DeviceID != "" {
		add("device_id = $%d", f.DeviceID)
	}
	if f.ExcludeDeviceID != "" {
		add("device_id <> $%d", f.ExcludeDeviceID)
	}
	if f.ExcludeAccountID != "" {
		add("account_id <> $%d", f.ExcludeAccountID)
	}
	query := `UPDATE device_sessions SET is_logged_out = TRUE, logged_out_at = $1, superseded_by = $2,
		updated_at = $1, version = version + 1 WHERE ` + strings.Join(conds, " AND ")
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d                        domain.Device
		loggedOutAt, lastLoginAt sql.NullTime
		supersededBy             sql.NullString
	)
	err := row.Scan(&d.ID, &d.DeviceID, &d.AccountID, &d.APIKey, &d.IsActive, &d.IsLoggedOut,
		&loggedOutAt, &supersededBy, &lastLoginAt, &d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt, &d.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.LoggedOutAt = nullTimeToPtr(loggedOutAt)
	d.LastLoginAt = nullTimeToPtr(lastLoginAt)
	if supersededBy.Valid {
		s := supersededBy.String
		d.SupersededBy = &s
	}
	return &d, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func stringToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
