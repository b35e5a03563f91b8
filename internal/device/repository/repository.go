package repository

import (
	"context"
	"errors"
	"time"

	"device-session-gate/internal/device/domain"
)

var (
	// ErrConflict is returned by Update when the record changed since it was read (version mismatch).
	ErrConflict = errors.New("device record changed since read")
	// ErrDuplicate is returned when a write would violate (device_id, account_id) or api_key uniqueness.
	ErrDuplicate = errors.New("device record already exists")
	// ErrEmptyFilter is returned by LogoutMany when the filter selects neither an account nor a device.
	ErrEmptyFilter = errors.New("logout filter must select an account or a device")
)

// LogoutFilter selects the records LogoutMany touches. Only records that are not already
// logged out are matched. Empty fields are ignored; at least one of AccountID or DeviceID is required.
type LogoutFilter struct {
	AccountID        string
	DeviceID         string
	ExcludeDeviceID  string
	ExcludeAccountID string
}

// LogoutPatch is applied to every record matched by a LogoutFilter.
type LogoutPatch struct {
	At           time.Time
	SupersededBy *string // nil clears superseded_by
}

// Repository defines persistence for device-session records.
// Get methods return (nil, nil) when no record matches.
type Repository interface {
	GetByDeviceAndAccount(ctx context.Context, deviceID, accountID string) (*domain.Device, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Device, error)
	// ListByAccount returns all records of the account ordered by created_at ascending.
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Device, error)
	// InsertIfAbsent creates d unless a record for (d.DeviceID, d.AccountID) exists, in which case it returns ErrDuplicate.
	InsertIfAbsent(ctx context.Context, d *domain.Device) error
	// Update writes d if the stored version still equals d.Version and bumps d.Version; otherwise ErrConflict.
	Update(ctx context.Context, d *domain.Device) error
	// LogoutMany marks every active record matched by f as logged out and returns how many changed.
	LogoutMany(ctx context.Context, f LogoutFilter, p LogoutPatch) (int, error)
}

func (f LogoutFilter) validate() error {
	if f.AccountID == "" && f.DeviceID == "" {
		return ErrEmptyFilter
	}
	return nil
}

func (f LogoutFilter) matches(d *domain.Device) bool {
	if d.IsLoggedOut {
		return false
	}
	if f.AccountID != "" && d.AccountID != f.AccountID {
		return false
	}
	if f.DeviceID != "" && d.DeviceID != f.DeviceID {
		return false
	}
	if f.ExcludeDeviceID != "" && d.DeviceID == f.ExcludeDeviceID {
		return false
	}
	if f.ExcludeAccountID != "" && d.AccountID == f.ExcludeAccountID {
		return false
	}
	return true
}
