package domain

import (
	"strings"
	"time"
)

// Device is one device-session record, unique per (DeviceID, AccountID).
// A physical device that logged in under several accounts owns one record per account.
type Device struct {
	ID        string
	DeviceID  string
	AccountID string // normalized: lowercase, trimmed
	APIKey    string // rotated on every successful login
	// IsActive is the externally granted approval flag. Login and logout never clear it.
	IsActive     bool
	IsLoggedOut  bool
	LoggedOutAt  *time.Time // nil when never logged out
	SupersededBy *string    // device id that caused the logout; nil for cross-account logouts
	LastLoginAt  *time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Version is the optimistic concurrency counter; the store bumps it on every write.
	Version int64
}

// PublicDevice is the subset of a record returned to the client after login.
type PublicDevice struct {
	APIKey    string
	DeviceID  string
	AccountID string
	IsActive  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NormalizeAccountID lowercases and trims an account identifier (email).
func NormalizeAccountID(accountID string) string {
	return strings.ToLower(strings.TrimSpace(accountID))
}

// Expired reports whether the record's validity has ended at now. A record is valid only while
// ExpiresAt is strictly in the future, so ExpiresAt == now counts as expired.
func (d *Device) Expired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}

// Public returns the client-visible projection of d.
func (d *Device) Public() PublicDevice {
	return PublicDevice{
		APIKey:    d.APIKey,
		DeviceID:  d.DeviceID,
		AccountID: d.AccountID,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}

// Clone returns a deep copy of d; pointer fields are not shared.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.LoggedOutAt != nil {
		t := *d.LoggedOutAt
		c.LoggedOutAt = &t
	}
	if d.SupersededBy != nil {
		s := *d.SupersededBy
		c.SupersededBy = &s
	}
	if d.LastLoginAt != nil {
		t := *d.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
