package service

import (
	"context"
	"time"
)

// StatusResult is the activation state reported to a polling client.
type StatusResult struct {
	IsActive  bool
	AccountID string
	DeviceID  string
	ExpiresAt time.Time
}

// StatusReporter answers activation polls.
type StatusReporter struct {
	auth *Authenticator
}

// NewStatusReporter returns a StatusReporter that authenticates through auth.
func NewStatusReporter(auth *Authenticator) *StatusReporter {
	return &StatusReporter{auth: auth}
}

// Status authenticates the caller and reports its record's activation state.
// Authentication errors are returned unchanged.
func (s *StatusReporter) Status(ctx context.Context, apiKey, deviceID string) (*StatusResult, error) {
	d, err := s.auth.Authenticate(ctx, apiKey, deviceID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		IsActive:  d.IsActive,
		AccountID: d.AccountID,
		DeviceID:  d.DeviceID,
		ExpiresAt: d.ExpiresAt,
	}, nil
}
