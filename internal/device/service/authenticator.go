package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"device-session-gate/internal/device/domain"
	"device-session-gate/internal/device/repository"
)

// Authenticator validates an (api key, device id) credential pair against the stored record.
// It never writes, so it is safe under any polling rate.
type Authenticator struct {
	repo repository.Repository
	now  func() time.Time
}

// NewAuthenticator returns an Authenticator backed by repo.
func NewAuthenticator(repo repository.Repository) *Authenticator {
	return &Authenticator{repo: repo, now: time.Now}
}

// Authenticate returns the record for apiKey when it belongs to deviceID, is not logged out and has not expired.
// Checks run in that order, so a superseded session reports superseded even after it expires.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey, deviceID string) (*domain.Device, error) {
	ctx, span := tracer.Start(ctx, "Authenticator.Authenticate")
	defer span.End()

	d, err := a.authenticate(ctx, apiKey, deviceID)
	if err != nil {
		authFailuresTotal.WithLabelValues(errorCode(err)).Inc()
		span.SetStatus(codes.Error, errorCode(err))
		return nil, err
	}
	return d, nil
}

func (a *Authenticator) authenticate(ctx context.Context, apiKey, deviceID string) (*domain.Device, error) {
	apiKey = strings.TrimSpace(apiKey)
	deviceID = strings.TrimSpace(deviceID)
	if apiKey == "" || deviceID == "" {
		return nil, errMissingCredentials()
	}
	d, err := a.repo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, errUnavailable(err)
	}
	if d == nil || d.DeviceID != deviceID {
		return nil, errInvalidCredentials()
	}
	if d.IsLoggedOut {
		return nil, errSessionEnded(d.LoggedOutAt)
	}
	if d.Expired(a.now()) {
		return nil, errExpired()
	}
	return d, nil
}
