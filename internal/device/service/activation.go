package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"device-session-gate/internal/device/domain"
	"device-session-gate/internal/device/repository"
	"device-session-gate/internal/telemetry"
)

// ActivationService is the hook the external approval actor uses to mark a record approved.
// It only flips is_active; expiry and session state are untouched.
type ActivationService struct {
	repo   repository.Repository
	events telemetry.EventEmitter
	logger *zap.Logger
	now    func() time.Time
}

// NewActivationService returns an ActivationService over repo. events may be nil.
func NewActivationService(repo repository.Repository, events telemetry.EventEmitter, logger *zap.Logger) *ActivationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivationService{repo: repo, events: events, logger: logger, now: time.Now}
}

// Activate sets is_active on the (deviceID, accountID) record. Activating an active record is a no-op.
func (s *ActivationService) Activate(ctx context.Context, accountID, deviceID string) (*domain.Device, error) {
	accountID = domain.NormalizeAccountID(accountID)
	deviceID = strings.TrimSpace(deviceID)
	if accountID == "" || deviceID == "" {
		return nil, errMissingFields()
	}
	ctx, span := tracer.Start(ctx, "ActivationService.Activate")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < DefaultMaxAttempts; attempt++ {
		d, err := s.repo.GetByDeviceAndAccount(ctx, deviceID, accountID)
		if err != nil {
			return nil, errUnavailable(err)
		}
		if d == nil {
			return nil, errNotFound()
		}
		if d.IsActive {
			return d, nil
		}
		d.IsActive = true
		d.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, d); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, classify(err)
		}
		telemetry.EmitAsync(s.logger, s.events, telemetry.NewSessionEvent(telemetry.EventDeviceActivated, accountID, deviceID))
		s.logger.Info("device activated", zap.String("account_id", accountID), zap.String("device_id", deviceID))
		return d, nil
	}
	return nil, errUnavailable(lastErr)
}
