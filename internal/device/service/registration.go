package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"device-session-gate/internal/device/domain"
	"device-session-gate/internal/device/repository"
	"device-session-gate/internal/security"
	"device-session-gate/internal/telemetry"
)

const (
	// DefaultValidity is the validity window granted to a record that has nothing to inherit.
	DefaultValidity = 30 * 24 * time.Hour
	// DefaultCooldown is how long a superseded device is blocked from logging back in.
	DefaultCooldown = 60 * time.Second
	// DefaultMaxAttempts bounds how often a login is restarted after a concurrent write.
	DefaultMaxAttempts = 3

	defaultLockTTL = 10 * time.Second
	lockKeyPrefix  = "device-login:"
)

// Settings tunes the login engine. Zero values fall back to the package defaults.
type Settings struct {
	DefaultValidity time.Duration
	Cooldown        time.Duration
	MaxAttempts     int
	LockTTL         time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.DefaultValidity <= 0 {
		s.DefaultValidity = DefaultValidity
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultCooldown
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.LockTTL <= 0 {
		s.LockTTL = defaultLockTTL
	}
	return s
}

// Locker serializes logins of one account. Acquire returns a release func that must be called once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Device domain.PublicDevice
	// SiblingsLoggedOut counts the account's other sessions this login ended, across retries.
	SiblingsLoggedOut int
	// ActivationTransferred is true when the account already had an approved record, so this
	// record was activated and its expiry pinned to the earliest approved one.
	ActivationTransferred bool
	Created               bool
}

// RegistrationService is the login engine: it creates or refreshes a device's record and enforces
// one active session per account.
type RegistrationService struct {
	repo     repository.Repository
	settings Settings
	locker   Locker
	events   telemetry.EventEmitter
	logger   *zap.Logger

	now    func() time.Time
	newKey func() (string, error)
	newID  func() string
}

// NewRegistrationService returns a login engine over repo. locker and events may be nil.
func NewRegistrationService(repo repository.Repository, settings Settings, locker Locker, events telemetry.EventEmitter, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:     repo,
		settings: settings.withDefaults(),
		locker:   locker,
		events:   events,
		logger:   logger,
		now:      time.Now,
		newKey:   security.GenerateAPIKey,
		newID:    uuid.NewString,
	}
}

// Login registers deviceID for accountID, or logs it back in, and logs out every other session of the account
// and every session of deviceID under other accounts.
//
// A device superseded less than Cooldown ago is rejected while the superseding device is still logged in.
// Concurrent writes restart the login up to MaxAttempts times before it fails as transient.
func (s *RegistrationService) Login(ctx context.Context, accountID, deviceID string) (*LoginResult, error) {
	accountID = domain.NormalizeAccountID(accountID)
	deviceID = strings.TrimSpace(deviceID)
	if accountID == "" || deviceID == "" {
		loginsTotal.WithLabelValues(CodeMissingFields).Inc()
		return nil, errMissingFields()
	}

	ctx, span := tracer.Start(ctx, "RegistrationService.Login", trace.WithAttributes(attribute.String("device.id", deviceID)))
	defer span.End()

	if release := s.lock(ctx, accountID); release != nil {
		defer release()
	}

	res, err := s.loginWithRetry(ctx, accountID, deviceID)
	if err != nil {
		loginsTotal.WithLabelValues(errorCode(err)).Inc()
		span.SetStatus(codes.Error, errorCode(err))
		return nil, err
	}
	outcome := "updated"
	if res.Created {
		outcome = "created"
	}
	loginsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.Int("device.siblings_logged_out", res.SiblingsLoggedOut))
	return res, nil
}

func (s *RegistrationService) lock(ctx context.Context, accountID string) func() {
	if s.locker == nil {
		return nil
	}
	release, err := s.locker.Acquire(ctx, lockKeyPrefix+accountID, s.settings.LockTTL)
	if err != nil {
		s.logger.Warn("login: account lock unavailable, continuing unlocked",
			zap.String("account_id", accountID), zap.Error(err))
		return nil
	}
	return release
}

func (s *RegistrationService) loginWithRetry(ctx context.Context, accountID, deviceID string) (*LoginResult, error) {
	siblings := 0
	var lastErr error
	for attempt := 1; attempt <= s.settings.MaxAttempts; attempt++ {
		res, n, err := s.attempt(ctx, accountID, deviceID)
		siblings += n
		if err == nil {
			res.SiblingsLoggedOut = siblings
			return res, nil
		}
		if KindOf(err) != KindConflict {
			return nil, err
		}
		lastErr = err
		loginRetriesTotal.Inc()
		s.logger.Debug("login: concurrent write, retrying",
			zap.String("account_id", accountID),
			zap.String("device_id", deviceID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	s.logger.Warn("login: giving up after concurrent writes",
		zap.String("account_id", accountID),
		zap.String("device_id", deviceID),
		zap.Int("attempts", s.settings.MaxAttempts))
	return nil, errUnavailable(lastErr)
}

// attempt runs one pass of the login. The returned count is the number of sibling sessions this pass
// logged out; it is meaningful even when err is non-nil.
func (s *RegistrationService) attempt(ctx context.Context, accountID, deviceID string) (*LoginResult, int, error) {
	now := s.now().UTC()

	existing, err := s.repo.GetByDeviceAndAccount(ctx, deviceID, accountID)
	if err != nil {
		return nil, 0, classify(err)
	}
	if existing != nil {
		if err := s.checkCooldown(ctx, existing, now); err != nil {
			return nil, 0, err
		}
	}

	records, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, 0, classify(err)
	}
	source := inheritanceSource(records)

	siblings, err := s.repo.LogoutMany(ctx,
		repository.LogoutFilter{AccountID: accountID, ExcludeDeviceID: deviceID},
		repository.LogoutPatch{At: now, SupersededBy: &deviceID})
	if err != nil {
		return nil, 0, classify(err)
	}

	target, created, err := s.upsert(ctx, existing, accountID, deviceID, source, now)
	if err != nil {
		return nil, siblings, err
	}

	crossAccount, err := s.repo.LogoutMany(ctx,
		repository.LogoutFilter{DeviceID: deviceID, ExcludeAccountID: accountID},
		repository.LogoutPatch{At: now})
	if err != nil {
		return nil, siblings, classify(err)
	}

	converged, winner, err := s.converge(ctx, target, now)
	if err != nil {
		return nil, siblings, err
	}
	siblings += converged
	if winner != nil {
		s.logger.Info("login: superseded by a concurrent login",
			zap.String("account_id", accountID),
			zap.String("device_id", deviceID),
			zap.String("superseded_by", winner.DeviceID))
		return nil, siblings, errSessionEnded(&now)
	}
	s.record(target, created, siblings, crossAccount, converged)

	return &LoginResult{
		Device:                target.Public(),
		ActivationTransferred: source != nil,
		Created:               created,
	}, siblings, nil
}

// checkCooldown rejects a login from a device that was superseded less than Cooldown ago while the
// superseding record of the same account is still logged in. A superseding record that is gone or
// itself logged out lifts the cooldown.
func (s *RegistrationService) checkCooldown(ctx context.Context, existing *domain.Device, now time.Time) error {
	if !existing.IsLoggedOut || existing.LoggedOutAt == nil || existing.SupersededBy == nil {
		return nil
	}
	elapsed := now.Sub(*existing.LoggedOutAt)
	if elapsed >= s.settings.Cooldown {
		return nil
	}
	superseding, err := s.repo.GetByDeviceAndAccount(ctx, *existing.SupersededBy, existing.AccountID)
	if err != nil {
		return classify(err)
	}
	if superseding == nil || superseding.IsLoggedOut {
		return nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int((s.settings.Cooldown - elapsed).Seconds())
	ev := telemetry.NewSessionEvent(telemetry.EventLoginCooldownRejected, existing.AccountID, existing.DeviceID)
	ev.SupersededBy = superseding.DeviceID
	telemetry.EmitAsync(s.logger, s.events, ev)
	s.logger.Info("login: rejected during cooldown",
		zap.String("account_id", existing.AccountID),
		zap.String("device_id", existing.DeviceID),
		zap.String("superseded_by", superseding.DeviceID),
		zap.Int("cooldown_remaining_seconds", remaining))
	return errCooldown(*existing.LoggedOutAt, remaining)
}

// inheritanceSource returns the earliest created approved record, or nil. records are ordered by CreatedAt.
func inheritanceSource(records []*domain.Device) *domain.Device {
	for _, d := range records {
		if d.IsActive {
			return d
		}
	}
	return nil
}

func (s *RegistrationService) upsert(ctx context.Context, existing *domain.Device, accountID, deviceID string, source *domain.Device, now time.Time) (*domain.Device, bool, error) {
	key, err := s.newKey()
	if err != nil {
		return nil, false, errUnavailable(fmt.Errorf("generate api key: %w", err))
	}

	if existing == nil {
		d := &domain.Device{
			ID:          s.newID(),
			DeviceID:    deviceID,
			AccountID:   accountID,
			APIKey:      key,
			LastLoginAt: &now,
			ExpiresAt:   now.Add(s.settings.DefaultValidity),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if source != nil {
			d.IsActive = true
			d.ExpiresAt = source.ExpiresAt
		}
		if err := s.repo.InsertIfAbsent(ctx, d); err != nil {
			return nil, false, classify(err)
		}
		return d, true, nil
	}

	d := existing.Clone()
	d.APIKey = key
	d.IsLoggedOut = false
	d.LoggedOutAt = nil
	d.SupersededBy = nil
	d.LastLoginAt = &now
	d.UpdatedAt = now
	switch {
	case source != nil:
		d.ExpiresAt = source.ExpiresAt
		d.IsActive = true
	case d.ExpiresAt.IsZero() || d.Expired(now):
		d.ExpiresAt = now.Add(s.settings.DefaultValidity)
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, false, classify(err)
	}
	return d, false, nil
}

// converge re-reads the account and logs out every still-active record except the most recently
// written one (ties broken by ID), so concurrent logins settle on a single session. It returns how many
// sibling records it logged out and, when target itself lost, the winning record. A target that a
// concurrent login already logged out fails with superseded.
func (s *RegistrationService) converge(ctx context.Context, target *domain.Device, now time.Time) (int, *domain.Device, error) {
	records, err := s.repo.ListByAccount(ctx, target.AccountID)
	if err != nil {
		return 0, nil, classify(err)
	}
	var active []*domain.Device
	targetActive := false
	for _, d := range records {
		if !d.IsLoggedOut {
			active = append(active, d)
			if d.ID == target.ID {
				targetActive = true
			}
		}
	}
	if !targetActive {
		loggedOut, _, err := s.logoutLosers(ctx, target, active, now)
		if err != nil {
			return loggedOut, nil, err
		}
		s.logger.Info("login: session ended by a concurrent login before it settled",
			zap.String("account_id", target.AccountID),
			zap.String("device_id", target.DeviceID))
		return loggedOut, nil, errSessionEnded(&now)
	}
	loggedOut, winner, err := s.logoutLosers(ctx, target, active, now)
	if err != nil || winner == nil || winner.ID == target.ID {
		return loggedOut, nil, err
	}
	return loggedOut, winner, nil
}

// logoutLosers picks the winner among active records and logs out the others. It returns how many
// records other than target it logged out, and the winner (nil when fewer than two are active).
func (s *RegistrationService) logoutLosers(ctx context.Context, target *domain.Device, active []*domain.Device, now time.Time) (int, *domain.Device, error) {
	if len(active) <= 1 {
		return 0, nil, nil
	}
	winner := active[0]
	for _, d := range active[1:] {
		if d.UpdatedAt.After(winner.UpdatedAt) || (d.UpdatedAt.Equal(winner.UpdatedAt) && d.ID > winner.ID) {
			winner = d
		}
	}
	loggedOut := 0
	for _, d := range active {
		if d.ID == winner.ID {
			continue
		}
		n, err := s.repo.LogoutMany(ctx,
			repository.LogoutFilter{AccountID: d.AccountID, DeviceID: d.DeviceID},
			repository.LogoutPatch{At: now, SupersededBy: &winner.DeviceID})
		if err != nil {
			return loggedOut, nil, classify(err)
		}
		if d.ID != target.ID {
			loggedOut += n
		}
	}
	if loggedOut > 0 {
		sessionsSupersededTotal.WithLabelValues("convergence").Add(float64(loggedOut))
	}
	return loggedOut, winner, nil
}

func (s *RegistrationService) record(target *domain.Device, created bool, siblings, crossAccount, converged int) {
	if same := siblings - converged; same > 0 {
		sessionsSupersededTotal.WithLabelValues("same_account").Add(float64(same))
	}
	if crossAccount > 0 {
		sessionsSupersededTotal.WithLabelValues("cross_account").Add(float64(crossAccount))
	}

	login := telemetry.NewSessionEvent(telemetry.EventLogin, target.AccountID, target.DeviceID)
	login.Created = created
	telemetry.EmitAsync(s.logger, s.events, login)
	if siblings > 0 {
		ev := telemetry.NewSessionEvent(telemetry.EventDeviceSuperseded, target.AccountID, target.DeviceID)
		ev.SupersededBy = target.DeviceID
		ev.Count = siblings
		telemetry.EmitAsync(s.logger, s.events, ev)
	}
	if crossAccount > 0 {
		ev := telemetry.NewSessionEvent(telemetry.EventCrossAccountLogout, target.AccountID, target.DeviceID)
		ev.Count = crossAccount
		telemetry.EmitAsync(s.logger, s.events, ev)
	}

	s.logger.Info("device login",
		zap.String("account_id", target.AccountID),
		zap.String("device_id", target.DeviceID),
		zap.Bool("created", created),
		zap.Bool("is_active", target.IsActive),
		zap.Int("siblings_logged_out", siblings),
		zap.Int("cross_account_logged_out", crossAccount))
}
