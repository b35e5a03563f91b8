package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"device-session-gate/internal/device/domain"
	"device-session-gate/internal/device/repository"
	"device-session-gate/internal/telemetry"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	repo   repository.Repository
	mem    *repository.MemoryRepository
	clock  *fakeClock
	engine *RegistrationService
	auth   *Authenticator
	status *StatusReporter
	admin  *ActivationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := repository.NewMemoryRepository()
	return newTestEnvWithRepo(t, mem, mem)
}

func newTestEnvWithRepo(t *testing.T, mem *repository.MemoryRepository, repo repository.Repository) *testEnv {
	t.Helper()
	clock := newFakeClock()
	engine := NewRegistrationService(repo, Settings{}, nil, nil, nil)
	engine.now = clock.Now
	auth := NewAuthenticator(repo)
	auth.now = clock.Now
	admin := NewActivationService(repo, nil, nil)
	admin.now = clock.Now
	return &testEnv{
		repo:   repo,
		mem:    mem,
		clock:  clock,
		engine: engine,
		auth:   auth,
		status: NewStatusReporter(auth),
		admin:  admin,
	}
}

func (e *testEnv) login(t *testing.T, accountID, deviceID string) *LoginResult {
	t.Helper()
	res, err := e.engine.Login(context.Background(), accountID, deviceID)
	if err != nil {
		t.Fatalf("Login(%q, %q): %v", accountID, deviceID, err)
	}
	return res
}

func (e *testEnv) record(t *testing.T, accountID, deviceID string) *domain.Device {
	t.Helper()
	d, err := e.mem.GetByDeviceAndAccount(context.Background(), deviceID, accountID)
	if err != nil {
		t.Fatalf("GetByDeviceAndAccount: %v", err)
	}
	if d == nil {
		t.Fatalf("no record for (%q, %q)", deviceID, accountID)
	}
	return d
}

func (e *testEnv) activeCount(t *testing.T, accountID string) int {
	t.Helper()
	records, err := e.mem.ListByAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	n := 0
	for _, d := range records {
		if !d.IsLoggedOut {
			n++
		}
	}
	return n
}

func requireServiceError(t *testing.T, err error, kind Kind, code string) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s error, got nil", kind, code)
	}
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("error %v is not *Error", err)
	}
	if e.Kind != kind || e.Code != code {
		t.Fatalf("error = %s/%s (%v), want %s/%s", e.Kind, e.Code, err, kind, code)
	}
	return e
}

// conflictRepo fails the first failUpdates calls to Update with ErrConflict.
type conflictRepo struct {
	*repository.MemoryRepository
	mu          sync.Mutex
	failUpdates int
	updates     int
}

func (r *conflictRepo) Update(ctx context.Context, d *domain.Device) error {
	r.mu.Lock()
	r.updates++
	fail := r.failUpdates > 0
	if fail {
		r.failUpdates--
	}
	r.mu.Unlock()
	if fail {
		return repository.ErrConflict
	}
	return r.MemoryRepository.Update(ctx, d)
}

// hookRepo runs afterInsert once, right after the first successful insert of deviceID.
type hookRepo struct {
	*repository.MemoryRepository
	deviceID    string
	afterInsert func()
	once        sync.Once
}

func (r *hookRepo) InsertIfAbsent(ctx context.Context, d *domain.Device) error {
	if err := r.MemoryRepository.InsertIfAbsent(ctx, d); err != nil {
		return err
	}
	if d.DeviceID == r.deviceID && r.afterInsert != nil {
		r.once.Do(r.afterInsert)
	}
	return nil
}

// racingInsertRepo stores rival just before the first InsertIfAbsent, as a concurrent login of the
// same (device, account) pair would.
type racingInsertRepo struct {
	*repository.MemoryRepository
	rival   *domain.Device
	inserts int
}

func (r *racingInsertRepo) InsertIfAbsent(ctx context.Context, d *domain.Device) error {
	r.inserts++
	if r.rival != nil {
		rival := r.rival
		r.rival = nil
		if err := r.MemoryRepository.InsertIfAbsent(ctx, rival); err != nil {
			return err
		}
	}
	return r.MemoryRepository.InsertIfAbsent(ctx, d)
}

var errStoreDown = errors.New("store down")

// brokenRepo fails every read.
type brokenRepo struct {
	*repository.MemoryRepository
}

func (brokenRepo) GetByDeviceAndAccount(context.Context, string, string) (*domain.Device, error) {
	return nil, errStoreDown
}

func (brokenRepo) GetByAPIKey(context.Context, string) (*domain.Device, error) {
	return nil, errStoreDown
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.SessionEvent
	ch     chan struct{}
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{ch: make(chan struct{}, 64)}
}

func (r *recordingEmitter) Emit(_ context.Context, ev *telemetry.SessionEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- struct{}{}
	return nil
}

func (r *recordingEmitter) wait(t *testing.T, n int) []*telemetry.SessionEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*telemetry.SessionEvent(nil), r.events...)
}

type fakeLocker struct {
	mu       sync.Mutex
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}
