package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"device-session-gate/internal/device/repository"
	"device-session-gate/internal/telemetry"
)

func TestActivate(t *testing.T) {
	env := newTestEnv(t)
	events := newRecordingEmitter()
	env.admin.events = events
	res := env.login(t, "u@x.com", "d1")

	env.clock.Advance(time.Hour)
	d, err := env.admin.Activate(context.Background(), "U@X.COM", "d1")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !d.IsActive {
		t.Error("record should be active")
	}
	if !d.ExpiresAt.Equal(res.Device.ExpiresAt) {
		t.Error("activation must keep expires_at")
	}
	got := events.wait(t, 1)
	if got[0].EventType != telemetry.EventDeviceActivated || got[0].DeviceID != "d1" {
		t.Errorf("event = %+v", got[0])
	}

	// Activating again is a no-op.
	version := env.record(t, "u@x.com", "d1").Version
	if _, err := env.admin.Activate(context.Background(), "u@x.com", "d1"); err != nil {
		t.Fatal(err)
	}
	if env.record(t, "u@x.com", "d1").Version != version {
		t.Error("second activation should not write")
	}
}

func TestActivate_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.admin.Activate(context.Background(), "", "d1")
	requireServiceError(t, err, KindValidation, CodeMissingFields)

	_, err = env.admin.Activate(context.Background(), "u@x.com", "d1")
	requireServiceError(t, err, KindNotFound, CodeNotFound)
}

func TestActivate_RetriesConflicts(t *testing.T) {
	mem := repository.NewMemoryRepository()
	repo := &conflictRepo{MemoryRepository: mem}
	env := newTestEnvWithRepo(t, mem, repo)
	env.login(t, "u@x.com", "d1")

	repo.failUpdates = 1
	if _, err := env.admin.Activate(context.Background(), "u@x.com", "d1"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !env.record(t, "u@x.com", "d1").IsActive {
		t.Error("record should be active after retry")
	}

	env.login(t, "v@x.com", "d2")
	repo.failUpdates = 100
	_, err := env.admin.Activate(context.Background(), "v@x.com", "d2")
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("err = %v, want wrapped ErrConflict", err)
	}
	requireServiceError(t, err, KindTransient, CodeUnavailable)
}
