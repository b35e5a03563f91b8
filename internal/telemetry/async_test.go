package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*SessionEvent
	emitErr error
	done    chan struct{}
}

func newMockEmitter() *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, 16)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *SessionEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*SessionEvent(nil), m.events...)
}

func (m *mockEventEmitter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async emit")
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, nil, NewSessionEvent(EventLogin, "a@x.com", "d1"))
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := newMockEmitter()
	EmitAsync(nil, emitter, nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := newMockEmitter()
	event := NewSessionEvent(EventDeviceSuperseded, "a@x.com", "d1")
	EmitAsync(nil, emitter, event)
	emitter.wait(t)
	events := emitter.getEvents()
	if len(events) != 1 || events[0] != event {
		t.Fatalf("events = %v, want the emitted event", events)
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := newMockEmitter()
	emitter.emitErr = errors.New("broker down")
	EmitAsync(nil, emitter, NewSessionEvent(EventLogin, "a@x.com", "d1"))
	emitter.wait(t)
}

func TestNewSessionEvent(t *testing.T) {
	a := NewSessionEvent(EventLogin, "a@x.com", "d1")
	b := NewSessionEvent(EventLogin, "a@x.com", "d1")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event ids must be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.Source != "device_service" {
		t.Errorf("Source = %q, want device_service", a.Source)
	}
	if a.CreatedAt.IsZero() || a.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want non-zero UTC", a.CreatedAt)
	}
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := newMockEmitter()
	bad := newMockEmitter()
	bad.emitErr = errors.New("kafka unavailable")
	f := Fanout{ok, nil, bad}
	err := f.Emit(context.Background(), NewSessionEvent(EventLogin, "a@x.com", "d1"))
	if err == nil || !strings.Contains(err.Error(), "kafka unavailable") {
		t.Fatalf("Emit err = %v, want joined kafka error", err)
	}
	if len(ok.getEvents()) != 1 || len(bad.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
}
