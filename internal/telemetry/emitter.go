// Package telemetry defines session lifecycle events and best-effort emitters for them.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types emitted by the device service.
const (
	EventLogin                 = "login"
	EventDeviceSuperseded      = "device_superseded"
	EventCrossAccountLogout    = "device_logged_out_cross_account"
	EventLoginCooldownRejected = "login_cooldown_rejected"
	EventDeviceActivated       = "device_activated"
	defaultSource              = "device_service"
)

// SessionEvent is one device-session lifecycle event. It is serialized as JSON on Kafka.
type SessionEvent struct {
	ID           string    `json:"id"`
	EventType    string    `json:"event_type"`
	Source       string    `json:"source"`
	AccountID    string    `json:"account_id"`
	DeviceID     string    `json:"device_id"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	Count        int       `json:"count,omitempty"`
	Created      bool      `json:"created,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewSessionEvent returns an event with a fresh ULID and the current UTC time.
func NewSessionEvent(eventType, accountID, deviceID string) *SessionEvent {
	return &SessionEvent{
		ID:        ulid.Make().String(),
		EventType: eventType,
		Source:    defaultSource,
		AccountID: accountID,
		DeviceID:  deviceID,
		CreatedAt: time.Now().UTC(),
	}
}

// EventEmitter emits session events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *SessionEvent) error
}

// Fanout emits every event to each non-nil emitter and joins their errors.
type Fanout []EventEmitter

// Emit implements EventEmitter.
func (f Fanout) Emit(ctx context.Context, event *SessionEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
