package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"device-session-gate/internal/telemetry"
)

// RecordEmitter is the subset of otellog.Logger used by the adapter.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends session events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger("device-session-gate.sessions"))
}

// NewEventEmitterWithLogger wraps any record emitter, typically an otellog.Logger.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.SessionEvent) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the session event to an OTel log record. The body is the JSON form of the event.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.SessionEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	rec.SetBody(otellog.BytesValue(body))
	rec.SetSeverity(otellog.SeverityInfo)

	attrs := []struct{ key, value string }{
		{"account_id", event.AccountID},
		{"device_id", event.DeviceID},
		{"event_type", event.EventType},
		{"source", event.Source},
		{"superseded_by", event.SupersededBy},
	}
	for _, a := range attrs {
		if a.value != "" {
			rec.AddAttributes(otellog.String(a.key, a.value))
		}
	}
	if event.Count > 0 {
		rec.AddAttributes(otellog.Int("count", event.Count))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
