package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and event may be nil; EmitAsync then returns without starting a goroutine.
// The goroutine uses context.Background() so request cancellation does not abort an in-flight emit.
func EmitAsync(logger *zap.Logger, emitter EventEmitter, event *SessionEvent) {
	if emitter == nil || event == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			logger.Warn("telemetry: async emit failed",
				zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
}
