// Package producer publishes session events to a message broker.
package producer

import (
	"device-session-gate/internal/telemetry"
)

// Producer emits session events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
