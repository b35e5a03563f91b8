package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"device-session-gate/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer used by KafkaProducer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaProducer creates a Kafka producer that writes session events to the given topic.
// Returns nil when brokers or topic are empty so callers can treat Kafka as optional.
// Messages are keyed by account id so all events for one account land on one partition in order.
func NewKafkaProducer(brokers []string, topic string, logger *zap.Logger) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaProducer(writer, logger)
}

func newKafkaProducer(w messageWriter, logger *zap.Logger) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{writer: w, logger: logger}
}

// Emit serializes the event as JSON and writes it to the Kafka topic.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.SessionEvent) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: payload,
		Time:  event.CreatedAt,
	})
	if err != nil {
		p.logger.Warn("telemetry: kafka emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call on a nil producer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
