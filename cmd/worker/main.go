// Worker consumes session events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, SESSION_EVENTS_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"device-session-gate/internal/config"
	"device-session-gate/internal/logger"
	"device-session-gate/internal/telemetry/loki"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		log.Fatal("worker: LOKI_URL is required", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.SessionEventsTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("worker: shutting down")
		cancel()
	}()

	log.Info("worker: consuming session events",
		zap.String("topic", cfg.SessionEventsTopic),
		zap.String("group_id", cfg.KafkaGroupID),
		zap.String("loki_url", cfg.LokiURL))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker: stopped")
				return
			}
			log.Warn("worker: kafka read error", zap.Error(err))
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, pushTimeout)
		if err := client.PushEventJSON(pushCtx, msg.Value); err != nil {
			log.Warn("worker: loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		pushCancel()
	}
}
