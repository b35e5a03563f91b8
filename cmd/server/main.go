package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"device-session-gate/internal/config"
	"device-session-gate/internal/db"
	"device-session-gate/internal/db/migrate"
	devicehandler "device-session-gate/internal/device/handler"
	devicerepo "device-session-gate/internal/device/repository"
	deviceservice "device-session-gate/internal/device/service"
	healthhandler "device-session-gate/internal/health/handler"
	"device-session-gate/internal/lock"
	"device-session-gate/internal/logger"
	"device-session-gate/internal/security"
	"device-session-gate/internal/server"
	"device-session-gate/internal/telemetry"
	otelsetup "device-session-gate/internal/telemetry/otel"
	"device-session-gate/internal/telemetry/producer"
	eventrepo "device-session-gate/internal/telemetry/repository"
)

const (
	serviceName    = "device-session-gate"
	serviceVersion = "0.1.0"
	// adminTokenTTL is the lifetime of admin tokens issued by operators with the same secret.
	adminTokenTTL = time.Hour
	shutdownGrace = 10 * time.Second
)

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

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, serviceName, serviceVersion, cfg.OTelInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()

	var (
		repo     devicerepo.Repository
		database *sql.DB
		events   *eventrepo.PostgresRepository
	)
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
				return err
			}
			log.Info("migrations applied")
		}
		database, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		repo = devicerepo.NewPostgresRepository(database, cfg.StoreCallTimeout())
		events = eventrepo.NewPostgresRepository(database)
	} else {
		log.Warn("DATABASE_URL is not set; using the in-memory device store")
		repo = devicerepo.NewMemoryRepository()
	}

	var (
		locker        deviceservice.Locker
		healthChecker healthhandler.Checker
	)
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, 0, log)
		healthChecker = healthhandler.CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		locker = lock.NewLocalLocker(0)
	}

	emitter := telemetry.Fanout{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic, log); kp != nil {
		var p producer.Producer = kp
		defer func() {
			if err := p.Close(); err != nil {
				log.Warn("kafka producer close failed", zap.Error(err))
			}
		}()
		emitter = append(emitter, p)
	}
	if events != nil {
		emitter = append(emitter, events)
	}

	registration := deviceservice.NewRegistrationService(repo, deviceservice.Settings{
		DefaultValidity: cfg.DeviceValidity(),
		Cooldown:        cfg.Cooldown(),
		MaxAttempts:     cfg.LoginMaxAttempts,
	}, locker, emitter, log.Named("registration"))
	statusReporter := deviceservice.NewStatusReporter(deviceservice.NewAuthenticator(repo))
	activation := deviceservice.NewActivationService(repo, emitter, log.Named("activation"))

	var adminTokens *security.AdminTokens
	if cfg.AdminJWTSecret != "" {
		adminTokens, err = security.NewAdminTokens(cfg.AdminJWTSecret, cfg.AdminJWTIssuer, cfg.AdminJWTAudience, adminTokenTTL)
		if err != nil {
			return err
		}
	} else {
		log.Info("ADMIN_JWT_SECRET is not set; admin routes disabled")
	}

	var eventLister devicehandler.EventLister
	if events != nil {
		eventLister = events
	}
	devices := devicehandler.NewHandler(registration, statusReporter, activation, eventLister, log)

	grpcServer := server.NewGRPCServer(log)
	var pinger healthhandler.Pinger
	if database != nil {
		pinger = database
	}
	health := server.RegisterServices(grpcServer, server.Deps{HealthPinger: pinger, HealthChecker: healthChecker})

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Devices:       devices,
			Health:        health,
			AdminTokens:   adminTokens,
			EventsEnabled: events != nil,
			Logger:        log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	// Let in-flight async event emits finish before the exporters go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	otelCtx, otelCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer otelCancel()
	if err := providers.Shutdown(otelCtx); err != nil {
		log.Warn("telemetry shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}
