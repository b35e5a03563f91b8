package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "device-session-gate/internal/health/handler"
	"device-session-gate/internal/server/middleware"
)

// Deps holds the gRPC service dependencies.
type Deps struct {
	// HealthPinger is used by the health service for readiness (e.g. *sql.DB). If nil, the DB ping is skipped.
	HealthPinger healthhandler.Pinger
	// HealthChecker is any further readiness check (e.g. Redis). If nil, it is skipped.
	HealthChecker healthhandler.Checker
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry and access logging.
func NewGRPCServer(logger *zap.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(middleware.LoggingUnary(logger)),
	)
}

// RegisterServices registers the gRPC services with the given server and returns the health
// server so the HTTP /healthz route can share it.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) *healthhandler.Server {
	health := healthhandler.NewServer(deps.HealthPinger, deps.HealthChecker)
	healthpb.RegisterHealthServer(s, health)
	return health
}
