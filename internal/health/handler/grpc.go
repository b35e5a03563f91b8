package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the name clients may pass to Check besides the empty overall name.
const ServiceName = "device-session-gate"

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker is any other readiness dependency (e.g. the Redis lock).
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f(ctx).
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Server implements grpc.health.v1.Health for readiness/liveness and backs the HTTP /healthz route.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger  Pinger
	checker Checker
}

// NewServer returns a health server. pinger and checker may be nil; nil dependencies are skipped.
func NewServer(pinger Pinger, checker Checker) *Server {
	return &Server{pinger: pinger, checker: checker}
}

// Ready returns the first failing dependency check, or nil.
func (s *Server) Ready(ctx context.Context) error {
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return err
		}
	}
	if s.checker != nil {
		if err := s.checker.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Check reports SERVING when every dependency answers and NOT_SERVING otherwise.
// Dependency failures are reported in the status, never as an RPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}
	if err := s.Ready(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
