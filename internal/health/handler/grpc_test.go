package handler

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

func check(t *testing.T, srv *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check must not return gRPC error on dependency failure: %v", err)
	}
	return resp.GetStatus()
}

func TestCheck_NilDependencies(t *testing.T) {
	if got := check(t, NewServer(nil, nil), ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}
}

func TestCheck_PingerSuccess(t *testing.T) {
	if got := check(t, NewServer(&mockPinger{}, nil), ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}
}

func TestCheck_PingerFailure(t *testing.T) {
	srv := NewServer(&mockPinger{pingErr: errors.New("connection refused")}, nil)
	if got := check(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
}

func TestCheck_CheckerFailure(t *testing.T) {
	srv := NewServer(&mockPinger{}, CheckerFunc(func(context.Context) error { return errors.New("redis down") }))
	if got := check(t, srv, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}
	if err := srv.Ready(context.Background()); err == nil || err.Error() != "redis down" {
		t.Errorf("Ready = %v, want redis down", err)
	}
}

func TestCheck_UnknownService(t *testing.T) {
	_, err := NewServer(nil, nil).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
}
