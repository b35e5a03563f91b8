package middleware

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingUnary_PassesThrough(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := LoggingUnary(zap.New(core))

	wantErr := status.Error(codes.NotFound, "nope")
	resp, err := interceptor(context.Background(), "req",
		&grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "resp", wantErr })

	if resp != "resp" || !errors.Is(err, wantErr) {
		t.Fatalf("interceptor = %v, %v; want resp, %v", resp, err, wantErr)
	}
	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["code"]; got != "NotFound" {
		t.Errorf("code = %v, want NotFound", got)
	}
}
