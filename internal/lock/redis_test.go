package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(addr, os.Getenv("TEST_REDIS_PASSWORD"))
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	l := NewRedisLocker(client, 100*time.Millisecond, nil)
	key := "test:" + uuid.NewString()

	release, err := l.Acquire(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, key, 5*time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("second Acquire: err = %v, want ErrNotAcquired", err)
	}
	release()
	release2, err := l.Acquire(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()

	// A lock that expired and was re-taken is not released by the stale holder.
	stale, err := l.Acquire(ctx, key, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	current, err := l.Acquire(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	stale()
	if _, err := l.Acquire(ctx, key, 5*time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("stale release freed the lock: err = %v", err)
	}
	current()
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	if _, err := NewRedisClient("127.0.0.1:1", ""); err == nil {
		t.Error("expected error for unreachable redis")
	}
}
