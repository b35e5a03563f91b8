package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseTimeout = time.Second

// releaseScript deletes the key only if it still holds our token, so an expired lock taken over by
// another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient connects to Redis at addr and verifies the connection.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisLocker implements a single-instance Redis lock (SET NX PX plus compare-and-delete release).
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker returns a locker over client. Keys are prefixed with "lock:".
func NewRedisLocker(client redis.Cmdable, wait time.Duration, logger *zap.Logger) *RedisLocker {
	if wait <= 0 {
		wait = defaultWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, prefix: "lock:", wait: wait, logger: logger}
}

// Acquire polls SET NX until the key is free, ctx is done, or the wait budget runs out.
// The lock expires after ttl even if release is never called.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	fullKey := l.prefix + key
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(fullKey, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("lock: release failed", zap.String("key", key), zap.Error(err))
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
