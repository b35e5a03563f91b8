package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker serializes callers of the same key within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns a LocalLocker. A non-positive wait uses the default of 2s.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultWait
	}
	return &LocalLocker{slots: make(map[string]*slot), wait: wait}
}

// Acquire blocks until key is free, ctx is done, or the wait budget runs out. ttl is ignored:
// an in-process holder cannot outlive its own release.
func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	s := l.ref(key)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key)
		return nil, ErrNotAcquired
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key)
		})
	}, nil
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
