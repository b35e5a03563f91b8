// Package lock provides per-key mutual exclusion for logins of one account, either in-process or
// across replicas through Redis.
package lock

import (
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock is still held by someone else after the wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

const (
	defaultWait  = 2 * time.Second
	pollInterval = 25 * time.Millisecond
)
