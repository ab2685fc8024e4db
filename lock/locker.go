// Package lock provides the critical section keyed by request id that the
// idempotency coordinator holds while it reads, decides and writes the
// outcome of a request.
package lock

import "context"

// Locker runs fn while holding an exclusive lock on key. Failing to obtain
// the lock within the configured bound returns common.ErrLockTimeout.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
