package lock

import (
	"context"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"sync"
	"time"
)

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a keyed mutex for a single process. Entries are dropped
// once nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
	wait  time.Duration
}

// NewLocalLocker returns a locker whose callers wait at most wait for a key.
// A zero wait means callers wait until their context ends.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*keyedLock),
		wait:  wait,
	}
}

func (l *LocalLocker) acquireRef(key string) *keyedLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *LocalLocker) releaseRef(key string, kl *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	kl := l.acquireRef(key)
	defer l.releaseRef(key, kl)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case kl.ch <- struct{}{}:
	case <-timeout:
		logger.Log.WithField("lock_key", key).Warn("Timed out waiting for request lock")
		return fmt.Errorf("%w: request %s", common.ErrLockTimeout, key)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}

var _ Locker = (*LocalLocker)(nil)
