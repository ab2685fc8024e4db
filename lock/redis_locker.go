package lock

import (
	"context"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "lock:transfer:"

// RedisLockerOptions tunes the RedLock mutex.
type RedisLockerOptions struct {
	// Expiry is how long the lock survives a crashed holder.
	Expiry time.Duration
	// Wait bounds how long a caller retries before giving up.
	Wait time.Duration
	// RetryDelay is the pause between acquisition attempts.
	RetryDelay time.Duration
}

func DefaultRedisLockerOptions() RedisLockerOptions {
	return RedisLockerOptions{
		Expiry:     30 * time.Second,
		Wait:       5 * time.Second,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RedisLocker serializes requests across service instances with the RedLock
// algorithm. If a holder outlives Expiry the lock is lost; the status guard
// on Finalize still keeps a second execution from committing.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisLockerOptions
}

func NewRedisLocker(client redis.UniversalClient, opts RedisLockerOptions) *RedisLocker {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRedisLockerOptions().RetryDelay
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultRedisLockerOptions().Expiry
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

func (l *RedisLocker) tries() int {
	if l.opts.Wait <= 0 {
		return 1
	}
	return int(l.opts.Wait/l.opts.RetryDelay) + 1
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	log := logger.Log.WithField("lock_key", keyPrefix+key)

	mutex := l.rs.NewMutex(keyPrefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.tries()),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.WithError(err).Warn("Failed to acquire request lock")
		return fmt.Errorf("%w: request %s: %v", common.ErrLockTimeout, key, err)
	}
	log.Debug("Request lock acquired")

	defer func() {
		// The caller's context may already be done; release regardless.
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			log.WithFields(logrus.Fields{"unlock_ok": ok}).WithError(err).Warn("Failed to release request lock")
		}
	}()

	return fn(ctx)
}

var _ Locker = (*RedisLocker)(nil)
