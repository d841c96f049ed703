package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrDocumentBusy is returned when another approval holds the document lock.
var ErrDocumentBusy = fmt.Errorf("%w: document is being approved by another request, retry", ErrConflict)

// DocumentLockKey builds redis keys for per-document approval critical sections.
func DocumentLockKey(entity string, id int64) string {
	return fmt.Sprintf("supply:%s:%d:lock", entity, id)
}

// Locker serializes work on one document across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// DocumentLocker takes short-lived redis locks ahead of the database row lock.
type DocumentLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewDocumentLocker constructs a DocumentLocker.
func NewDocumentLocker(rdb redis.UniversalClient, ttl time.Duration) *DocumentLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &DocumentLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.ExponentialBackoff(20*time.Millisecond, 500*time.Millisecond), 10),
	}
}

// WithLock runs fn while holding key.
func (l *DocumentLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrDocumentBusy
		}
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// WithDocumentLock is a nil-tolerant helper for services with an optional Locker.
func WithDocumentLock(ctx context.Context, locker Locker, key string, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	return locker.WithLock(ctx, key, fn)
}
