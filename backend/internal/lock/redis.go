package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"buddy/backend/internal/constants"
	apperrors "buddy/backend/pkg/errors"
	"buddy/backend/pkg/logger"
)

// ErrHeld is returned by Acquire when another owner holds the resource
var ErrHeld = errors.New("lock already held")

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker provides mutual exclusion across processes using SET NX PX
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a locker whose locks expire after ttl and whose
// TryAcquire gives up after wait
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger.Named("lock"),
	}
}

// UserResource names the per-user build lock
func UserResource(userID string) string {
	return constants.UserLockPrefix + userID
}

// Acquire makes a single attempt at resource
func (l *RedisLocker) Acquire(ctx context.Context, resource string) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, resource, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	l.logger.Debug("Lock acquired",
		zap.String("resource", resource),
		zap.Duration("ttl", l.ttl),
	)
	return &Lock{
		client:    l.client,
		logger:    l.logger,
		resource:  resource,
		token:     token,
		expiresAt: time.Now().Add(l.ttl),
	}, nil
}

// TryAcquire retries Acquire with growing backoff until the wait budget runs out
func (l *RedisLocker) TryAcquire(ctx context.Context, resource string) (*Lock, error) {
	start := time.Now()
	deadline := start.Add(l.wait)
	retryInterval := 50 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, resource)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrHeld) {
			return nil, apperrors.NewLockNotAcquired(resource, time.Since(start), err)
		}
		if !time.Now().Before(deadline) {
			return nil, apperrors.NewLockNotAcquired(resource, time.Since(start), err)
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.NewLockNotAcquired(resource, time.Since(start), ctx.Err())
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

// Lock is a held resource
type Lock struct {
	client    *redis.Client
	logger    *zap.Logger
	resource  string
	token     string
	expiresAt time.Time
}

// Resource returns the locked key
func (l *Lock) Resource() string {
	return l.resource
}

// Release frees the lock if this owner still holds it. A lock that already
// expired or was taken over is not an error.
func (l *Lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.resource}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if deleted == 0 {
		l.logger.Warn("Lock already released or owned by someone else",
			zap.String("resource", l.resource),
		)
	}
	return nil
}

// IsExpired reports whether the ttl has elapsed
func (l *Lock) IsExpired() bool {
	return time.Now().After(l.expiresAt)
}
