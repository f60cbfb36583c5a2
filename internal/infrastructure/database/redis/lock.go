package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeRunInProgress, "lock not acquired")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held")
)

const lockKeyPrefix = "lock:"

// DistributedLock is a single-owner lock with a bounded lifetime.
type DistributedLock interface {
	Lock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	TTL(ctx context.Context) (time.Duration, error)
}

type lockConfig struct {
	ttl        time.Duration
	retryCount int
	retryDelay time.Duration
}

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetry(count int, delay time.Duration) LockOption {
	return func(c *lockConfig) {
		c.retryCount = count
		c.retryDelay = delay
	}
}

type redisMutex struct {
	client *Client
	key    string
	value  string
	config lockConfig
	logger logging.Logger
}

// NewMutex builds a lock over key "lock:<name>". Each mutex holds a random
// token so only its owner can release it.
func NewMutex(client *Client, name string, log logging.Logger, opts ...LockOption) DistributedLock {
	cfg := lockConfig{ttl: 30 * time.Second, retryCount: 1, retryDelay: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.retryCount < 1 {
		cfg.retryCount = 1
	}
	return &redisMutex{
		client: client,
		key:    lockKeyPrefix + name,
		value:  uuid.NewString(),
		config: cfg,
		logger: log,
	}
}

var mutexUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var mutexExtendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (m *redisMutex) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i == m.config.retryCount-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired.WithDetail(m.key)
}

func (m *redisMutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key, m.value, m.config.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock").WithDetail(m.key)
	}
	return ok, nil
}

func (m *redisMutex) Unlock(ctx context.Context) error {
	res, err := mutexUnlockScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock").WithDetail(m.key)
	}
	if res == 0 {
		return ErrLockNotHeld.WithDetail(m.key)
	}
	return nil
}

func (m *redisMutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := mutexExtendScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (m *redisMutex) TTL(ctx context.Context) (time.Duration, error) {
	return m.client.GetUnderlyingClient().PTTL(ctx, m.key).Result()
}

// RunGuard rejects a second report run for a query key while one is in
// flight. The lock expires after ttl so a crashed run cannot wedge the key.
type RunGuard struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
}

func NewRunGuard(client *Client, ttl time.Duration, log logging.Logger) *RunGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RunGuard{client: client, ttl: ttl, logger: log}
}

// Acquire takes the lock for key and returns its release func. A held key
// yields an SRC_005 error.
func (g *RunGuard) Acquire(ctx context.Context, key string) (func(), error) {
	m := NewMutex(g.client, "run:"+key, g.logger, WithLockTTL(g.ttl))
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		// the caller's context may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Unlock(rctx); err != nil {
			g.logger.Warn("Failed to release run lock", logging.String("key", key), logging.Err(err))
		}
	}, nil
}
