package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker guards the check-and-commit section of a booking per slot key.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisSlotLocker creates a locker that uses one Redis key per slot.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		log:    logging.OrNop(log),
	}
}

func lockKey(slotKey string) string {
	return "lock:slot:" + slotKey
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	key := lockKey(slotKey)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		l.log.Debug("slot lock busy", zap.String("key", key))
		return ErrLockNotAcquired
	}

	defer func() {
		// release on a fresh context so a cancelled request still frees the key
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.release(relCtx, key, token); err != nil {
			l.log.Warn("slot lock release failed", zap.String("key", key), zap.Error(err))
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
