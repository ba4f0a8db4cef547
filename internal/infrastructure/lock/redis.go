package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/garyjia/store-approval/internal/application/port"
)

// ErrLockTimeout is returned when the key stayed taken for the whole wait budget
var ErrLockTimeout = errors.New("timed out waiting for instance lock")

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Logger interface for lock logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RedisConfig configures the distributed locker
type RedisConfig struct {
	Prefix       string
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

// Redis is a SETNX lock shared by every replica talking to the same Redis
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger Logger
}

// NewRedis creates a distributed locker
func NewRedis(client redis.UniversalClient, cfg RedisConfig, logger Logger) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "approval:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Redis{client: client, cfg: cfg, logger: logger}
}

// Lock polls SETNX until it wins, ctx is done or the wait budget runs out.
// The TTL frees the key if the holder dies before unlocking.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.cfg.Prefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.Wait)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(waitCtx, redisKey, token, r.cfg.TTL).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			return func() { r.unlock(redisKey, token) }, nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
	}
}

func (r *Redis) unlock(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("Failed to release instance lock", "key", redisKey, "error", err)
	}
}

var _ port.InstanceLocker = (*Redis)(nil)
