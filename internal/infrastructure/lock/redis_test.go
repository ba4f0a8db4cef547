package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func TestRedis_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewRedis(client, RedisConfig{Wait: time.Second}, nopLogger{})

	_, err := l.Lock(context.Background(), "inst-1")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLockTimeout))
}

// Runs against a real server when APPROVAL_TEST_REDIS_ADDR is set
func TestRedis_Live(t *testing.T) {
	addr := os.Getenv("APPROVAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APPROVAL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := "approval:test:" + time.Now().Format("150405.000000") + ":"
	l := NewRedis(client, RedisConfig{Prefix: prefix, TTL: 5 * time.Second, Wait: 100 * time.Millisecond, PollInterval: 10 * time.Millisecond}, nopLogger{})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "inst-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "inst-1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Lock(ctx, "inst-2")
	require.NoError(t, err)
	other()

	unlock()
	again, err := l.Lock(ctx, "inst-1")
	require.NoError(t, err)
	again()
}
