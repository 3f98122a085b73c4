package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/revshare/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 4*time.Second, defaultBucketTTL(50, 100))
	assert.Equal(t, time.Second, defaultBucketTTL(1000, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 10))
}

func TestBucketResultRetryAfter(t *testing.T) {
	res := bucketResult([]interface{}{int64(0), "0.5", int64(1757505600000)}, 2, 10)
	assert.False(t, res.Allowed)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
	assert.Equal(t, 10, res.Limit)

	res = bucketResult([]interface{}{int64(1), "7.75", int64(1757505600000)}, 2, 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 7, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestNilCollaboratorsAreInert(t *testing.T) {
	limiter, err := NewIntakeLimiter(config.Config{Intake: config.IntakeConfig{RateLimitEnabled: true, RateLimitPerSecond: 1, RateLimitBurst: 1}}, nil)
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowTenant(context.Background(), "T1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	var locker *Locker
	_, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.False(t, ok)
	assert.NoError(t, locker.Release(context.Background(), "k", "token"))
}

func TestIntakeLimiterRejectsBadConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err := NewIntakeLimiter(config.Config{Intake: config.IntakeConfig{RateLimitEnabled: true}}, client)
	assert.ErrorIs(t, err, ErrLimiterInvalidRate)
}

func TestIntakeKey(t *testing.T) {
	assert.Equal(t, "revshare:intake:tenant:T1", IntakeKey(" T1 "))
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisLockAndBucket(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()

	key := "revshare:test:lock:" + t.Name()
	locker := NewLocker(client)
	token, ok, err := locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, "not-the-owner"))
	_, ok, _ = locker.TryLock(ctx, key, time.Minute)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, token))
	_, ok, err = locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	client.Del(ctx, key)

	bucketKey := "revshare:test:bucket:" + t.Name()
	client.Del(ctx, bucketKey)
	bucket := NewTokenBucket(client)
	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, bucketKey, 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := bucket.Allow(ctx, bucketKey, 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
}
