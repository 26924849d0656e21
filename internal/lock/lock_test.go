package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_AcquireOncePerDay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRunLock(rdb, time.Hour)
	ctx := context.Background()
	day := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)

	ok, err := l.Acquire(ctx, "check", 42, day)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "check", 42, day)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Acquire(ctx, "send", 42, day)
	require.NoError(t, err)
	assert.True(t, ok, "kinds are independent")

	ok, err = l.Acquire(ctx, "check", 42, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, ok, "next day is a new run")

	assert.Equal(t, time.Hour, mr.TTL(l.Key("check", 42, day)))
}

func TestRunLock_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRunLock(rdb, time.Minute)
	ctx := context.Background()
	day := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	ok, err := l.Acquire(ctx, "check", 1, day)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = l.Acquire(ctx, "check", 1, day)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err := NewRunLock(rdb, time.Minute).Acquire(context.Background(), "check", 1, time.Now())
	assert.Error(t, err)
}
