package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis connects to PROMPTSMITH_TEST_REDIS or skips.
func testRedis(t *testing.T) *RedisArchive {
	t.Helper()
	addr := os.Getenv("PROMPTSMITH_TEST_REDIS")
	if addr == "" {
		t.Skip("PROMPTSMITH_TEST_REDIS not set")
	}
	prefix := "promptsmith:test:" + uuid.NewString() + ":"
	a, err := OpenRedis(context.Background(), RedisOptions{Addr: addr, Prefix: prefix, TTL: time.Minute}, silentLog())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := a.rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			a.rdb.Del(ctx, keys...)
		}
		a.Close()
	})
	return a
}

func TestRedisArchive_Keys(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	a := NewRedisArchive(rdb, RedisOptions{}, silentLog())
	assert.Equal(t, DefaultRedisPrefix+"abc", a.key("abc"))
	assert.Equal(t, DefaultRedisPrefix+"index", a.indexKey())

	a = NewRedisArchive(rdb, RedisOptions{Prefix: "x:"}, silentLog())
	assert.Equal(t, "x:abc", a.key("abc"))
}

func TestOpenRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := OpenRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"}, silentLog())
	assert.Error(t, err)
}

func TestRedisArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := testRedis(t)
	s := testSession("s1")

	require.NoError(t, a.SaveSession(ctx, s))

	got, err := a.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Len(t, got.Messages, 3)
	assert.Equal(t, s.Profile.Map(), got.Profile.Map())

	ttl, err := a.rdb.TTL(ctx, a.key("s1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	list, err := a.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)

	require.NoError(t, a.DeleteSession(ctx, "s1"))
	_, err = a.LoadSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, a.DeleteSession(ctx, "s1"), ErrNotFound)
}

func TestRedisArchive_ListPrunesExpired(t *testing.T) {
	ctx := context.Background()
	a := testRedis(t)

	require.NoError(t, a.SaveSession(ctx, testSession("live")))
	require.NoError(t, a.rdb.ZAdd(ctx, a.indexKey(), redis.Z{Score: 1, Member: "gone"}).Err())

	list, err := a.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].ID)

	n, err := a.rdb.ZCard(ctx, a.indexKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
