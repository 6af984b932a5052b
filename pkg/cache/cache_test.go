package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Service {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem := NewMemoryCache(MemoryConfig{})
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]Service{
		"redis":  NewRedisCacheFromClient(rdb, ""),
		"memory": mem,
	}
}

func TestService_HashMergeKeepsOtherFields(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.HSet(ctx, "stock:TCS", map[string]interface{}{"rsi": "41.5"}))
			require.NoError(t, c.HSet(ctx, "stock:TCS", map[string]interface{}{"ltp": "3500.25", "volume": "1200"}))

			got, err := c.HGetAll(ctx, "stock:TCS")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"rsi": "41.5", "ltp": "3500.25", "volume": "1200"}, got)
		})
	}
}

func TestService_HGetAllMissing(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := c.HGetAll(context.Background(), "stock:NONE")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestService_SetNX(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := c.SetNX(ctx, "alert_cooldown:TCS:breakout", "1", time.Hour)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.SetNX(ctx, "alert_cooldown:TCS:breakout", "1", time.Hour)
			require.NoError(t, err)
			assert.False(t, ok)

			exists, err := c.Exists(ctx, "alert_cooldown:TCS:breakout")
			require.NoError(t, err)
			assert.True(t, exists)

			require.NoError(t, c.Delete(ctx, "alert_cooldown:TCS:breakout"))
			exists, err = c.Exists(ctx, "alert_cooldown:TCS:breakout")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestService_SetGetJSON(t *testing.T) {
	type stats struct {
		High52W   float64 `json:"high_52w"`
		AvgVolume float64 `json:"avg_volume"`
	}

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, "stock:TCS:stats", stats{High52W: 4000, AvgVolume: 1e6}, 0))

			var got stats
			require.NoError(t, c.Get(ctx, "stock:TCS:stats", &got))
			assert.Equal(t, stats{High52W: 4000, AvgVolume: 1e6}, got)

			err := c.Get(ctx, "stock:INFY:stats", &got)
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestService_Sets(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.SAdd(ctx, "watchlist:TCS", "100", "200"))
			require.NoError(t, c.SAdd(ctx, "subscribers:breakouts", "200", "300"))

			union, err := c.SUnion(ctx, "watchlist:TCS", "subscribers:breakouts")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"100", "200", "300"}, union)

			require.NoError(t, c.SRem(ctx, "watchlist:TCS", "100"))
			members, err := c.SMembers(ctx, "watchlist:TCS")
			require.NoError(t, err)
			assert.Equal(t, []string{"200"}, members)
		})
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	mc := NewMemoryCache(MemoryConfig{Now: func() time.Time { return now }})
	defer mc.Close()

	ctx := context.Background()
	ok, err := mc.SetNX(ctx, "cooldown:1:TCS", "1", 30*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(31 * time.Minute)

	exists, err := mc.Exists(ctx, "cooldown:1:TCS")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = mc.SetNX(ctx, "cooldown:1:TCS", "1", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_Prefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisCacheFromClient(rdb, "tw")
	require.NoError(t, c.Set(context.Background(), "k", "v", 0))

	v, err := mr.Get("tw:k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "cooldown:42:TCS", GenerateKeyWithParams("cooldown", 42, "TCS"))
	assert.Equal(t, "stock:TCS", GenerateKey("stock", "TCS"))
}

func TestNewRedisCache_PingsAndKeepsPrefix(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "tw"})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 10, c.Client().Options().PoolSize)
	require.NoError(t, c.SAdd(context.Background(), "subscribers:breakouts", "42"))
	assert.True(t, mr.Exists("tw:subscribers:breakouts"))
}

func TestNewRedisCache_UnreachableFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), RedisConfig{Addr: addr, DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
