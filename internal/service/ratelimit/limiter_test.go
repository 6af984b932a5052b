package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("bot"))
	assert.True(t, l.Allow("bot"))
	assert.False(t, l.Allow("bot"))
	assert.True(t, l.Allow("other"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("bot"))
	assert.False(t, l.Allow("bot"))
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(1, 0.001)
	require.NoError(t, l.Wait(context.Background(), "bot"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, "bot"), context.DeadlineExceeded)
}

func TestLimiter_WaitReturnsAfterRefill(t *testing.T) {
	l := New(1, 100)
	require.NoError(t, l.Wait(context.Background(), "bot"))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "bot"))
	assert.Less(t, time.Since(start), time.Second)
}
