package usecase

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tickwatch/internal/domain/models"
	"tickwatch/pkg/cache"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, cache.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, cache.NewRedisCacheFromClient(rdb, "")
}

type recordingSink struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (s *recordingSink) Ingest(_ context.Context, tick models.Tick) error {
	s.mu.Lock()
	s.ticks = append(s.ticks, tick)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Ticks() []models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Tick(nil), s.ticks...)
}

func tokenRange(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "T" + strconv.Itoa(i)
	}
	return out
}
