package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tickwatch/internal/domain/models"
	"tickwatch/internal/domain/repository"
	"tickwatch/pkg/cache"
)

const (
	snapshotPrefix = "stock"
	statsSuffix    = "stats"
)

// SnapshotKey is the shared hash key for symbol.
func SnapshotKey(symbol string) string {
	return cache.GenerateKey(snapshotPrefix, symbol)
}

// StatsKey is the shared baseline key for symbol.
func StatsKey(symbol string) string {
	return cache.GenerateKeyWithParams(snapshotPrefix, symbol, statsSuffix)
}

// RedisSnapshotStore keeps the live per-symbol snapshot as a hash.
// Writes are field-level HSET merges so values owned by other writers survive.
type RedisSnapshotStore struct {
	cache cache.Service
}

func NewRedisSnapshotStore(c cache.Service) repository.SnapshotStore {
	return &RedisSnapshotStore{cache: c}
}

func (s *RedisSnapshotStore) Merge(ctx context.Context, snap models.TickSnapshot) error {
	return s.MergeFields(ctx, snap.Symbol, SnapshotFields(snap))
}

func (s *RedisSnapshotStore) MergeFields(ctx context.Context, symbol string, fields map[string]interface{}) error {
	if symbol == "" {
		return errors.New("snapshot merge: empty symbol")
	}
	if err := s.cache.HSet(ctx, SnapshotKey(symbol), fields); err != nil {
		return fmt.Errorf("snapshot merge %s: %w", symbol, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Get(ctx context.Context, symbol string) (models.Snapshot, error) {
	fields, err := s.cache.HGetAll(ctx, SnapshotKey(symbol))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshot get %s: %w", symbol, err)
	}
	return models.Snapshot{Symbol: symbol, Fields: fields}, nil
}

// SnapshotFields renders the tick-owned fields of a snapshot.
func SnapshotFields(snap models.TickSnapshot) map[string]interface{} {
	fields := map[string]interface{}{
		models.FieldLTP:            formatPrice(snap.LTP),
		models.FieldOpen:           formatPrice(snap.Open),
		models.FieldHigh:           formatPrice(snap.High),
		models.FieldLow:            formatPrice(snap.Low),
		models.FieldClose:          formatPrice(snap.Close),
		models.FieldVolume:         strconv.FormatInt(snap.Volume, 10),
		models.FieldAvgTradedPrice: formatPrice(snap.AvgTradedPrice),
		models.FieldLastTradedQty:  strconv.FormatInt(snap.LastTradedQty, 10),
		models.FieldTotalBuyQty:    strconv.FormatInt(snap.TotalBuyQty, 10),
		models.FieldTotalSellQty:   strconv.FormatInt(snap.TotalSellQty, 10),
		models.FieldTimestamp:      snap.IngestTimestamp.UTC().Format(time.RFC3339),
	}
	if !snap.ExchangeTimestamp.IsZero() {
		fields[models.FieldExchangeTS] = strconv.FormatInt(snap.ExchangeTimestamp.UnixMilli(), 10)
	}
	if pct, ok := snap.ChangePercent(); ok {
		fields[models.FieldChangePercent] = formatPrice(pct)
	}
	return fields
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type statsPayload struct {
	High52W   *float64 `json:"high_52w"`
	AvgVolume *float64 `json:"avg_volume"`
}

// RedisBaselineStore reads and writes stock:{symbol}:stats as JSON.
type RedisBaselineStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewRedisBaselineStore stores baselines with ttl; zero keeps them until overwritten.
func NewRedisBaselineStore(c cache.Service, ttl time.Duration) repository.BaselineStore {
	return &RedisBaselineStore{cache: c, ttl: ttl}
}

// Get returns false when the key is absent. A payload missing either value
// fails closed on that value.
func (s *RedisBaselineStore) Get(ctx context.Context, symbol string) (models.BaselineStats, bool, error) {
	var p statsPayload
	if err := s.cache.Get(ctx, StatsKey(symbol), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.UnknownBaseline(symbol), false, nil
		}
		return models.UnknownBaseline(symbol), false, fmt.Errorf("baseline get %s: %w", symbol, err)
	}

	stats := models.UnknownBaseline(symbol)
	if p.High52W != nil {
		stats.High52W = *p.High52W
	}
	if p.AvgVolume != nil {
		stats.AvgVolumeWindow = *p.AvgVolume
	}
	return stats, true, nil
}

func (s *RedisBaselineStore) Put(ctx context.Context, stats models.BaselineStats) error {
	p := statsPayload{High52W: &stats.High52W, AvgVolume: &stats.AvgVolumeWindow}
	if err := s.cache.Set(ctx, StatsKey(stats.Symbol), p, s.ttl); err != nil {
		return fmt.Errorf("baseline put %s: %w", stats.Symbol, err)
	}
	return nil
}
