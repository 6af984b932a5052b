package usecase

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/repository"
	"tickwatch/internal/testutils"
)

type staticSymbols []string

func (s staticSymbols) Symbols() []string { return s }

func newTestRefresher(t *testing.T, candles *testutils.FakeCandleStore, symbols ...string) (*BaselineRefresher, *miniredis.Miniredis, drepo.BaselineStore) {
	t.Helper()
	mr, c := newRedis(t)
	baselines := repository.NewRedisBaselineStore(c, 0)
	r := NewBaselineRefresher(staticSymbols(symbols), candles, baselines, repository.NewRedisSnapshotStore(c),
		BaselineConfig{Candles: 252, VolumeWindow: 2, RSIPeriod: 3}, testutils.NewMetrics(), nil)
	return r, mr, baselines
}

func TestBaselineRefresher_ComputesStats(t *testing.T) {
	cs := testutils.DailyCandles("TCS", []float64{100, 102, 101, 102}, 1000)
	cs[2].Volume = 3000
	candles := &testutils.FakeCandleStore{Candles: map[string][]models.Candle{"TCS": cs}}
	r, mr, baselines := newTestRefresher(t, candles, "TCS")

	ok, err := r.Refresh(context.Background(), "TCS")
	require.NoError(t, err)
	require.True(t, ok)

	stats, found, err := baselines.Get(context.Background(), "TCS")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 103.0, stats.High52W)
	assert.Equal(t, 2000.0, stats.AvgVolumeWindow)

	assert.Equal(t, "75.00", mr.HGet("stock:TCS", "rsi"))
	assert.Equal(t, "2000.00", mr.HGet("stock:TCS", "avg_volume"))
}

func TestBaselineRefresher_SkipsShortHistory(t *testing.T) {
	candles := &testutils.FakeCandleStore{Candles: map[string][]models.Candle{
		"NEW": testutils.DailyCandles("NEW", []float64{50}, 10),
	}}
	r, mr, _ := newTestRefresher(t, candles, "NEW")

	ok, err := r.Refresh(context.Background(), "NEW")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("stock:NEW:stats"))
}

func TestBaselineRefresher_IsolatesSymbolErrors(t *testing.T) {
	candles := &testutils.FakeCandleStore{
		Candles: map[string][]models.Candle{"TCS": testutils.DailyCandles("TCS", []float64{1, 2, 3, 4, 5}, 10)},
		Errs:    map[string]error{"INFY": testutils.ErrInjected},
	}
	r, mr, _ := newTestRefresher(t, candles, "INFY", "TCS")

	assert.Equal(t, 1, r.RefreshAll(context.Background()))
	assert.True(t, mr.Exists("stock:TCS:stats"))
}
