package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/repository"
	"tickwatch/internal/testutils"
)

func TestIsBreakout(t *testing.T) {
	base := models.BaselineStats{Symbol: "TCS", High52W: 1000, AvgVolumeWindow: 100000}

	tests := []struct {
		name   string
		price  float64
		volume float64
		base   models.BaselineStats
		want   bool
	}{
		{"new high on volume", 1001, 160000, base, true},
		{"below high", 999, 500000, base, false},
		{"equal high", 1000, 500000, base, false},
		{"equal volume threshold", 1001, 150000, base, false},
		{"just above volume threshold", 1001, 150001, base, true},
		{"unknown baseline", 1e9, 1e12, models.UnknownBaseline("TCS"), false},
		{"unknown volume only", 1001, 1e12, models.BaselineStats{High52W: 1000, AvgVolumeWindow: math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBreakout(tt.price, tt.volume, tt.base, 1.5))
		})
	}
}

type detectorFixture struct {
	detector  *BreakoutDetector
	sink      *testutils.FakeSignalSink
	metrics   *testutils.Metrics
	baselines drepo.BaselineStore
	exists    func(string) bool
	ttl       func(string) time.Duration
}

func newDetectorFixture(t *testing.T) detectorFixture {
	t.Helper()
	mr, c := newRedis(t)
	baselines := repository.NewRedisBaselineStore(c, 0)
	sink := &testutils.FakeSignalSink{}
	m := testutils.NewMetrics()
	d := NewBreakoutDetector(baselines, repository.NewRedisCooldownStore(c), sink, BreakoutConfig{VolumeFactor: 1.5, CooldownTTL: time.Hour}, m, nil)
	return detectorFixture{
		detector:  d,
		sink:      sink,
		metrics:   m,
		baselines: baselines,
		exists:    mr.Exists,
		ttl:       mr.TTL,
	}
}

func snap(symbol string, ltp float64, volume int64) models.TickSnapshot {
	return models.TickSnapshot{Symbol: symbol, LTP: ltp, Volume: volume, IngestTimestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)}
}

func TestBreakoutDetector_FiresOnceWithinCooldown(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.baselines.Put(ctx, models.BaselineStats{Symbol: "TCS", High52W: 1000, AvgVolumeWindow: 100000}))

	assert.True(t, f.detector.Check(ctx, snap("TCS", 1001, 160000)))
	assert.False(t, f.detector.Check(ctx, snap("TCS", 1005, 200000)))

	sigs := f.sink.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, models.SignalBreakout, sigs[0].Type)
	assert.Equal(t, "TCS", sigs[0].Symbol)
	assert.Equal(t, 1001.0, sigs[0].Price)
	assert.Equal(t, 160000.0, sigs[0].Volume)
	assert.Contains(t, sigs[0].Reason, "52W High (1000.00)")
	assert.NotEmpty(t, sigs[0].ID)
	assert.False(t, sigs[0].Targeted())

	assert.True(t, f.exists("alert_cooldown:TCS:breakout"))
	assert.Equal(t, time.Hour, f.ttl("alert_cooldown:TCS:breakout"))
}

func TestBreakoutDetector_NoSignalWithoutBreakout(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.baselines.Put(ctx, models.BaselineStats{Symbol: "TCS", High52W: 1000, AvgVolumeWindow: 100000}))

	assert.False(t, f.detector.Check(ctx, snap("TCS", 999, 500000)))
	assert.Empty(t, f.sink.Signals())
	assert.False(t, f.exists("alert_cooldown:TCS:breakout"))
}

func TestBreakoutDetector_MissingBaselineFailsClosed(t *testing.T) {
	f := newDetectorFixture(t)
	assert.False(t, f.detector.Check(context.Background(), snap("INFY", 1e9, 1e12)))
	assert.Empty(t, f.sink.Signals())
}

func TestBreakoutDetector_FullQueueReleasesCooldown(t *testing.T) {
	f := newDetectorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.baselines.Put(ctx, models.BaselineStats{Symbol: "TCS", High52W: 1000, AvgVolumeWindow: 100000}))
	f.sink.Full = true

	assert.False(t, f.detector.Check(ctx, snap("TCS", 1001, 160000)))
	assert.False(t, f.exists("alert_cooldown:TCS:breakout"))
	assert.Equal(t, 1, f.metrics.Error("dispatch_queue_full"))

	f.sink.Full = false
	assert.True(t, f.detector.Check(ctx, snap("TCS", 1001, 160000)))
}
