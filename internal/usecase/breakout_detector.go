package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/repository"
	applogger "tickwatch/pkg/logger"
)

// SignalSink accepts signals without blocking. False means the signal was dropped.
type SignalSink interface {
	Submit(sig models.Signal) bool
}

type BreakoutConfig struct {
	VolumeFactor float64
	CooldownTTL  time.Duration
}

// IsBreakout reports a strict new high on strictly elevated volume.
// An unknown baseline is +Inf and never breaks out.
func IsBreakout(price, volume float64, base models.BaselineStats, factor float64) bool {
	return price > base.High52W && volume > factor*base.AvgVolumeWindow
}

type BreakoutDetector struct {
	baselines drepo.BaselineStore
	cooldowns drepo.CooldownStore
	sink      SignalSink
	cfg       BreakoutConfig
	metrics   drepo.Metrics
	log       *applogger.Logger
}

func NewBreakoutDetector(baselines drepo.BaselineStore, cooldowns drepo.CooldownStore, sink SignalSink, cfg BreakoutConfig, metrics drepo.Metrics, l *applogger.Logger) *BreakoutDetector {
	if cfg.VolumeFactor <= 0 {
		cfg.VolumeFactor = 1.5
	}
	if cfg.CooldownTTL <= 0 {
		cfg.CooldownTTL = time.Hour
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &BreakoutDetector{
		baselines: baselines,
		cooldowns: cooldowns,
		sink:      sink,
		cfg:       cfg,
		metrics:   metrics,
		log:       l.With("breakout-detector"),
	}
}

// Check evaluates one snapshot and hands off a signal when a breakout is not
// already cooling down. Errors are logged and never reach the caller.
func (d *BreakoutDetector) Check(ctx context.Context, snap models.TickSnapshot) bool {
	base, ok, err := d.baselines.Get(ctx, snap.Symbol)
	if err != nil {
		d.metrics.RecordError("baseline_read")
		d.log.Warn("baseline read failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
		return false
	}
	if !ok {
		return false
	}

	volume := float64(snap.Volume)
	if !IsBreakout(snap.LTP, volume, base, d.cfg.VolumeFactor) {
		return false
	}

	key := repository.BreakoutCooldownKey(snap.Symbol)
	acquired, err := d.cooldowns.Acquire(ctx, key, d.cfg.CooldownTTL)
	if err != nil {
		d.metrics.RecordError("cooldown")
		d.log.Warn("breakout cooldown failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
		return false
	}
	if !acquired {
		return false
	}

	sig := models.Signal{
		ID:        uuid.NewString(),
		Type:      models.SignalBreakout,
		Symbol:    snap.Symbol,
		Price:     snap.LTP,
		Volume:    volume,
		Reason:    fmt.Sprintf("Crossed 52W High (%.2f) with High Volume", base.High52W),
		Timestamp: snap.IngestTimestamp,
	}
	if !d.sink.Submit(sig) {
		d.metrics.RecordError("dispatch_queue_full")
		d.log.Warn("breakout signal dropped", applogger.String("symbol", snap.Symbol))
		// let the next tick retry
		if err := d.cooldowns.Release(ctx, key); err != nil {
			d.log.Warn("breakout cooldown release failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
		}
		return false
	}

	d.metrics.RecordSignal(string(models.SignalBreakout))
	d.log.Info("breakout detected",
		applogger.String("symbol", snap.Symbol),
		applogger.Float64("price", snap.LTP),
		applogger.Float64("volume", volume),
		applogger.Float64("high_52w", base.High52W),
	)
	return true
}
