package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/services/features"
	applogger "tickwatch/pkg/logger"
)

type BaselineConfig struct {
	Interval     time.Duration
	Candles      int
	VolumeWindow int
	RSIPeriod    int
}

// SymbolLister enumerates the tracked instruments.
type SymbolLister interface {
	Symbols() []string
}

// BaselineRefresher derives 52-week high, average volume and RSI from daily
// candles and writes them where the detector and evaluator read them.
type BaselineRefresher struct {
	symbols   SymbolLister
	candles   drepo.CandleStore
	baselines drepo.BaselineStore
	snapshots drepo.SnapshotStore
	cfg       BaselineConfig
	metrics   drepo.Metrics
	log       *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBaselineRefresher(symbols SymbolLister, candles drepo.CandleStore, baselines drepo.BaselineStore, snapshots drepo.SnapshotStore, cfg BaselineConfig, metrics drepo.Metrics, l *applogger.Logger) *BaselineRefresher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Candles <= 0 {
		cfg.Candles = 252
	}
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = 20
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &BaselineRefresher{
		symbols:   symbols,
		candles:   candles,
		baselines: baselines,
		snapshots: snapshots,
		cfg:       cfg,
		metrics:   metrics,
		log:       l.With("baseline-refresher"),
	}
}

// RefreshAll refreshes every symbol and returns how many were updated.
func (r *BaselineRefresher) RefreshAll(ctx context.Context) int {
	start := time.Now()
	updated := 0
	for _, sym := range r.symbols.Symbols() {
		if ctx.Err() != nil {
			break
		}
		ok, err := r.Refresh(ctx, sym)
		if err != nil {
			r.metrics.RecordError("baseline_refresh")
			r.log.Warn("baseline refresh failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		if ok {
			updated++
		}
	}
	r.metrics.RecordLatency("baseline_refresh", time.Since(start).Seconds())
	r.log.Info("baselines refreshed", applogger.Int("updated", updated))
	return updated
}

// Refresh recomputes one symbol. It reports false when there are too few candles.
func (r *BaselineRefresher) Refresh(ctx context.Context, symbol string) (bool, error) {
	candles, err := r.candles.LatestDaily(ctx, symbol, r.cfg.Candles)
	if err != nil {
		return false, err
	}
	if len(candles) < 2 {
		return false, nil
	}

	high, _ := features.High52W(candles)
	avgVol, _ := features.AvgVolume(candles, r.cfg.VolumeWindow)
	if err := r.baselines.Put(ctx, models.BaselineStats{Symbol: symbol, High52W: high, AvgVolumeWindow: avgVol}); err != nil {
		return false, err
	}

	fields := map[string]interface{}{
		models.FieldAvgVolume: strconv.FormatFloat(avgVol, 'f', 2, 64),
	}
	if rsi, ok := features.RSI(features.Closes(candles), r.cfg.RSIPeriod); ok {
		fields[models.FieldRSI] = strconv.FormatFloat(rsi, 'f', 2, 64)
	}
	if err := r.snapshots.MergeFields(ctx, symbol, fields); err != nil {
		return false, err
	}
	return true, nil
}

// Start refreshes immediately and then on every interval.
func (r *BaselineRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RefreshAll(runCtx)

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.RefreshAll(runCtx)
			}
		}
	}()
}

func (r *BaselineRefresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
}
