package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	applogger "tickwatch/pkg/logger"
)

var ErrUnknownToken = errors.New("unknown instrument token")

// SymbolResolver maps feed tokens back to symbols.
type SymbolResolver interface {
	Symbol(token string) (string, bool)
}

// BreakoutChecker inspects a freshly written snapshot.
type BreakoutChecker interface {
	Check(ctx context.Context, snap models.TickSnapshot) bool
}

// TickIngester writes each decoded tick into the shared snapshot and runs
// breakout detection inline.
type TickIngester struct {
	symbols  SymbolResolver
	store    drepo.SnapshotStore
	detector BreakoutChecker
	metrics  drepo.Metrics
	log      *applogger.Logger
	now      func() time.Time
}

func NewTickIngester(symbols SymbolResolver, store drepo.SnapshotStore, detector BreakoutChecker, metrics drepo.Metrics, l *applogger.Logger) *TickIngester {
	if l == nil {
		l = applogger.Nop()
	}
	return &TickIngester{
		symbols:  symbols,
		store:    store,
		detector: detector,
		metrics:  metrics,
		log:      l.With("tick-ingester"),
		now:      time.Now,
	}
}

func (i *TickIngester) Ingest(ctx context.Context, tick models.Tick) error {
	symbol, ok := i.symbols.Symbol(tick.Token)
	if !ok {
		i.metrics.RecordError("unknown_token")
		i.log.Debug("dropping tick for unknown token", applogger.String("token", tick.Token))
		return fmt.Errorf("%w: %s", ErrUnknownToken, tick.Token)
	}

	start := time.Now()
	snap := models.SnapshotFromTick(symbol, tick, i.now().UTC())
	if err := i.store.Merge(ctx, snap); err != nil {
		i.metrics.RecordError("snapshot_write")
		i.log.Warn("snapshot write failed", applogger.String("symbol", symbol), applogger.Error(err))
		return fmt.Errorf("ingest %s: %w", symbol, err)
	}
	i.metrics.RecordTick(symbol)
	i.metrics.RecordLastPrice(symbol, snap.LTP)

	if i.detector != nil {
		i.detector.Check(ctx, snap)
	}
	i.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	return nil
}
