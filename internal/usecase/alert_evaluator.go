package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/repository"
	applogger "tickwatch/pkg/logger"
)

var ErrSweepInProgress = errors.New("alert sweep already in progress")

type AlertConfig struct {
	Interval     time.Duration
	SweepTimeout time.Duration
}

// SweepResult summarizes one pass over the active rules.
type SweepResult struct {
	Evaluated int
	NoData    int
	Triggered int
	Lost      int
	Errors    int
}

// AlertEvaluator periodically compares ACTIVE rules against live snapshots
// and commits matches as TRIGGERED before notifying the owner.
type AlertEvaluator struct {
	rules     drepo.RuleStore
	snapshots drepo.SnapshotStore
	sink      SignalSink
	cfg       AlertConfig
	metrics   drepo.Metrics
	log       *applogger.Logger
	now       func() time.Time

	inFlight atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

func NewAlertEvaluator(rules drepo.RuleStore, snapshots drepo.SnapshotStore, sink SignalSink, cfg AlertConfig, metrics drepo.Metrics, l *applogger.Logger) *AlertEvaluator {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = cfg.Interval
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &AlertEvaluator{
		rules:     rules,
		snapshots: snapshots,
		sink:      sink,
		cfg:       cfg,
		metrics:   metrics,
		log:       l.With("alert-evaluator"),
		now:       time.Now,
	}
}

// Sweep evaluates every ACTIVE rule once. A sweep that starts while another is
// running returns ErrSweepInProgress without doing anything.
func (e *AlertEvaluator) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if !e.inFlight.CompareAndSwap(false, true) {
		e.metrics.RecordError("sweep_overlap")
		return res, ErrSweepInProgress
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SweepTimeout)
	defer cancel()

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		e.metrics.RecordError("rule_list")
		return res, fmt.Errorf("list active rules: %w", err)
	}

	for _, rule := range rules {
		if ctx.Err() != nil {
			e.metrics.RecordError("sweep_timeout")
			e.log.Warn("sweep deadline reached", applogger.Int("remaining", len(rules)-res.Evaluated))
			break
		}
		res.Evaluated++
		e.evaluate(ctx, rule, &res)
	}

	e.metrics.RecordLatency("alert_sweep", time.Since(start).Seconds())
	if res.Triggered > 0 || res.Errors > 0 {
		e.log.Info("alert sweep finished",
			applogger.Int("evaluated", res.Evaluated),
			applogger.Int("triggered", res.Triggered),
			applogger.Int("no_data", res.NoData),
			applogger.Int("errors", res.Errors),
		)
	}
	return res, nil
}

func (e *AlertEvaluator) evaluate(ctx context.Context, rule models.AlertRule, res *SweepResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Errors++
			e.metrics.RecordError("alert_panic")
			e.log.Error("panic evaluating alert", applogger.Int64("rule_id", rule.ID), applogger.Any("panic", r))
		}
	}()

	snap, err := e.snapshots.Get(ctx, rule.Symbol)
	if err != nil {
		res.Errors++
		e.metrics.RecordError("snapshot_read")
		e.log.Warn("snapshot read failed", applogger.Int64("rule_id", rule.ID), applogger.String("symbol", rule.Symbol), applogger.Error(err))
		return
	}

	value, ok := IndicatorValue(snap, rule.Indicator)
	if !ok {
		res.NoData++
		return
	}
	if !rule.Operator.Matches(value, rule.Threshold) {
		return
	}

	flipped, err := e.rules.MarkTriggered(ctx, rule.ID)
	if err != nil {
		res.Errors++
		e.metrics.RecordError("rule_update")
		e.log.Warn("mark triggered failed", applogger.Int64("rule_id", rule.ID), applogger.Error(err))
		return
	}
	if !flipped {
		// another writer already moved it out of ACTIVE
		res.Lost++
		return
	}
	res.Triggered++

	triggeredAt := e.now().UTC()
	volume, _ := snap.Float(models.FieldVolume)
	sig := models.Signal{
		ID:        uuid.NewString(),
		Type:      models.SignalAlert,
		Symbol:    rule.Symbol,
		Price:     value,
		Volume:    volume,
		Reason:    fmt.Sprintf("%s %s %v", rule.Indicator, rule.Operator.Direction(), rule.Threshold),
		Timestamp: triggeredAt,
		OwnerID:   rule.OwnerID,
		RuleID:    rule.ID,
		Indicator: rule.Indicator,
		Operator:  rule.Operator,
		Threshold: rule.Threshold,
		DedupKey:  repository.NotifyDedupKey(rule.ID, triggeredAt),
	}
	e.metrics.RecordSignal(string(models.SignalAlert))
	if !e.sink.Submit(sig) {
		// committed without notify
		e.metrics.RecordError("dispatch_queue_full")
		e.log.Error("alert signal dropped after commit",
			applogger.Int64("rule_id", rule.ID),
			applogger.String("owner", rule.OwnerID),
		)
		return
	}
	e.log.Info("alert triggered",
		applogger.Int64("rule_id", rule.ID),
		applogger.String("symbol", rule.Symbol),
		applogger.Float64("value", value),
	)
}

// IndicatorValue extracts the rule's indicator from a snapshot. A missing or
// unparseable field is no data; a price must also be positive.
func IndicatorValue(snap models.Snapshot, ind models.Indicator) (float64, bool) {
	v, ok := snap.Float(ind.Field())
	if !ok {
		return 0, false
	}
	if ind == models.IndicatorPrice && v <= 0 {
		return 0, false
	}
	return v, true
}

// Start runs a sweep every interval until Stop.
func (e *AlertEvaluator) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// sweep in its own goroutine so a slow pass is skipped, not queued
				e.wg.Add(1)
				go func() {
					defer e.wg.Done()
					if _, err := e.Sweep(runCtx); err != nil && !errors.Is(err, ErrSweepInProgress) {
						e.log.Warn("alert sweep failed", applogger.Error(err))
					}
				}()
			}
		}
	}()
	e.log.Info("alert evaluator started", applogger.Duration("interval", e.cfg.Interval))
}

// Stop halts the ticker and waits for a running sweep.
func (e *AlertEvaluator) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
}
