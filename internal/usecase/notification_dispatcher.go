package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/repository"
	applogger "tickwatch/pkg/logger"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

type DispatcherConfig struct {
	Workers           int
	QueueSize         int
	RecipientCooldown time.Duration
	DedupTTL          time.Duration
	GlobalCategory    string
	SendTimeout       time.Duration
}

// DispatchResult summarizes one Dispatch call.
type DispatchResult struct {
	Recipients int
	Sent       int
	Skipped    int
	Failed     int
	Duplicate  bool
}

// NotificationDispatcher resolves recipients for a signal and delivers the
// rendered message to each of them, isolated per recipient.
type NotificationDispatcher struct {
	subs      drepo.SubscriberStore
	cooldowns drepo.CooldownStore
	notifier  drepo.Notifier
	publisher drepo.SignalPublisher
	cfg       DispatcherConfig
	metrics   drepo.Metrics
	log       *applogger.Logger

	queue     chan models.Signal
	stop      chan struct{}
	stopped   atomic.Bool
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewNotificationDispatcher builds a dispatcher. publisher may be nil.
func NewNotificationDispatcher(
	subs drepo.SubscriberStore,
	cooldowns drepo.CooldownStore,
	notifier drepo.Notifier,
	publisher drepo.SignalPublisher,
	cfg DispatcherConfig,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *NotificationDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RecipientCooldown <= 0 {
		cfg.RecipientCooldown = 30 * time.Minute
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 24 * time.Hour
	}
	if cfg.GlobalCategory == "" {
		cfg.GlobalCategory = "breakouts"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &NotificationDispatcher{
		subs:      subs,
		cooldowns: cooldowns,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		log:       l.With("notification-dispatcher"),
		queue:     make(chan models.Signal, cfg.QueueSize),
		stop:      make(chan struct{}),
	}
}

// Dispatch delivers sig synchronously.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, sig models.Signal) (DispatchResult, error) {
	var res DispatchResult

	recipients, err := d.recipients(ctx, sig)
	if err != nil {
		d.metrics.RecordError("recipients")
		return res, err
	}
	res.Recipients = len(recipients)
	if len(recipients) == 0 {
		return res, nil
	}

	targeted := sig.Targeted()
	if targeted && sig.DedupKey != "" {
		first, err := d.cooldowns.Acquire(ctx, sig.DedupKey, d.cfg.DedupTTL)
		if err != nil {
			d.metrics.RecordError("dedup")
			return res, fmt.Errorf("dedup %s: %w", sig.DedupKey, err)
		}
		if !first {
			res.Duplicate = true
			d.metrics.RecordNotification("duplicate")
			return res, nil
		}
	}

	text := RenderMessage(sig)
	for _, r := range recipients {
		var cooldownKey string
		if !targeted {
			cooldownKey = repository.RecipientCooldownKey(r, sig.Symbol)
			active, err := d.cooldowns.Active(ctx, cooldownKey)
			if err != nil {
				res.Failed++
				d.metrics.RecordNotification("failed")
				d.log.Warn("recipient cooldown check failed", applogger.String("recipient", r), applogger.Error(err))
				continue
			}
			if active {
				res.Skipped++
				d.metrics.RecordNotification("cooldown")
				continue
			}
		}

		if err := d.send(ctx, r, text); err != nil {
			res.Failed++
			d.metrics.RecordNotification("failed")
			d.log.Warn("notification failed",
				applogger.String("recipient", r),
				applogger.String("symbol", sig.Symbol),
				applogger.Error(err),
			)
			continue
		}
		res.Sent++
		d.metrics.RecordNotification("sent")

		if cooldownKey != "" {
			if err := d.cooldowns.Set(ctx, cooldownKey, d.cfg.RecipientCooldown); err != nil {
				d.log.Warn("recipient cooldown set failed", applogger.String("recipient", r), applogger.Error(err))
			}
		}
	}

	if targeted && sig.DedupKey != "" && res.Sent == 0 {
		if err := d.cooldowns.Release(ctx, sig.DedupKey); err != nil {
			d.log.Warn("dedup release failed", applogger.String("key", sig.DedupKey), applogger.Error(err))
		}
	}

	d.publish(ctx, sig)

	d.log.Info("signal dispatched",
		applogger.String("type", string(sig.Type)),
		applogger.String("symbol", sig.Symbol),
		applogger.Int("recipients", res.Recipients),
		applogger.Int("sent", res.Sent),
		applogger.Int("skipped", res.Skipped),
		applogger.Int("failed", res.Failed),
	)
	if res.Sent == 0 && res.Failed > 0 {
		return res, ErrDeliveryFailed
	}
	return res, nil
}

// Submit enqueues sig without blocking. It returns false when the queue is
// full or the dispatcher is stopped.
func (d *NotificationDispatcher) Submit(sig models.Signal) bool {
	if d.stopped.Load() {
		return false
	}
	select {
	case d.queue <- sig:
		return true
	default:
		return false
	}
}

// Start launches the delivery workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
		d.log.Info("dispatcher started", applogger.Int("workers", d.cfg.Workers))
	})
}

// Stop halts intake and waits for in-flight sends. Queued signals are dropped.
func (d *NotificationDispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("dispatcher stop: %w", ctx.Err())
	}

	if dropped := len(d.queue); dropped > 0 {
		d.log.Warn("dropping queued signals", applogger.Int("count", dropped))
	}
	return nil
}

func (d *NotificationDispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case sig := <-d.queue:
			d.dispatchSafe(ctx, sig)
		}
	}
}

func (d *NotificationDispatcher) dispatchSafe(ctx context.Context, sig models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordError("dispatch_panic")
			d.log.Error("panic dispatching signal", applogger.String("symbol", sig.Symbol), applogger.Any("panic", r))
		}
	}()
	// in-flight sends outlive the worker context
	if _, err := d.Dispatch(context.WithoutCancel(ctx), sig); err != nil {
		d.log.Warn("dispatch failed", applogger.String("symbol", sig.Symbol), applogger.Error(err))
	}
}

func (d *NotificationDispatcher) recipients(ctx context.Context, sig models.Signal) ([]string, error) {
	if sig.Targeted() {
		return []string{sig.OwnerID}, nil
	}

	bySymbol, err := d.subs.SymbolSubscribers(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol subscribers: %w", err)
	}
	global, err := d.subs.CategorySubscribers(ctx, d.cfg.GlobalCategory)
	if err != nil {
		return nil, fmt.Errorf("category subscribers: %w", err)
	}

	seen := make(map[string]struct{}, len(bySymbol)+len(global))
	out := make([]string, 0, len(bySymbol)+len(global))
	for _, r := range append(bySymbol, global...) {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (d *NotificationDispatcher) send(ctx context.Context, recipient, text string) error {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.notifier.Send(sctx, recipient, text)
}

func (d *NotificationDispatcher) publish(ctx context.Context, sig models.Signal) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, sig); err != nil {
		d.metrics.RecordError("signal_publish")
		d.log.Warn("signal publish failed", applogger.String("symbol", sig.Symbol), applogger.Error(err))
	}
}
