package repository

import (
	"context"
	"time"

	"tickwatch/internal/domain/models"
)

// FeedConn is one authenticated streaming connection.
type FeedConn interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, mode int, exchangeType int, tokens []string) error
	// Run blocks delivering raw binary frames until the connection fails or ctx ends.
	Run(ctx context.Context, onPacket func([]byte)) error
	Close() error
}

// SnapshotStore is the shared per-symbol live snapshot.
type SnapshotStore interface {
	Merge(ctx context.Context, snap models.TickSnapshot) error
	MergeFields(ctx context.Context, symbol string, fields map[string]interface{}) error
	Get(ctx context.Context, symbol string) (models.Snapshot, error)
}

// BaselineStore holds the 52-week high and average volume per symbol.
type BaselineStore interface {
	// Get returns false when no baseline is recorded for symbol.
	Get(ctx context.Context, symbol string) (models.BaselineStats, bool, error)
	Put(ctx context.Context, stats models.BaselineStats) error
}

// CooldownStore holds presence-only keys with TTL.
type CooldownStore interface {
	Active(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
	// Acquire sets key only if absent, returning true when this caller set it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// SubscriberStore resolves notification recipients.
type SubscriberStore interface {
	SymbolSubscribers(ctx context.Context, symbol string) ([]string, error)
	CategorySubscribers(ctx context.Context, category string) ([]string, error)
	AddSymbolSubscriber(ctx context.Context, symbol, recipient string) error
	RemoveSymbolSubscriber(ctx context.Context, symbol, recipient string) error
}

// RuleStore is the durable alert-rule table owned by the intent layer.
type RuleStore interface {
	ListActive(ctx context.Context) ([]models.AlertRule, error)
	// MarkTriggered flips ACTIVE to TRIGGERED; false means the row was no longer ACTIVE.
	MarkTriggered(ctx context.Context, id int64) (bool, error)
}

// CandleStore reads historical daily candles.
type CandleStore interface {
	LatestDaily(ctx context.Context, symbol string, n int) ([]models.Candle, error)
}

// Notifier delivers rendered text to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, text string) error
}

// SignalPublisher emits dispatched signals to the event stream.
type SignalPublisher interface {
	Publish(ctx context.Context, sig models.Signal) error
}

// SignalArchive persists signals for audit.
type SignalArchive interface {
	Store(ctx context.Context, sig models.Signal) error
}

type Metrics interface {
	RecordTick(symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSignal(kind string)
	RecordNotification(result string)
	RecordConnectionState(index int, state string)
}
