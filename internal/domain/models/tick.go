package models

import "time"

// Subscription modes understood by the stream.
const (
	ModeLTP       = 1
	ModeQuote     = 2
	ModeSnapQuote = 3
)

// Tick is one decoded quote packet. Token is left unresolved.
type Tick struct {
	Mode           uint8
	ExchangeType   uint8
	Token          string
	Sequence       int64
	ExchangeTime   time.Time
	LTP            float64
	LastTradedQty  int64
	AvgTradedPrice float64
	Volume         int64
	TotalBuyQty    int64
	TotalSellQty   int64
	Open           float64
	High           float64
	Low            float64
	Close          float64
}

// TickSnapshot is the per-symbol view written into the shared store.
type TickSnapshot struct {
	Symbol            string
	LTP               float64
	Open              float64
	High              float64
	Low               float64
	Close             float64
	Volume            int64
	AvgTradedPrice    float64
	LastTradedQty     int64
	TotalBuyQty       int64
	TotalSellQty      int64
	ExchangeTimestamp time.Time
	IngestTimestamp   time.Time
}

// SnapshotFromTick maps a decoded tick onto the snapshot of symbol.
func SnapshotFromTick(symbol string, t Tick, ingestedAt time.Time) TickSnapshot {
	return TickSnapshot{
		Symbol:            symbol,
		LTP:               t.LTP,
		Open:              t.Open,
		High:              t.High,
		Low:               t.Low,
		Close:             t.Close,
		Volume:            t.Volume,
		AvgTradedPrice:    t.AvgTradedPrice,
		LastTradedQty:     t.LastTradedQty,
		TotalBuyQty:       t.TotalBuyQty,
		TotalSellQty:      t.TotalSellQty,
		ExchangeTimestamp: t.ExchangeTime,
		IngestTimestamp:   ingestedAt,
	}
}

// ChangePercent returns the move from previous close, or false when close is unknown.
func (s TickSnapshot) ChangePercent() (float64, bool) {
	if s.Close <= 0 {
		return 0, false
	}
	return (s.LTP - s.Close) / s.Close * 100, true
}
