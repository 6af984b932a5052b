package models

import (
	"math"
	"time"
)

// BaselineStats are the slow-moving reference values a breakout is judged against.
type BaselineStats struct {
	Symbol          string
	High52W         float64
	AvgVolumeWindow float64
}

// UnknownBaseline is the fail-closed baseline: nothing can exceed it.
func UnknownBaseline(symbol string) BaselineStats {
	return BaselineStats{Symbol: symbol, High52W: math.Inf(1), AvgVolumeWindow: math.Inf(1)}
}

// Candle represents a daily OHLCV record.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
