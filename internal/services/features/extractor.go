package features

import (
	"math"

	"tickwatch/internal/domain/models"
)

// Closes extracts close prices in candle order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.Close)
	}
	return out
}

// High52W returns the highest high across candles, or false when there are none.
func High52W(candles []models.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	high := math.Inf(-1)
	for _, c := range candles {
		if c.High > high {
			high = c.High
		}
	}
	return high, true
}

// AvgVolume averages volume over the last window candles.
// Fewer candles than window averages what is there.
func AvgVolume(candles []models.Candle, window int) (float64, bool) {
	if len(candles) == 0 || window <= 0 {
		return 0, false
	}
	start := len(candles) - window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, c := range candles[start:] {
		sum += c.Volume
	}
	return sum / float64(len(candles)-start), true
}

// RSI computes the relative strength index of the latest bar using simple
// moving averages of gains and losses over period. It needs period+1 closes.
// A flat window has no defined RSI.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	switch {
	case gain == 0 && loss == 0:
		return 0, false
	case loss == 0:
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}
