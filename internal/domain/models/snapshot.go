package models

import "strconv"

// Snapshot field names in the shared store hash. Other services read these.
const (
	FieldLTP            = "ltp"
	FieldVolume         = "volume"
	FieldHigh           = "high"
	FieldLow            = "low"
	FieldOpen           = "open"
	FieldClose          = "close"
	FieldRSI            = "rsi"
	FieldAvgVolume      = "avg_volume"
	FieldTimestamp      = "timestamp"
	FieldChangePercent  = "change_percent"
	FieldAvgTradedPrice = "avg_traded_price"
	FieldLastTradedQty  = "last_traded_qty"
	FieldTotalBuyQty    = "total_buy_qty"
	FieldTotalSellQty   = "total_sell_qty"
	FieldExchangeTS     = "exchange_ts"
)

// Snapshot is the raw field map read back from the shared store.
// A field that is absent means "no data yet".
type Snapshot struct {
	Symbol string
	Fields map[string]string
}

// Float returns the named field, reporting false when it is absent or unparseable.
func (s Snapshot) Float(name string) (float64, bool) {
	raw, ok := s.Fields[name]
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Empty reports whether nothing is known about the symbol.
func (s Snapshot) Empty() bool { return len(s.Fields) == 0 }
