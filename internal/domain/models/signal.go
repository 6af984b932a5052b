package models

import "time"

// SignalType distinguishes the producers feeding the dispatcher.
type SignalType string

const (
	SignalBreakout SignalType = "BREAKOUT"
	SignalAlert    SignalType = "ALERT"
)

// Signal is a detected condition handed off for notification.
// OwnerID set means the signal targets exactly that recipient.
type Signal struct {
	ID        string     `json:"id"`
	Type      SignalType `json:"type"`
	Symbol    string     `json:"symbol"`
	Price     float64    `json:"price"`
	Volume    float64    `json:"volume"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
	OwnerID   string     `json:"owner_id,omitempty"`
	RuleID    int64      `json:"rule_id,omitempty"`
	Indicator Indicator  `json:"indicator,omitempty"`
	Operator  Operator   `json:"operator,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	DedupKey  string     `json:"dedup_key,omitempty"`
}

// Targeted reports whether recipients come from the signal itself.
func (s Signal) Targeted() bool { return s.OwnerID != "" }
