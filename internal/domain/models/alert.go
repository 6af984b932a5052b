package models

import (
	"fmt"
	"strings"
	"time"
)

// Indicator names a snapshot value an alert rule watches.
type Indicator string

const (
	IndicatorPrice Indicator = "price"
	IndicatorRSI   Indicator = "rsi"
)

// Operator is the comparison applied between indicator value and threshold.
type Operator string

const (
	OperatorGT Operator = "gt"
	OperatorLT Operator = "lt"
)

// AlertStatus is the lifecycle state of a rule. Only ACTIVE -> TRIGGERED happens here.
type AlertStatus string

const (
	AlertActive    AlertStatus = "ACTIVE"
	AlertTriggered AlertStatus = "TRIGGERED"
	AlertExpired   AlertStatus = "EXPIRED"
)

// AlertRule is a user-defined threshold alert owned by the external intent layer.
type AlertRule struct {
	ID        int64
	OwnerID   string
	Symbol    string
	Indicator Indicator
	Operator  Operator
	Threshold float64
	Status    AlertStatus
	CreatedAt time.Time
}

// ParseIndicator normalizes the spellings stored by the intent layer.
func ParseIndicator(s string) (Indicator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "price", "ltp":
		return IndicatorPrice, nil
	case "rsi":
		return IndicatorRSI, nil
	default:
		return "", fmt.Errorf("unknown indicator %q", s)
	}
}

// ParseOperator accepts gt/lt and the symbolic > / < forms.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gt", ">":
		return OperatorGT, nil
	case "lt", "<":
		return OperatorLT, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Field returns the snapshot field the indicator reads.
func (i Indicator) Field() string {
	if i == IndicatorRSI {
		return FieldRSI
	}
	return FieldLTP
}

// Matches applies the operator strictly.
func (o Operator) Matches(value, threshold float64) bool {
	switch o {
	case OperatorGT:
		return value > threshold
	case OperatorLT:
		return value < threshold
	default:
		return false
	}
}

// Direction is the human word for the operator.
func (o Operator) Direction() string {
	if o == OperatorLT {
		return "below"
	}
	return "above"
}
