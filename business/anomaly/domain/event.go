package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies an anomaly by the worst z-score at the trigger tick.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Z-score thresholds. Below the warning threshold no event is emitted.
const (
	ThresholdWarning  = 3.0
	ThresholdHigh     = 4.0
	ThresholdCritical = 5.0
)

// Classify maps the max |z| across monitored metrics to a severity. ok is
// false when the score is below the warning threshold.
func Classify(zMax float64) (Severity, bool) {
	switch {
	case zMax >= ThresholdCritical:
		return SeverityCritical, true
	case zMax >= ThresholdHigh:
		return SeverityHigh, true
	case zMax >= ThresholdWarning:
		return SeverityWarning, true
	}
	return "", false
}

// rank orders severities for the debounce rule: an event inside the cooldown
// survives only when its severity strictly increases.
func rank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}

// Exceeds reports whether s is strictly more severe than other.
func (s Severity) Exceeds(other Severity) bool {
	return rank(s) > rank(other)
}

// MarketState is the snapshot of market conditions at the trigger tick,
// carried on the event for later analysis.
type MarketState struct {
	Mid           decimal.Decimal
	SpreadBps     decimal.Decimal
	Depth10BpsUSD decimal.Decimal
	Imbalance     decimal.Decimal
}

// Event is one detected anomaly.
type Event struct {
	Symbol     string
	Exchange   string
	DetectedAt time.Time
	Severity   Severity
	Reason     string
	ZScores    map[string]float64 // Per monitored metric
	MaxZScore  float64
	State      MarketState
}
