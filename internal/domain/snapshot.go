package domain

import "fmt"

// Snapshot is one timestamped observation of a market's pool balances.
// Pool values are in SOL.
type Snapshot struct {
	TimestampMs int64   `json:"timestamp"`  // Unix timestamp in milliseconds
	YesPool     float64 `json:"yes_pool"`   // YES pool (SOL)
	NoPool      float64 `json:"no_pool"`    // NO pool (SOL)
	TotalPool   float64 `json:"total_pool"` // YesPool + NoPool
}

// NewSnapshot builds a snapshot, deriving TotalPool from the two sides.
func NewSnapshot(timestampMs int64, yesPool, noPool float64) Snapshot {
	return Snapshot{
		TimestampMs: timestampMs,
		YesPool:     yesPool,
		NoPool:      noPool,
		TotalPool:   yesPool + noPool,
	}
}

// Timeframe is a named retrieval window over a market's history.
type Timeframe string

const (
	Timeframe1H  Timeframe = "1h"
	Timeframe24H Timeframe = "24h"
	Timeframe7D  Timeframe = "7d"
	TimeframeAll Timeframe = "all"
)

// DefaultTimeframe is the window selected when none is given.
const DefaultTimeframe = Timeframe24H

// Timeframes lists the selectable windows in display order.
var Timeframes = []Timeframe{Timeframe1H, Timeframe24H, Timeframe7D, TimeframeAll}

// Window durations in milliseconds.
const (
	windowMs1H  int64 = 3_600_000
	windowMs24H int64 = 86_400_000
	windowMs7D  int64 = 604_800_000
)

// String returns the string representation of Timeframe.
func (t Timeframe) String() string {
	return string(t)
}

// IsValid checks if the timeframe is one of the selectable windows.
func (t Timeframe) IsValid() bool {
	switch t {
	case Timeframe1H, Timeframe24H, Timeframe7D, TimeframeAll:
		return true
	}
	return false
}

// Cutoff returns the earliest timestamp (ms) included by the window at nowMs.
// TimeframeAll has cutoff 0.
func (t Timeframe) Cutoff(nowMs int64) int64 {
	switch t {
	case Timeframe1H:
		return nowMs - windowMs1H
	case Timeframe24H:
		return nowMs - windowMs24H
	case Timeframe7D:
		return nowMs - windowMs7D
	default:
		return 0
	}
}

// ParseTimeframe parses a timeframe name. Empty input yields DefaultTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	if s == "" {
		return DefaultTimeframe, nil
	}
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidInput, s)
	}
	return tf, nil
}
