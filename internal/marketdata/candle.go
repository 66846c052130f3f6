package marketdata

import (
	"fmt"
	"time"
)

// Candle represents a single closed OHLCV candle.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Timeframe is a validated candle interval.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// TimeframeError is returned when an interval string is not supported.
type TimeframeError struct {
	Value string
}

func (e *TimeframeError) Error() string {
	return fmt.Sprintf("unsupported timeframe: %q", e.Value)
}

// ParseTimeframe validates an interval string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", &TimeframeError{Value: s}
	}
	return tf, nil
}

// Duration returns the candle interval length.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// MarketState carries the live order-book and 24h snapshot used by the
// guard checks. Missing numeric fields default to zero and simply fail
// to trigger the corresponding guard.
type MarketState struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	SpreadPct float64   `json:"spread_pct"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Open24h   float64   `json:"open_24h"`
	Now       time.Time `json:"now"`
}

// Indicators carries external indicator readings for a symbol. Optional
// fields are nil when the upstream feed has no value; consumers treat
// nil as neutral, never as an error.
type Indicators struct {
	RSI15m    float64  `json:"rsi_15m"`
	Funding8h *float64 `json:"funding_8h,omitempty"`
	FearGreed *float64 `json:"fear_greed,omitempty"`
}
