package bounce

import (
	"fmt"
	"time"

	"bounce-catcher/internal/marketdata"
)

// EventWindow is one calendar window of elevated event risk (CPI, FOMC,
// large unlocks) during which detection is halted.
type EventWindow struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GuardConfig controls the independent halt checks.
type GuardConfig struct {
	MaxSpreadPct     float64 // bid/ask spread halt threshold, percent
	Max24hRangeRatio float64 // (high-low)/open halt threshold
	WeekendDampener  bool    // halt on Saturday/Sunday when set
	EventWindows     []EventWindow
}

// DefaultGuardConfig returns the standard guard thresholds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxSpreadPct:     0.1,
		Max24hRangeRatio: 0.25,
		WeekendDampener:  false,
	}
}

// GuardEvaluator runs halt checks independent of machine state. Any
// non-empty halt list forces the state machine to IDLE for that tick.
// Missing market-state fields default to zero and simply fail to trigger
// the corresponding guard.
type GuardEvaluator struct {
	cfg GuardConfig
}

// NewGuardEvaluator creates a guard evaluator.
func NewGuardEvaluator(cfg GuardConfig) *GuardEvaluator {
	return &GuardEvaluator{cfg: cfg}
}

// Evaluate returns the halt reasons for this tick, empty when clear.
func (g *GuardEvaluator) Evaluate(state marketdata.MarketState, now time.Time) []string {
	var halts []string

	if state.Now.IsZero() {
		state.Now = now
	}

	for _, w := range g.cfg.EventWindows {
		if !state.Now.Before(w.Start) && state.Now.Before(w.End) {
			halts = append(halts, fmt.Sprintf("event_risk:%s", w.Label))
		}
	}

	if g.cfg.Max24hRangeRatio > 0 && state.Open24h > 0 {
		ratio := (state.High24h - state.Low24h) / state.Open24h
		if ratio > g.cfg.Max24hRangeRatio {
			halts = append(halts, fmt.Sprintf("volatility:24h range ratio %.3f", ratio))
		}
	}

	if g.cfg.MaxSpreadPct > 0 && state.SpreadPct > g.cfg.MaxSpreadPct {
		halts = append(halts, fmt.Sprintf("liquidity:spread %.3f%%", state.SpreadPct))
	}

	// The weekend dampener is a full halt, not a score scaler.
	if g.cfg.WeekendDampener {
		switch state.Now.Weekday() {
		case time.Saturday, time.Sunday:
			halts = append(halts, "weekend")
		}
	}

	return halts
}
