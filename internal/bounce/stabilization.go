package bounce

import (
	"bounce-catcher/internal/marketdata"
)

// StabilizationConfig controls the post-capitulation confirmation quorum.
type StabilizationConfig struct {
	HigherLowsWindow      int     // last k lows must be non-decreasing
	RSIThreshold          float64 // RSI reclaim level
	FundingMax            float64 // funding at or below this supports a bounce
	ConfirmationsRequired int     // quorum size
	StrictFunding         bool    // when set, a missing funding feed blocks stabilization
}

// DefaultStabilizationConfig returns the standard 2-of-4 quorum.
func DefaultStabilizationConfig() StabilizationConfig {
	return StabilizationConfig{
		HigherLowsWindow:      3,
		RSIThreshold:          30,
		FundingMax:            0.001,
		ConfirmationsRequired: 2,
		StrictFunding:         false,
	}
}

// StabilizationConfirmer counts independent signals that selling
// pressure has paused after a capitulation.
type StabilizationConfirmer struct {
	cfg StabilizationConfig
}

// NewStabilizationConfirmer creates a confirmer.
func NewStabilizationConfirmer(cfg StabilizationConfig) *StabilizationConfirmer {
	return &StabilizationConfirmer{cfg: cfg}
}

// Evaluate checks the four signals against the window following a
// capitulation candle. A missing funding feed is neutral: it is neither
// confirmed nor counted against the quorum, unless StrictFunding is set,
// in which case stabilization cannot pass without a funding reading.
func (s *StabilizationConfirmer) Evaluate(candles []marketdata.Candle, capCandle marketdata.Candle, ind marketdata.Indicators) ([]Confirmation, bool) {
	var confirmations []Confirmation

	if s.higherLows(candles) {
		confirmations = append(confirmations, ConfirmHigherLows)
	}
	if len(candles) > 0 && candles[len(candles)-1].Close > capCandle.High {
		confirmations = append(confirmations, ConfirmMicroBreakout)
	}
	if ind.RSI15m > s.cfg.RSIThreshold {
		confirmations = append(confirmations, ConfirmRSIReclaim)
	}
	if ind.Funding8h != nil && *ind.Funding8h <= s.cfg.FundingMax {
		confirmations = append(confirmations, ConfirmFunding)
	}

	stabilized := len(confirmations) >= s.cfg.ConfirmationsRequired
	if s.cfg.StrictFunding && ind.Funding8h == nil {
		stabilized = false
	}
	return confirmations, stabilized
}

// higherLows reports whether the last k candle lows are non-decreasing.
func (s *StabilizationConfirmer) higherLows(candles []marketdata.Candle) bool {
	k := s.cfg.HigherLowsWindow
	if k < 2 || len(candles) < k {
		return false
	}
	window := candles[len(candles)-k:]
	for i := 1; i < len(window); i++ {
		if window[i].Low < window[i-1].Low {
			return false
		}
	}
	return true
}
