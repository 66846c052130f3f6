package bounce

import (
	"testing"
	"time"

	"bounce-catcher/internal/marketdata"
)

func recoveryCandles(cap marketdata.Candle, lows ...float64) []marketdata.Candle {
	candles := []marketdata.Candle{cap}
	for i, low := range lows {
		close := low + 2
		candles = append(candles, marketdata.Candle{
			Timestamp: cap.Timestamp.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      close - 0.5, High: close + 0.5, Low: low, Close: close,
			Volume: 120,
		})
	}
	return candles
}

func fundingPtr(v float64) *float64 { return &v }

// TestStabilizationQuorum tests the 2-of-4 confirmation quorum
func TestStabilizationQuorum(t *testing.T) {
	confirmer := NewStabilizationConfirmer(DefaultStabilizationConfig())
	cap := waterfallCandle(0)

	// Higher lows + RSI reclaim: two signals, quorum met
	candles := recoveryCandles(cap, 92.5, 93, 93.5)
	confirmations, ok := confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45})
	if !ok {
		t.Fatalf("Two confirmations should stabilize, got %v", confirmations)
	}
	if len(confirmations) != 2 {
		t.Errorf("Should count higher_lows and rsi_reclaim, got %v", confirmations)
	}

	// Only one signal: below quorum
	falling := recoveryCandles(cap, 94, 93, 92.5)
	confirmations, ok = confirmer.Evaluate(falling, cap, marketdata.Indicators{RSI15m: 45})
	if ok {
		t.Errorf("One confirmation should not stabilize, got %v", confirmations)
	}
}

// TestStabilizationMicroBreakout tests the close-above-capitulation-high signal
func TestStabilizationMicroBreakout(t *testing.T) {
	confirmer := NewStabilizationConfirmer(DefaultStabilizationConfig())
	cap := waterfallCandle(0) // high 100

	candles := recoveryCandles(cap, 94, 93, 92.5) // falling lows
	candles[len(candles)-1].Close = 100.5         // but reclaimed the cap high

	confirmations, ok := confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45})
	if !ok {
		t.Fatalf("Micro-breakout plus RSI should stabilize, got %v", confirmations)
	}
	found := false
	for _, c := range confirmations {
		if c == ConfirmMicroBreakout {
			found = true
		}
	}
	if !found {
		t.Errorf("Close above the capitulation high should confirm, got %v", confirmations)
	}
}

// TestStabilizationFundingNeutral tests missing-feed neutrality
func TestStabilizationFundingNeutral(t *testing.T) {
	confirmer := NewStabilizationConfirmer(DefaultStabilizationConfig())
	cap := waterfallCandle(0)
	candles := recoveryCandles(cap, 92.5, 93, 93.5)

	// No funding feed: the other signals still carry the quorum
	_, ok := confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45, Funding8h: nil})
	if !ok {
		t.Error("Missing funding should be neutral, not a veto")
	}

	// Present but elevated funding is simply not a confirmation
	confirmations, _ := confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45, Funding8h: fundingPtr(0.002)})
	for _, c := range confirmations {
		if c == ConfirmFunding {
			t.Error("Funding above the cap should not confirm")
		}
	}

	// Negative funding confirms
	confirmations, _ = confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45, Funding8h: fundingPtr(-0.0001)})
	found := false
	for _, c := range confirmations {
		if c == ConfirmFunding {
			found = true
		}
	}
	if !found {
		t.Errorf("Negative funding should confirm, got %v", confirmations)
	}
}

// TestStabilizationStrictFunding tests the strict-feed mode
func TestStabilizationStrictFunding(t *testing.T) {
	cfg := DefaultStabilizationConfig()
	cfg.StrictFunding = true
	confirmer := NewStabilizationConfirmer(cfg)
	cap := waterfallCandle(0)
	candles := recoveryCandles(cap, 92.5, 93, 93.5)

	if _, ok := confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45}); ok {
		t.Error("Strict mode should block stabilization without a funding reading")
	}
	if _, ok := confirmer.Evaluate(candles, cap, marketdata.Indicators{RSI15m: 45, Funding8h: fundingPtr(0.0005)}); !ok {
		t.Error("Strict mode should pass once a reading exists and the quorum holds")
	}
}

// TestHigherLowsWindow tests the non-decreasing lows rule
func TestHigherLowsWindow(t *testing.T) {
	confirmer := NewStabilizationConfirmer(DefaultStabilizationConfig())
	cap := waterfallCandle(0)

	// Equal lows count as non-decreasing
	flat := recoveryCandles(cap, 93, 93, 93)
	confirmations, _ := confirmer.Evaluate(flat, cap, marketdata.Indicators{})
	found := false
	for _, c := range confirmations {
		if c == ConfirmHigherLows {
			found = true
		}
	}
	if !found {
		t.Error("Equal lows should satisfy higher-lows")
	}

	// Too few candles for the window
	short := recoveryCandles(cap)
	confirmations, _ = confirmer.Evaluate(short[:1], cap, marketdata.Indicators{})
	for _, c := range confirmations {
		if c == ConfirmHigherLows {
			t.Error("A window shorter than k should not confirm higher lows")
		}
	}
}
