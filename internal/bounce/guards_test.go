package bounce

import (
	"strings"
	"testing"
	"time"

	"bounce-catcher/internal/marketdata"
)

// TestGuardsClean tests that a calm market produces no halts
func TestGuardsClean(t *testing.T) {
	guards := NewGuardEvaluator(DefaultGuardConfig())
	state := marketdata.MarketState{
		Bid: 99.99, Ask: 100.01, SpreadPct: 0.02,
		High24h: 102, Low24h: 98, Open24h: 100,
	}
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	if halts := guards.Evaluate(state, monday); len(halts) != 0 {
		t.Errorf("Calm market should have no halts, got %v", halts)
	}
}

// TestGuardWideSpread tests the liquidity halt
func TestGuardWideSpread(t *testing.T) {
	guards := NewGuardEvaluator(DefaultGuardConfig())
	state := marketdata.MarketState{SpreadPct: 0.5}

	halts := guards.Evaluate(state, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	if len(halts) != 1 || !strings.HasPrefix(halts[0], "liquidity:") {
		t.Errorf("Wide spread should halt with a liquidity reason, got %v", halts)
	}
}

// TestGuardVolatility tests the 24h range halt
func TestGuardVolatility(t *testing.T) {
	guards := NewGuardEvaluator(DefaultGuardConfig())
	state := marketdata.MarketState{High24h: 130, Low24h: 95, Open24h: 100}

	halts := guards.Evaluate(state, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	if len(halts) != 1 || !strings.HasPrefix(halts[0], "volatility:") {
		t.Errorf("35%% daily range should halt, got %v", halts)
	}

	// Missing 24h stats never trigger the check
	if halts := guards.Evaluate(marketdata.MarketState{}, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)); len(halts) != 0 {
		t.Errorf("Zero market stats should not halt, got %v", halts)
	}
}

// TestGuardWeekend tests the full weekend halt
func TestGuardWeekend(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.WeekendDampener = true
	guards := NewGuardEvaluator(cfg)

	saturday := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	halts := guards.Evaluate(marketdata.MarketState{}, saturday)
	if len(halts) != 1 || halts[0] != "weekend" {
		t.Errorf("Saturday with the dampener should fully halt, got %v", halts)
	}

	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	if halts := guards.Evaluate(marketdata.MarketState{}, monday); len(halts) != 0 {
		t.Errorf("Weekday should not halt, got %v", halts)
	}

	// Dampener off: weekends trade normally
	off := NewGuardEvaluator(DefaultGuardConfig())
	if halts := off.Evaluate(marketdata.MarketState{}, saturday); len(halts) != 0 {
		t.Errorf("Dampener off should ignore the weekend, got %v", halts)
	}
}

// TestGuardEventWindow tests calendar-window halts
func TestGuardEventWindow(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.EventWindows = []EventWindow{{
		Label: "FOMC",
		Start: time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC),
	}}
	guards := NewGuardEvaluator(cfg)

	inside := time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC)
	halts := guards.Evaluate(marketdata.MarketState{}, inside)
	if len(halts) != 1 || halts[0] != "event_risk:FOMC" {
		t.Errorf("Inside the window should halt with the label, got %v", halts)
	}

	after := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	if halts := guards.Evaluate(marketdata.MarketState{}, after); len(halts) != 0 {
		t.Errorf("The window end is exclusive, got %v", halts)
	}
}
