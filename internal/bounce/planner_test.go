package bounce

import (
	"math"
	"testing"
	"time"

	"bounce-catcher/internal/marketdata"
)

// TestPlanTighterStopWins tests ATR-stop vs hard-stop selection
func TestPlanTighterStopWins(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())
	entryTime := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	// Small ATR: the ATR stop sits above the 3% hard stop and wins
	plan := planner.Plan(100, 1, nil, entryTime)
	if plan.SLPrice != 98.5 {
		t.Errorf("ATR stop 98.5 should win over hard stop 97, got %v", plan.SLPrice)
	}

	// Large ATR: the hard stop is tighter
	plan = planner.Plan(100, 4, nil, entryTime)
	if plan.SLPrice != 97 {
		t.Errorf("Hard stop 97 should win over ATR stop 94, got %v", plan.SLPrice)
	}

	// Degenerate ATR: hard stop only
	plan = planner.Plan(100, 0, nil, entryTime)
	if plan.SLPrice != 97 {
		t.Errorf("Zero ATR should fall back to the hard stop, got %v", plan.SLPrice)
	}
}

// TestPlanStopPinnedToCapitulationLow tests the structural floor
func TestPlanStopPinnedToCapitulationLow(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())
	entryTime := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	cap := &marketdata.Candle{Open: 100, High: 100, Low: 99, Close: 99.5}

	// Stop would land below the capitulation low; it gets lifted onto it
	plan := planner.Plan(100, 1, cap, entryTime)
	if plan.SLPrice != 99 {
		t.Errorf("Stop should be pinned at the capitulation low 99, got %v", plan.SLPrice)
	}
	if plan.PanicPrice != 99 {
		t.Errorf("Panic price should be the capitulation low, got %v", plan.PanicPrice)
	}
}

// TestPlanTakeProfit tests the fixed take-profit distance
func TestPlanTakeProfit(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())
	plan := planner.Plan(200, 2, nil, time.Now())
	if math.Abs(plan.TPPrice-209) > 1e-9 {
		t.Errorf("TP should be entry*1.045=209, got %v", plan.TPPrice)
	}
	// Without a capitulation candle the panic price collapses onto the stop
	if plan.PanicPrice != plan.SLPrice {
		t.Errorf("No cap candle: panic %v should equal stop %v", plan.PanicPrice, plan.SLPrice)
	}
}

// TestEvaluateExitPriority tests panic > sl > tp > time stop ordering
func TestEvaluateExitPriority(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())
	entryTime := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	plan := ExitPlan{
		TPPrice:    104.5,
		SLPrice:    95,
		PanicPrice: 90,
		TimeStopAt: entryTime.Add(24 * time.Hour),
		EntryPrice: 100,
		EntryTime:  entryTime,
	}
	now := entryTime.Add(time.Hour)

	// A deep flush pierces both stops; panic wins
	sig := planner.EvaluateExit(plan, 96, 89, now)
	if sig == nil || sig.Trigger != TriggerPanic {
		t.Fatalf("Low through the panic price should trigger panic, got %+v", sig)
	}
	if sig.ExecutionMode != "market" {
		t.Errorf("Panic exits at market, got %s", sig.ExecutionMode)
	}

	// Between panic and stop: stop-loss
	sig = planner.EvaluateExit(plan, 96, 94, now)
	if sig == nil || sig.Trigger != TriggerStopLoss {
		t.Fatalf("Low through the stop should trigger sl, got %+v", sig)
	}

	// Take profit on the high
	sig = planner.EvaluateExit(plan, 105, 96, now)
	if sig == nil || sig.Trigger != TriggerTakeProfit {
		t.Fatalf("High through the TP should trigger tp, got %+v", sig)
	}
	if sig.ExecutionMode != "limit" {
		t.Errorf("TP exits as a limit, got %s", sig.ExecutionMode)
	}

	// Nothing fires inside the plan
	if sig := planner.EvaluateExit(plan, 101, 96, now); sig != nil {
		t.Errorf("Quiet bar should trigger nothing, got %+v", sig)
	}

	// Time stop fires at expiry
	sig = planner.EvaluateExit(plan, 101, 96, entryTime.Add(24*time.Hour))
	if sig == nil || sig.Trigger != TriggerTimeStop {
		t.Fatalf("Expired plan should trigger the time stop, got %+v", sig)
	}
}

// TestExpectedMovePct tests the ATR vs Garman-Klass selection
func TestExpectedMovePct(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())

	// ATR path: 2/100
	if move := planner.ExpectedMovePct(100, 2, nil); math.Abs(move-0.02) > 1e-9 {
		t.Errorf("Expected move should be atr/entry=0.02, got %v", move)
	}

	// A violent capitulation candle lifts the estimate above the ATR figure
	cap := &marketdata.Candle{Open: 100, High: 100, Low: 85, Close: 92}
	if move := planner.ExpectedMovePct(100, 1, cap); move <= 0.01 {
		t.Errorf("Garman-Klass on a violent candle should exceed atr/entry, got %v", move)
	}

	if move := planner.ExpectedMovePct(0, 0, nil); move != 0 {
		t.Errorf("No inputs should give 0, got %v", move)
	}
}
