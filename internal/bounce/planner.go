package bounce

import (
	"time"

	"bounce-catcher/internal/indicators"
	"bounce-catcher/internal/marketdata"
)

// PlannerConfig controls entry and exit parameterization.
type PlannerConfig struct {
	TPPct         float64 // take profit above entry
	SLATRMult     float64 // ATR-based stop distance
	SLHardPct     float64 // hard-percentage stop distance
	TimeStopHours float64
}

// DefaultPlannerConfig returns the standard risk parameters.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		TPPct:         0.045,
		SLATRMult:     1.5,
		SLHardPct:     0.03,
		TimeStopHours: 24,
	}
}

// Planner derives the full entry/exit parameter set for a bounce entry.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner creates a planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	return &Planner{cfg: cfg}
}

// Plan builds the exit plan for an entry at price. The stop is the
// tighter of the ATR stop and the hard-percent stop, and is never placed
// above the capitulation low: the structural invalidation price doubles
// as the floor. Panic price is the capitulation low, or the stop when no
// capitulation candle is available.
func (p *Planner) Plan(entry, atr float64, capCandle *marketdata.Candle, entryTime time.Time) ExitPlan {
	atrStop := entry - p.cfg.SLATRMult*atr
	hardStop := entry * (1 - p.cfg.SLHardPct)

	// Tighter stop wins: the one closer to entry.
	sl := atrStop
	if hardStop > sl {
		sl = hardStop
	}
	if atr <= 0 {
		sl = hardStop
	}

	panicPrice := sl
	if capCandle != nil {
		if sl < capCandle.Low {
			sl = capCandle.Low
		}
		panicPrice = capCandle.Low
	}

	return ExitPlan{
		TPPrice:    entry * (1 + p.cfg.TPPct),
		SLPrice:    sl,
		PanicPrice: panicPrice,
		TimeStopAt: entryTime.Add(time.Duration(p.cfg.TimeStopHours * float64(time.Hour))),
		EntryPrice: entry,
		EntryTime:  entryTime,
	}
}

// ExpectedMovePct estimates the expected move as the larger of the
// ATR-relative move and the single-candle Garman-Klass proxy.
func (p *Planner) ExpectedMovePct(entry, atr float64, capCandle *marketdata.Candle) float64 {
	move := 0.0
	if entry > 0 && atr > 0 {
		move = atr / entry
	}
	if capCandle != nil {
		if gk := indicators.GarmanKlass(*capCandle); gk > move {
			move = gk
		}
	}
	return move
}

// EvaluateExit checks one tick against the plan. Priority, highest
// first: panic, stop-loss, take-profit, time stop. Only the first
// matching trigger is reported; nil when nothing fires.
func (p *Planner) EvaluateExit(plan ExitPlan, high, low float64, now time.Time) *ExitSignal {
	if plan.PanicPrice > 0 && low <= plan.PanicPrice {
		return &ExitSignal{Trigger: TriggerPanic, TargetPrice: plan.PanicPrice, ExecutionMode: "market"}
	}
	if plan.SLPrice > 0 && low <= plan.SLPrice {
		return &ExitSignal{Trigger: TriggerStopLoss, TargetPrice: plan.SLPrice, ExecutionMode: "market"}
	}
	if plan.TPPrice > 0 && high >= plan.TPPrice {
		return &ExitSignal{Trigger: TriggerTakeProfit, TargetPrice: plan.TPPrice, ExecutionMode: "limit"}
	}
	if !plan.TimeStopAt.IsZero() && !now.Before(plan.TimeStopAt) {
		return &ExitSignal{Trigger: TriggerTimeStop, TargetPrice: 0, ExecutionMode: "market"}
	}
	return nil
}
