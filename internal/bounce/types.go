package bounce

import (
	"context"
	"time"

	"bounce-catcher/internal/marketdata"
)

// State is the per-symbol detection state.
type State string

const (
	StateIdle                   State = "IDLE"
	StateCapitulationDetected   State = "CAPITULATION_DETECTED"
	StateStabilizationConfirmed State = "STABILIZATION_CONFIRMED"
	StateIntentEmitted          State = "INTENT_EMITTED"
)

// CapitulationMetrics are always returned by the detector, whether or
// not the event fired, for scoring and audit.
type CapitulationMetrics struct {
	TrueRange  float64 `json:"true_range"`
	ATR        float64 `json:"atr"`
	Volume     float64 `json:"volume"`
	VolumeMA   float64 `json:"volume_ma"`
	WickRatio  float64 `json:"wick_ratio"`
	RangeMult  float64 `json:"range_mult"`  // TrueRange/ATR, 0 when ATR is 0
	VolumeMult float64 `json:"volume_mult"` // Volume/VolumeMA, 0 when MA is 0
}

// Confirmation names one stabilization signal that fired.
type Confirmation string

const (
	ConfirmHigherLows    Confirmation = "higher_lows"
	ConfirmMicroBreakout Confirmation = "micro_breakout"
	ConfirmRSIReclaim    Confirmation = "rsi_reclaim"
	ConfirmFunding       Confirmation = "funding_support"
)

// ScoreComponents is the audit breakdown of the bounce score.
type ScoreComponents struct {
	RangeSpike      float64 `json:"range_spike"`      // <= 25
	VolumeSpike     float64 `json:"volume_spike"`     // <= 20
	WickRatio       float64 `json:"wick_ratio"`       // <= 20
	Stabilization   float64 `json:"stabilization"`    // <= 20
	Funding         float64 `json:"funding"`          // <= 15
	ConfluenceBonus float64 `json:"confluence_bonus"` // <= 10
	Total           float64 `json:"total"`            // clamped to [0,100]
}

// TradeIntent is the immutable trade proposal handed to the external
// execution layer. This core never sizes or places orders.
type TradeIntent struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"` // always "buy"
	EntryStyle      string          `json:"entry_style"`
	EntryPrice      float64         `json:"entry_price"`
	ExpectedMovePct float64         `json:"expected_move_pct"`
	TPPrice         float64         `json:"tp_price"`
	SLPrice         float64         `json:"sl_price"`
	TimeStopHours   float64         `json:"time_stop_hours"`
	Score           float64         `json:"score"`
	Components      ScoreComponents `json:"components"`
	Reason          string          `json:"reason"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ExitPlan is fixed at entry and never mutated.
type ExitPlan struct {
	TPPrice    float64   `json:"tp_price"`
	SLPrice    float64   `json:"sl_price"`
	PanicPrice float64   `json:"panic_price"`
	TimeStopAt time.Time `json:"time_stop_at"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
}

// ExitTrigger identifies which exit condition fired.
type ExitTrigger string

const (
	TriggerPanic      ExitTrigger = "panic"
	TriggerStopLoss   ExitTrigger = "sl"
	TriggerTakeProfit ExitTrigger = "tp"
	TriggerTimeStop   ExitTrigger = "time_stop"
)

// ExitSignal is a transient per-tick evaluation result. Only the
// highest-priority trigger is reported per tick.
type ExitSignal struct {
	Trigger       ExitTrigger `json:"trigger"`
	TargetPrice   float64     `json:"target_price"`
	ExecutionMode string      `json:"execution_mode"` // "market" or "limit"
}

// SymbolState is the full per-symbol machine state. Exactly one exists
// per symbol; all fields are cleared atomically on IDLE re-entry.
type SymbolState struct {
	Symbol              string              `json:"symbol"`
	State               State               `json:"state"`
	CapitulationMetrics CapitulationMetrics `json:"capitulation_metrics"`
	CapitulationCandle  *marketdata.Candle  `json:"capitulation_candle,omitempty"`
	Confirmations       []Confirmation      `json:"confirmations,omitempty"`
	ScoreComponents     ScoreComponents     `json:"score_components"`
	Intent              *TradeIntent        `json:"intent,omitempty"`
	ExitPlan            *ExitPlan           `json:"exit_plan,omitempty"`
	LastAlertAt         time.Time           `json:"last_alert_at"`
	EnteredStateAt      time.Time           `json:"entered_state_at"`
}

// Transition is one persisted state change.
type Transition struct {
	Symbol              string              `json:"symbol"`
	PrevState           State               `json:"prev_state"`
	NewState            State               `json:"new_state"`
	Score               float64             `json:"score"`
	Reason              string              `json:"reason"`
	CapitulationMetrics CapitulationMetrics `json:"capitulation_metrics"`
	CapitulationCandle  *marketdata.Candle  `json:"capitulation_candle,omitempty"`
	Confirmations       []Confirmation      `json:"confirmations,omitempty"`
	At                  time.Time           `json:"at"`
}

// IntentRecord is one persisted intent, flagged blocked (score below
// threshold), shadow (logged but not executed), or executed.
type IntentRecord struct {
	Intent TradeIntent `json:"intent"`
	Status string      `json:"status"` // "executed", "shadow", "blocked"
}

// EventStore is the persistence port for the state machine. Failures
// are logged at the call site and never abort the tick.
type EventStore interface {
	InsertBounceEvent(ctx context.Context, t Transition) error
	InsertBounceIntent(ctx context.Context, rec IntentRecord) error
	// LoadLastBounceStates returns the most recent transition per symbol
	// for startup recovery.
	LoadLastBounceStates(ctx context.Context) (map[string]Transition, error)
}
