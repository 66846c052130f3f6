// Package walkforward replays historical candles through the bounce
// catcher with the exact fill, slippage, and fee semantics the live
// execution layer assumes. It exists to pin those semantics down for
// testing and offline evaluation, not as a general backtesting framework.
package walkforward

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bounce-catcher/internal/bounce"
	"bounce-catcher/internal/indicators"
	"bounce-catcher/internal/marketdata"
)

// Config controls one walk-forward run.
type Config struct {
	Symbol      string
	Warmup      int     // bars before detection starts
	SlippagePct float64 // adverse fill drift, percent of price
	FeePct      float64 // taker fee per side, percent of notional

	Capitulation  bounce.CapitulationConfig
	Stabilization bounce.StabilizationConfig
	Planner       bounce.PlannerConfig
	MinScore      float64
	RSIPeriod     int
}

// DefaultConfig returns standard simulation settings.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:        symbol,
		Warmup:        40,
		SlippagePct:   0.05,
		FeePct:        0.1,
		Capitulation:  bounce.DefaultCapitulationConfig(),
		Stabilization: bounce.DefaultStabilizationConfig(),
		Planner:       bounce.DefaultPlannerConfig(),
		MinScore:      50,
		RSIPeriod:     14,
	}
}

// Trade is one completed simulated round trip.
type Trade struct {
	EntryTime   time.Time          `json:"entry_time"`
	EntryPrice  float64            `json:"entry_price"`
	ExitTime    time.Time          `json:"exit_time"`
	ExitPrice   float64            `json:"exit_price"`
	ExitTrigger bounce.ExitTrigger `json:"exit_trigger"`
	Score       float64            `json:"score"`
	PnLPct      float64            `json:"pnl_pct"` // net of fees and slippage
}

// Result aggregates a run.
type Result struct {
	Trades       []Trade `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	TotalPnLPct  float64 `json:"total_pnl_pct"`
	OpenAtFinish bool    `json:"open_at_finish"`
}

// Simulator replays a candle series bar by bar.
type Simulator struct {
	cfg    Config
	logger zerolog.Logger
}

// NewSimulator creates a simulator.
func NewSimulator(cfg Config, logger zerolog.Logger) *Simulator {
	return &Simulator{cfg: cfg, logger: logger.With().Str("component", "walkforward").Logger()}
}

// position is an open simulated trade.
type position struct {
	plan      bounce.ExitPlan
	entryFill float64
	score     float64
}

// Run replays candles oldest-first. Fill semantics:
//   - entry fills at the signal close lifted by slippage (marketable limit)
//   - panic and stop-loss fill at the trigger price degraded by slippage
//     (worst case at the stop)
//   - take-profit fills exactly at the target (resting limit)
//   - time stop fills at that bar's close degraded by slippage
//
// Fees apply per side. An entry signal and an exit can never share a bar:
// the entry bar is consumed by the fill.
func (s *Simulator) Run(ctx context.Context, candles []marketdata.Candle) Result {
	planner := bounce.NewPlanner(s.cfg.Planner)
	catcher := bounce.NewCatcher(
		bounce.CatcherConfig{
			Enabled:             true,
			MinScore:            s.cfg.MinScore,
			CapitulationTimeout: 6 * time.Hour,
			StructureTimeframe:  "1h",
		},
		bounce.NewCapitulationDetector(s.cfg.Capitulation),
		bounce.NewStabilizationConfirmer(s.cfg.Stabilization),
		bounce.NewBounceScorer(),
		planner,
		bounce.NewGuardEvaluator(bounce.GuardConfig{}),
		nil,
		nil,
		s.logger,
	)

	var result Result
	var open *position

	for i := s.cfg.Warmup; i < len(candles); i++ {
		bar := candles[i]
		window := candles[:i+1]

		if open != nil {
			if sig := planner.EvaluateExit(open.plan, bar.High, bar.Low, bar.Timestamp); sig != nil {
				trade := s.close(open, sig, bar)
				result.Trades = append(result.Trades, trade)
				if trade.PnLPct > 0 {
					result.Wins++
				} else {
					result.Losses++
				}
				result.TotalPnLPct += trade.PnLPct
				open = nil
			}
			continue
		}

		ind := marketdata.Indicators{RSI15m: indicators.RSI(window, s.cfg.RSIPeriod)}
		intent := catcher.Tick(ctx, s.cfg.Symbol, window, ind, marketdata.MarketState{Now: bar.Timestamp}, bar.Timestamp)
		if intent == nil {
			continue
		}

		entryFill := intent.EntryPrice * (1 + s.cfg.SlippagePct/100)
		st := catcher.StateFor(s.cfg.Symbol)
		if st.ExitPlan == nil {
			continue
		}
		open = &position{plan: *st.ExitPlan, entryFill: entryFill, score: intent.Score}
	}

	result.OpenAtFinish = open != nil
	return result
}

func (s *Simulator) close(p *position, sig *bounce.ExitSignal, bar marketdata.Candle) Trade {
	var exitFill float64
	switch sig.Trigger {
	case bounce.TriggerPanic, bounce.TriggerStopLoss:
		exitFill = sig.TargetPrice * (1 - s.cfg.SlippagePct/100)
	case bounce.TriggerTakeProfit:
		exitFill = sig.TargetPrice
	default: // time stop
		exitFill = bar.Close * (1 - s.cfg.SlippagePct/100)
	}

	gross := (exitFill - p.entryFill) / p.entryFill * 100
	net := gross - 2*s.cfg.FeePct

	return Trade{
		EntryTime:   p.plan.EntryTime,
		EntryPrice:  p.entryFill,
		ExitTime:    bar.Timestamp,
		ExitPrice:   exitFill,
		ExitTrigger: sig.Trigger,
		Score:       p.score,
		PnLPct:      net,
	}
}
