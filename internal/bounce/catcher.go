package bounce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bounce-catcher/internal/marketdata"
	"bounce-catcher/internal/structure"
)

// CatcherConfig controls the per-symbol state machine.
type CatcherConfig struct {
	Enabled             bool          // shadow mode when false: intents are logged, never returned
	MinScore            float64       // intents below this are persisted as blocked
	CapitulationTimeout time.Duration // max wait for stabilization
	MinAlertInterval    time.Duration // per-symbol alert throttle
	RecoveryMaxAge      time.Duration // restored non-IDLE states older than this are discarded
	StructureTimeframe  string        // timeframe used for confluence enrichment
}

// DefaultCatcherConfig returns the standard machine settings.
func DefaultCatcherConfig() CatcherConfig {
	return CatcherConfig{
		Enabled:             false,
		MinScore:            50,
		CapitulationTimeout: 6 * time.Hour,
		MinAlertInterval:    30 * time.Minute,
		RecoveryMaxAge:      6 * time.Hour,
		StructureTimeframe:  "1h",
	}
}

// StructureReader is the slice of the structure engine's query surface
// the catcher consumes. Nil disables enrichment.
type StructureReader interface {
	ConfluenceScoreAt(symbol, timeframe string, price float64) float64
	NearestSupport(symbol, timeframe string, price float64) (structure.Level, bool)
}

// Catcher runs the capitulation-bounce state machine, one SymbolState
// per symbol. A symbol's state is only mutated by one in-flight tick at
// a time; different symbols process fully in parallel.
type Catcher struct {
	cfg       CatcherConfig
	detector  *CapitulationDetector
	confirmer *StabilizationConfirmer
	scorer    *BounceScorer
	planner   *Planner
	guards    *GuardEvaluator
	structure StructureReader
	store     EventStore
	logger    zerolog.Logger

	stateMu sync.Mutex
	states  map[string]*symbolSlot
}

// symbolSlot serializes ticks per symbol.
type symbolSlot struct {
	mu    sync.Mutex
	state *SymbolState
}

// NewCatcher wires the machine. structureReader and store may be nil.
func NewCatcher(cfg CatcherConfig, detector *CapitulationDetector, confirmer *StabilizationConfirmer, scorer *BounceScorer, planner *Planner, guards *GuardEvaluator, structureReader StructureReader, store EventStore, logger zerolog.Logger) *Catcher {
	return &Catcher{
		cfg:       cfg,
		detector:  detector,
		confirmer: confirmer,
		scorer:    scorer,
		planner:   planner,
		guards:    guards,
		structure: structureReader,
		store:     store,
		logger:    logger.With().Str("component", "bounce_catcher").Logger(),
		states:    make(map[string]*symbolSlot),
	}
}

func (c *Catcher) slot(symbol string) *symbolSlot {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	s, ok := c.states[symbol]
	if !ok {
		s = &symbolSlot{state: &SymbolState{Symbol: symbol, State: StateIdle}}
		c.states[symbol] = s
	}
	return s
}

// Tick advances the machine for one symbol on one closed candle.
// Returns a TradeIntent only when the machine reaches INTENT_EMITTED in
// live mode. Never panics or returns an error: data problems degrade to
// no-op ticks and persistence failures are logged and swallowed.
func (c *Catcher) Tick(ctx context.Context, symbol string, candles []marketdata.Candle, ind marketdata.Indicators, market marketdata.MarketState, now time.Time) *TradeIntent {
	slot := c.slot(symbol)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	st := slot.state

	// 1. Guards override everything, at any state.
	if halts := c.guards.Evaluate(market, now); len(halts) > 0 {
		if st.State != StateIdle {
			c.transition(ctx, st, StateIdle, 0, "guard halt: "+strings.Join(halts, "; "), now)
		} else {
			c.logger.Debug().Str("symbol", symbol).Strs("halts", halts).Msg("detection halted")
		}
		return nil
	}

	switch st.State {
	case StateIdle:
		c.tickIdle(ctx, st, candles, now)
		return nil

	case StateCapitulationDetected:
		if now.Sub(st.EnteredStateAt) > c.cfg.CapitulationTimeout {
			c.transition(ctx, st, StateIdle, 0, "stabilization timeout", now)
			return nil
		}
		if !c.tickAwaitingStabilization(ctx, st, candles, ind, now) {
			return nil
		}
		// Stabilization just confirmed: score and plan within the same
		// tick, no extra candle wait.
		return c.tickScoring(ctx, st, candles, ind, now)

	case StateStabilizationConfirmed:
		return c.tickScoring(ctx, st, candles, ind, now)

	case StateIntentEmitted:
		// Terminal per cycle; the next tick starts a fresh one.
		c.transition(ctx, st, StateIdle, st.ScoreComponents.Total, "cycle complete", now)
		return nil
	}

	return nil
}

// tickIdle watches for the capitulation signature.
func (c *Catcher) tickIdle(ctx context.Context, st *SymbolState, candles []marketdata.Candle, now time.Time) {
	metrics, fired := c.detector.Evaluate(candles)
	if !fired {
		return
	}

	capCandle := candles[len(candles)-1]
	st.CapitulationMetrics = metrics
	st.CapitulationCandle = &capCandle

	reason := fmt.Sprintf("capitulation: tr %.2fx atr, vol %.2fx ma, wick %.2f",
		metrics.RangeMult, metrics.VolumeMult, metrics.WickRatio)
	if c.structure != nil {
		if sup, ok := c.structure.NearestSupport(st.Symbol, c.cfg.StructureTimeframe, capCandle.Close); ok {
			reason += fmt.Sprintf("; nearest support %.6f (score %.0f)", sup.Centroid, sup.Score)
		}
	}

	c.transition(ctx, st, StateCapitulationDetected, 0, reason, now)
	c.alert(st, reason, now)
}

// tickAwaitingStabilization returns true when the quorum passed and the
// machine moved to STABILIZATION_CONFIRMED.
func (c *Catcher) tickAwaitingStabilization(ctx context.Context, st *SymbolState, candles []marketdata.Candle, ind marketdata.Indicators, now time.Time) bool {
	if st.CapitulationCandle == nil {
		c.transition(ctx, st, StateIdle, 0, "missing capitulation context", now)
		return false
	}
	confirmations, stabilized := c.confirmer.Evaluate(candles, *st.CapitulationCandle, ind)
	if !stabilized {
		return false
	}
	st.Confirmations = confirmations
	c.transition(ctx, st, StateStabilizationConfirmed, 0, fmt.Sprintf("stabilized with %d confirmations", len(confirmations)), now)
	return true
}

// tickScoring scores the setup and either emits, shadows, or blocks it.
func (c *Catcher) tickScoring(ctx context.Context, st *SymbolState, candles []marketdata.Candle, ind marketdata.Indicators, now time.Time) *TradeIntent {
	if len(candles) == 0 || st.CapitulationCandle == nil {
		c.transition(ctx, st, StateIdle, 0, "missing scoring context", now)
		return nil
	}
	entry := candles[len(candles)-1].Close

	components := c.scorer.Score(st.CapitulationMetrics, st.Confirmations, ind.Funding8h)
	if c.structure != nil {
		confluence := c.structure.ConfluenceScoreAt(st.Symbol, c.cfg.StructureTimeframe, entry)
		components = c.scorer.ApplyConfluenceBonus(components, confluence)
	}
	st.ScoreComponents = components

	intent := c.buildIntent(st, entry, now)

	if components.Total < c.cfg.MinScore {
		c.persistIntent(ctx, IntentRecord{Intent: intent, Status: "blocked"})
		c.transition(ctx, st, StateIdle, components.Total, fmt.Sprintf("score %.1f below minimum %.1f", components.Total, c.cfg.MinScore), now)
		return nil
	}

	plan := c.planner.Plan(entry, st.CapitulationMetrics.ATR, st.CapitulationCandle, now)
	st.Intent = &intent
	st.ExitPlan = &plan

	if !c.cfg.Enabled {
		// Shadow mode: full bookkeeping, nothing handed to execution.
		c.persistIntent(ctx, IntentRecord{Intent: intent, Status: "shadow"})
		c.transition(ctx, st, StateIdle, components.Total, "shadow mode: intent logged, not executed", now)
		return nil
	}

	c.persistIntent(ctx, IntentRecord{Intent: intent, Status: "executed"})
	c.transition(ctx, st, StateIntentEmitted, components.Total, intent.Reason, now)
	return &intent
}

func (c *Catcher) buildIntent(st *SymbolState, entry float64, now time.Time) TradeIntent {
	plan := c.planner.Plan(entry, st.CapitulationMetrics.ATR, st.CapitulationCandle, now)
	return TradeIntent{
		ID:              uuid.New().String(),
		Symbol:          st.Symbol,
		Side:            "buy",
		EntryStyle:      "marketable_limit",
		EntryPrice:      entry,
		ExpectedMovePct: c.planner.ExpectedMovePct(entry, st.CapitulationMetrics.ATR, st.CapitulationCandle),
		TPPrice:         plan.TPPrice,
		SLPrice:         plan.SLPrice,
		TimeStopHours:   c.planner.cfg.TimeStopHours,
		Score:           st.ScoreComponents.Total,
		Components:      st.ScoreComponents,
		Reason: fmt.Sprintf("bounce score %.1f with %d confirmations after %.2fx range capitulation",
			st.ScoreComponents.Total, len(st.Confirmations), st.CapitulationMetrics.RangeMult),
		CreatedAt: now,
	}
}

// transition moves the machine, persists the change, and clears the
// per-symbol context on IDLE re-entry. The alert throttle clock survives
// the reset so a fresh cycle cannot spam alerts.
func (c *Catcher) transition(ctx context.Context, st *SymbolState, to State, score float64, reason string, now time.Time) {
	t := Transition{
		Symbol:              st.Symbol,
		PrevState:           st.State,
		NewState:            to,
		Score:               score,
		Reason:              reason,
		CapitulationMetrics: st.CapitulationMetrics,
		CapitulationCandle:  st.CapitulationCandle,
		Confirmations:       st.Confirmations,
		At:                  now,
	}

	c.logger.Info().
		Str("symbol", st.Symbol).
		Str("from", string(st.State)).
		Str("to", string(to)).
		Float64("score", score).
		Str("reason", reason).
		Msg("state transition")

	if c.store != nil {
		if err := c.store.InsertBounceEvent(ctx, t); err != nil {
			c.logger.Warn().Err(err).Str("symbol", st.Symbol).Msg("transition persistence failed")
		}
	}

	if to == StateIdle {
		lastAlert := st.LastAlertAt
		*st = SymbolState{Symbol: st.Symbol, State: StateIdle, LastAlertAt: lastAlert, EnteredStateAt: now}
		return
	}
	st.State = to
	st.EnteredStateAt = now
}

func (c *Catcher) persistIntent(ctx context.Context, rec IntentRecord) {
	if c.store == nil {
		return
	}
	if err := c.store.InsertBounceIntent(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Str("symbol", rec.Intent.Symbol).Msg("intent persistence failed")
	}
}

// alert logs a capitulation alert, throttled per symbol.
func (c *Catcher) alert(st *SymbolState, reason string, now time.Time) {
	if c.cfg.MinAlertInterval > 0 && !st.LastAlertAt.IsZero() && now.Sub(st.LastAlertAt) < c.cfg.MinAlertInterval {
		return
	}
	st.LastAlertAt = now
	c.logger.Info().Str("symbol", st.Symbol).Str("alert", reason).Msg("capitulation alert")
}

// RestoreStates reloads the last persisted non-IDLE state per symbol so
// a restart does not re-trigger on an already-seen capitulation. States
// older than RecoveryMaxAge are discarded back to IDLE.
func (c *Catcher) RestoreStates(ctx context.Context, now time.Time) error {
	if c.store == nil {
		return nil
	}
	last, err := c.store.LoadLastBounceStates(ctx)
	if err != nil {
		return fmt.Errorf("loading bounce states: %w", err)
	}

	restored := 0
	for symbol, t := range last {
		if t.NewState == StateIdle {
			continue
		}
		if c.cfg.RecoveryMaxAge > 0 && now.Sub(t.At) > c.cfg.RecoveryMaxAge {
			c.logger.Info().Str("symbol", symbol).Str("state", string(t.NewState)).Msg("discarding stale restored state")
			continue
		}
		slot := c.slot(symbol)
		slot.mu.Lock()
		slot.state.State = t.NewState
		slot.state.CapitulationMetrics = t.CapitulationMetrics
		slot.state.CapitulationCandle = t.CapitulationCandle
		slot.state.Confirmations = t.Confirmations
		slot.state.EnteredStateAt = t.At
		slot.mu.Unlock()
		restored++
	}
	if restored > 0 {
		c.logger.Info().Int("symbols", restored).Msg("restored bounce states")
	}
	return nil
}

// StateFor returns a copy of the current state for one symbol.
func (c *Catcher) StateFor(symbol string) SymbolState {
	slot := c.slot(symbol)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return *slot.state
}

// States returns a copy of every tracked symbol state.
func (c *Catcher) States() []SymbolState {
	c.stateMu.Lock()
	slots := make([]*symbolSlot, 0, len(c.states))
	for _, s := range c.states {
		slots = append(slots, s)
	}
	c.stateMu.Unlock()

	out := make([]SymbolState, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, *s.state)
		s.mu.Unlock()
	}
	return out
}
