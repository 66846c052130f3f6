package bounce

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bounce-catcher/internal/marketdata"
)

type recordingEventStore struct {
	transitions []Transition
	intents     []IntentRecord
	lastStates  map[string]Transition
}

func (s *recordingEventStore) InsertBounceEvent(ctx context.Context, t Transition) error {
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *recordingEventStore) InsertBounceIntent(ctx context.Context, rec IntentRecord) error {
	s.intents = append(s.intents, rec)
	return nil
}

func (s *recordingEventStore) LoadLastBounceStates(ctx context.Context) (map[string]Transition, error) {
	return s.lastStates, nil
}

func newTestCatcher(enabled bool, store EventStore) *Catcher {
	cfg := DefaultCatcherConfig()
	cfg.Enabled = enabled
	return NewCatcher(
		cfg,
		NewCapitulationDetector(DefaultCapitulationConfig()),
		NewStabilizationConfirmer(DefaultStabilizationConfig()),
		NewBounceScorer(),
		NewPlanner(DefaultPlannerConfig()),
		NewGuardEvaluator(DefaultGuardConfig()),
		nil,
		store,
		zerolog.Nop(),
	)
}

// stabilizedWindow extends the capitulation fixture with a recovering tail.
func stabilizedWindow() []marketdata.Candle {
	window := capitulationWindow(40)
	cap := window[len(window)-1]
	tail := recoveryCandles(cap, 92.5, 93, 93.5)
	return append(window, tail[1:]...)
}

// TestCatcherHappyPath tests the full IDLE to INTENT_EMITTED cycle
func TestCatcherHappyPath(t *testing.T) {
	store := &recordingEventStore{}
	catcher := newTestCatcher(true, store)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	ind := marketdata.Indicators{RSI15m: 45, Funding8h: fundingPtr(-0.0001)}

	// Calm market: stays IDLE
	if intent := catcher.Tick(ctx, "BTCUSDT", baselineCandles(40), ind, marketdata.MarketState{}, now); intent != nil {
		t.Fatal("Calm market should not emit an intent")
	}
	if st := catcher.StateFor("BTCUSDT"); st.State != StateIdle {
		t.Fatalf("Should stay IDLE, got %s", st.State)
	}

	// Waterfall closes: capitulation detected, no intent yet
	if intent := catcher.Tick(ctx, "BTCUSDT", capitulationWindow(40), ind, marketdata.MarketState{}, now.Add(15*time.Minute)); intent != nil {
		t.Fatal("Detection alone should not emit an intent")
	}
	st := catcher.StateFor("BTCUSDT")
	if st.State != StateCapitulationDetected {
		t.Fatalf("Should be in CAPITULATION_DETECTED, got %s", st.State)
	}
	if st.CapitulationCandle == nil {
		t.Fatal("Capitulation candle should be retained for the cycle")
	}

	// Recovery tail stabilizes; scoring runs the same tick and emits
	intent := catcher.Tick(ctx, "BTCUSDT", stabilizedWindow(), ind, marketdata.MarketState{}, now.Add(time.Hour))
	if intent == nil {
		t.Fatal("Stabilized high-score setup should emit an intent")
	}
	if intent.Side != "buy" || intent.Symbol != "BTCUSDT" {
		t.Errorf("Intent should be a buy on BTCUSDT, got %+v", intent)
	}
	if intent.Score < 50 {
		t.Errorf("Saturated setup should clear the minimum score, got %v", intent.Score)
	}
	if intent.SLPrice < 92 {
		t.Errorf("Stop should never sit below the capitulation low 92, got %v", intent.SLPrice)
	}
	entry := intent.EntryPrice
	if got, want := intent.TPPrice, entry*1.045; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("TP should be entry*1.045=%v, got %v", want, got)
	}

	st = catcher.StateFor("BTCUSDT")
	if st.State != StateIntentEmitted {
		t.Fatalf("Should rest in INTENT_EMITTED, got %s", st.State)
	}
	if st.ExitPlan == nil {
		t.Error("Exit plan should be recorded alongside the intent")
	}

	// Executed intent persisted
	foundExecuted := false
	for _, rec := range store.intents {
		if rec.Status == "executed" {
			foundExecuted = true
		}
	}
	if !foundExecuted {
		t.Error("Emitted intent should persist with executed status")
	}

	// Next tick completes the cycle back to IDLE
	catcher.Tick(ctx, "BTCUSDT", stabilizedWindow(), ind, marketdata.MarketState{}, now.Add(75*time.Minute))
	if st := catcher.StateFor("BTCUSDT"); st.State != StateIdle {
		t.Errorf("Cycle should reset to IDLE, got %s", st.State)
	}
}

// TestCatcherShadowMode tests that disabled mode books but never emits
func TestCatcherShadowMode(t *testing.T) {
	store := &recordingEventStore{}
	catcher := newTestCatcher(false, store)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	ind := marketdata.Indicators{RSI15m: 45, Funding8h: fundingPtr(-0.0001)}

	catcher.Tick(ctx, "BTCUSDT", capitulationWindow(40), ind, marketdata.MarketState{}, now)
	intent := catcher.Tick(ctx, "BTCUSDT", stabilizedWindow(), ind, marketdata.MarketState{}, now.Add(time.Hour))

	if intent != nil {
		t.Fatal("Shadow mode should never hand an intent to execution")
	}
	if st := catcher.StateFor("BTCUSDT"); st.State != StateIdle {
		t.Errorf("Shadow cycle should reset to IDLE, got %s", st.State)
	}

	foundShadow := false
	for _, rec := range store.intents {
		if rec.Status == "shadow" {
			foundShadow = true
		}
	}
	if !foundShadow {
		t.Error("Shadow intent should still be persisted")
	}
}

// TestCatcherGuardOverride tests that halts force IDLE from any state
func TestCatcherGuardOverride(t *testing.T) {
	catcher := newTestCatcher(true, nil)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	ind := marketdata.Indicators{RSI15m: 45}

	catcher.Tick(ctx, "BTCUSDT", capitulationWindow(40), ind, marketdata.MarketState{}, now)
	if st := catcher.StateFor("BTCUSDT"); st.State != StateCapitulationDetected {
		t.Fatalf("Setup should reach CAPITULATION_DETECTED, got %s", st.State)
	}

	// A blown-out spread overrides the in-flight cycle
	wide := marketdata.MarketState{SpreadPct: 0.5}
	if intent := catcher.Tick(ctx, "BTCUSDT", stabilizedWindow(), ind, wide, now.Add(30*time.Minute)); intent != nil {
		t.Fatal("Halted tick should never emit")
	}
	if st := catcher.StateFor("BTCUSDT"); st.State != StateIdle {
		t.Errorf("Guard halt should force IDLE, got %s", st.State)
	}
}

// TestCatcherFallingKnife tests that an unstabilized dump times out
func TestCatcherFallingKnife(t *testing.T) {
	catcher := newTestCatcher(true, nil)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	ind := marketdata.Indicators{RSI15m: 20} // RSI never reclaims

	catcher.Tick(ctx, "BTCUSDT", capitulationWindow(40), ind, marketdata.MarketState{}, now)

	// Price keeps dumping: lower lows, closes under the capitulation high
	window := capitulationWindow(40)
	cap := window[len(window)-1]
	falling := append(window, recoveryCandles(cap, 91, 90, 89)[1:]...)

	for i := 1; i <= 4; i++ {
		if intent := catcher.Tick(ctx, "BTCUSDT", falling, ind, marketdata.MarketState{}, now.Add(time.Duration(i)*15*time.Minute)); intent != nil {
			t.Fatal("Falling knife should never emit an intent")
		}
	}
	if st := catcher.StateFor("BTCUSDT"); st.State != StateCapitulationDetected {
		t.Fatalf("Unstabilized dump should keep waiting, got %s", st.State)
	}

	// Past the capitulation timeout the cycle abandons
	catcher.Tick(ctx, "BTCUSDT", falling, ind, marketdata.MarketState{}, now.Add(7*time.Hour))
	if st := catcher.StateFor("BTCUSDT"); st.State != StateIdle {
		t.Errorf("Timeout should reset to IDLE, got %s", st.State)
	}
}

// TestCatcherBlockedScore tests the minimum-score gate
func TestCatcherBlockedScore(t *testing.T) {
	store := &recordingEventStore{}
	cfg := DefaultCatcherConfig()
	cfg.Enabled = true
	cfg.MinScore = 95
	catcher := NewCatcher(
		cfg,
		NewCapitulationDetector(DefaultCapitulationConfig()),
		NewStabilizationConfirmer(DefaultStabilizationConfig()),
		NewBounceScorer(),
		NewPlanner(DefaultPlannerConfig()),
		NewGuardEvaluator(DefaultGuardConfig()),
		nil,
		store,
		zerolog.Nop(),
	)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	// No funding feed: the funding component cannot contribute
	ind := marketdata.Indicators{RSI15m: 45}

	catcher.Tick(ctx, "BTCUSDT", capitulationWindow(40), ind, marketdata.MarketState{}, now)
	intent := catcher.Tick(ctx, "BTCUSDT", stabilizedWindow(), ind, marketdata.MarketState{}, now.Add(time.Hour))

	if intent != nil {
		t.Fatal("Sub-threshold score should not emit")
	}
	if st := catcher.StateFor("BTCUSDT"); st.State != StateIdle {
		t.Errorf("Blocked setup should reset to IDLE, got %s", st.State)
	}

	foundBlocked := false
	for _, rec := range store.intents {
		if rec.Status == "blocked" {
			foundBlocked = true
		}
	}
	if !foundBlocked {
		t.Error("Blocked intent should persist for audit")
	}
}

// TestCatcherPerSymbolIsolation tests that symbols never share state
func TestCatcherPerSymbolIsolation(t *testing.T) {
	catcher := newTestCatcher(true, nil)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	ind := marketdata.Indicators{RSI15m: 45}

	catcher.Tick(ctx, "BTCUSDT", capitulationWindow(40), ind, marketdata.MarketState{}, now)
	catcher.Tick(ctx, "ETHUSDT", baselineCandles(40), ind, marketdata.MarketState{}, now)

	if st := catcher.StateFor("BTCUSDT"); st.State != StateCapitulationDetected {
		t.Errorf("BTCUSDT should be mid-cycle, got %s", st.State)
	}
	if st := catcher.StateFor("ETHUSDT"); st.State != StateIdle {
		t.Errorf("ETHUSDT should be unaffected, got %s", st.State)
	}
	if got := len(catcher.States()); got != 2 {
		t.Errorf("Should track 2 symbols, got %d", got)
	}
}

// TestCatcherRestoreStates tests startup recovery with staleness cutoff
func TestCatcherRestoreStates(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	cap := waterfallCandle(0)
	store := &recordingEventStore{lastStates: map[string]Transition{
		"BTCUSDT": {
			Symbol:             "BTCUSDT",
			NewState:           StateCapitulationDetected,
			CapitulationCandle: &cap,
			At:                 now.Add(-time.Hour),
		},
		"ETHUSDT": {
			Symbol:   "ETHUSDT",
			NewState: StateCapitulationDetected,
			At:       now.Add(-10 * time.Hour), // past RecoveryMaxAge
		},
		"SOLUSDT": {
			Symbol:   "SOLUSDT",
			NewState: StateIdle,
			At:       now.Add(-time.Minute),
		},
	}}
	catcher := newTestCatcher(true, store)

	if err := catcher.RestoreStates(context.Background(), now); err != nil {
		t.Fatalf("Restore should succeed: %v", err)
	}

	if st := catcher.StateFor("BTCUSDT"); st.State != StateCapitulationDetected {
		t.Errorf("Fresh state should restore, got %s", st.State)
	}
	if st := catcher.StateFor("BTCUSDT"); st.CapitulationCandle == nil {
		t.Error("Restored state should carry its capitulation candle")
	}
	if st := catcher.StateFor("ETHUSDT"); st.State != StateIdle {
		t.Errorf("Stale state should discard to IDLE, got %s", st.State)
	}
	if st := catcher.StateFor("SOLUSDT"); st.State != StateIdle {
		t.Errorf("IDLE records should not restore, got %s", st.State)
	}
}
