package structure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bounce-catcher/internal/indicators"
	"bounce-catcher/internal/marketdata"
)

// EngineConfig holds the full market-structure pipeline configuration.
type EngineConfig struct {
	PivotK         int
	PivotSources   []PivotSource
	ATRLen         int
	ATRFilterMult  float64
	MaxPivots      int
	MinScoreToKeep float64
	Trendline      TrendlineConfig
	Cluster        ClusterConfig
	Events         EventConfig
	Weights        ScoreWeights
}

// DefaultEngineConfig returns the standard pipeline settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PivotK:         3,
		PivotSources:   []PivotSource{SourceWick, SourceBody},
		ATRLen:         14,
		ATRFilterMult:  0.5,
		MaxPivots:      120,
		MinScoreToKeep: 20,
		Trendline:      DefaultTrendlineConfig(),
		Cluster:        DefaultClusterConfig(),
		Events:         DefaultEventConfig(),
		Weights:        DefaultScoreWeights(),
	}
}

// SnapshotSink receives finished snapshots for external readers (e.g. a
// Redis mirror). Best-effort: failures are logged, never propagated.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

// Engine orchestrates the market-structure pipeline per (symbol,
// timeframe) and caches the latest result. Query methods read the cache
// only; they never recompute.
type Engine struct {
	cfg    EngineConfig
	store  Store
	sink   SnapshotSink
	logger zerolog.Logger

	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewEngine creates a structure engine. store and sink may be nil.
func NewEngine(cfg EngineConfig, store Store, sink SnapshotSink, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		sink:      sink,
		logger:    logger.With().Str("component", "structure_engine").Logger(),
		snapshots: make(map[string]*Snapshot),
	}
}

func cacheKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

// OnCandleClose runs the full pipeline for one closed candle window and
// atomically replaces the cache entry. Candles must be oldest-first.
func (e *Engine) OnCandleClose(ctx context.Context, symbol, timeframe string, candles []marketdata.Candle) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		UpdatedAt: now,
	}
	if len(candles) > 0 {
		snap.CurrentPrice = candles[len(candles)-1].Close
	}

	pivots := DetectPivots(candles, e.cfg.PivotK, e.cfg.PivotSources)
	pivots = FilterPivotsByATR(pivots, candles, e.cfg.ATRLen, e.cfg.ATRFilterMult)
	pivots = boundPivots(pivots, e.cfg.MaxPivots)

	medianATR := indicators.MedianATR(candles, e.cfg.ATRLen)
	snap.MedianATR = medianATR

	highs, lows := SplitPivots(pivots)
	supportLines := FitTrendlines(lows, SideSupport, medianATR, e.cfg.Trendline)
	resistanceLines := FitTrendlines(highs, SideResistance, medianATR, e.cfg.Trendline)
	lines := append(supportLines, resistanceLines...)

	levels := ClusterLevels(highs, lows, medianATR, e.cfg.Cluster)

	ScoreStructures(lines, levels, now, e.cfg.Weights)
	kept := levels[:0]
	for _, lv := range levels {
		if lv.Score >= e.cfg.MinScoreToKeep {
			kept = append(kept, lv)
		}
	}
	levels = kept

	atr := indicators.ATR(candles, e.cfg.ATRLen)
	events := DetectEvents(symbol, timeframe, candles, lines, levels, atr, e.cfg.Events)

	snap.Lines = lines
	snap.Levels = levels
	snap.Events = events

	e.persist(ctx, symbol, timeframe, pivots, snap)

	e.mu.Lock()
	e.snapshots[cacheKey(symbol, timeframe)] = snap
	e.mu.Unlock()

	e.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("pivots", len(pivots)).
		Int("lines", len(lines)).
		Int("levels", len(levels)).
		Int("events", len(events)).
		Msg("structure updated")

	return snap, nil
}

// persist writes results through the port. Failures are logged and the
// tick continues; the in-memory cache stays authoritative.
func (e *Engine) persist(ctx context.Context, symbol, timeframe string, pivots []Pivot, snap *Snapshot) {
	if e.store != nil {
		if err := e.store.UpsertPivots(ctx, symbol, timeframe, pivots); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("pivot persistence failed")
		}
		if err := e.store.SaveTrendlines(ctx, symbol, timeframe, snap.Lines); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("trendline persistence failed")
		}
		if err := e.store.SaveLevels(ctx, symbol, timeframe, snap.Levels); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("level persistence failed")
		}
		for _, ev := range snap.Events {
			if err := e.store.InsertEvent(ctx, ev); err != nil {
				e.logger.Warn().Err(err).Str("symbol", symbol).Msg("event persistence failed")
			}
		}
	}
	if e.sink != nil {
		if err := e.sink.SaveSnapshot(ctx, snap); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("snapshot mirror failed")
		}
	}
}

func boundPivots(pivots []Pivot, maxPivots int) []Pivot {
	if maxPivots <= 0 || len(pivots) <= maxPivots {
		return pivots
	}
	sorted := make([]Pivot, len(pivots))
	copy(sorted, pivots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	return sorted[len(sorted)-maxPivots:]
}

// Snapshot returns the latest cache entry for a (symbol, timeframe).
func (e *Engine) Snapshot(symbol, timeframe string) (*Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.snapshots[cacheKey(symbol, timeframe)]
	return snap, ok
}

// NearestSupport returns the closest qualifying level at or below price.
func (e *Engine) NearestSupport(symbol, timeframe string, price float64) (Level, bool) {
	snap, ok := e.Snapshot(symbol, timeframe)
	if !ok {
		return Level{}, false
	}
	var best Level
	found := false
	for _, lv := range snap.Levels {
		if lv.Role == RoleResistance {
			continue
		}
		if lv.Centroid <= price && (!found || lv.Centroid > best.Centroid) {
			best = lv
			found = true
		}
	}
	return best, found
}

// NearestResistance returns the closest qualifying level at or above price.
func (e *Engine) NearestResistance(symbol, timeframe string, price float64) (Level, bool) {
	snap, ok := e.Snapshot(symbol, timeframe)
	if !ok {
		return Level{}, false
	}
	var best Level
	found := false
	for _, lv := range snap.Levels {
		if lv.Role == RoleSupport {
			continue
		}
		if lv.Centroid >= price && (!found || lv.Centroid < best.Centroid) {
			best = lv
			found = true
		}
	}
	return best, found
}

// ConfluenceScoreAt scores how much structure agrees at a price: zone
// containment and trendline proximity bonuses, additive, capped at 100.
func (e *Engine) ConfluenceScoreAt(symbol, timeframe string, price float64) float64 {
	snap, ok := e.Snapshot(symbol, timeframe)
	if !ok || price <= 0 {
		return 0
	}
	score := 0.0
	for _, lv := range snap.Levels {
		if lv.Contains(price) {
			score += 40
		} else if absPct(price, lv.Centroid) <= confluenceNearPct {
			score += 20
		}
	}
	for _, line := range snap.Lines {
		if absPct(price, line.PriceAt(snap.UpdatedAt)) <= confluenceNearPct {
			score += 15
		}
	}
	return clamp100(score)
}

// HasActiveBreakout reports whether the last update confirmed a breakout
// or breakdown.
func (e *Engine) HasActiveBreakout(symbol, timeframe string) bool {
	snap, ok := e.Snapshot(symbol, timeframe)
	if !ok {
		return false
	}
	for _, ev := range snap.Events {
		if ev.Confirmed && (ev.Type == EventBreakout || ev.Type == EventBreakdown) {
			return true
		}
	}
	return false
}

// HasActiveRetest reports whether the last update confirmed a retest.
func (e *Engine) HasActiveRetest(symbol, timeframe string) bool {
	snap, ok := e.Snapshot(symbol, timeframe)
	if !ok {
		return false
	}
	for _, ev := range snap.Events {
		if ev.Confirmed && ev.Type == EventRetest {
			return true
		}
	}
	return false
}

func absPct(price, ref float64) float64 {
	if ref <= 0 {
		return 1
	}
	d := price - ref
	if d < 0 {
		d = -d
	}
	return d / ref
}
