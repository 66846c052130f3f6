// Package bot drives the detection pipeline: one worker goroutine per
// symbol consumes closed candles, updates market structure, and ticks
// the bounce catcher. Symbols are fully independent; a symbol's state
// is only touched by its own worker.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bounce-catcher/internal/bounce"
	"bounce-catcher/internal/marketdata"
	"bounce-catcher/internal/structure"
)

// Config holds runner settings.
type Config struct {
	Symbols          []string
	Timeframes       []marketdata.Timeframe
	PrimaryTimeframe marketdata.Timeframe // the timeframe the catcher ticks on
	HistoryBars      int                  // bars of history kept per (symbol, timeframe)
}

// IntentSink receives emitted trade intents. The external execution or
// position-sizing layer implements this.
type IntentSink interface {
	HandleIntent(ctx context.Context, intent bounce.TradeIntent)
}

// Runner owns the per-symbol processing loops.
type Runner struct {
	cfg     Config
	source  marketdata.CandleSource
	stream  *marketdata.KlineStream
	engine  *structure.Engine
	catcher *bounce.Catcher
	sink    IntentSink
	logger  zerolog.Logger

	mu      sync.Mutex
	buffers map[string][]marketdata.Candle // symbol|tf -> rolling window
}

// NewRunner wires the pipeline. sink may be nil (intents are then only
// logged and persisted).
func NewRunner(cfg Config, source marketdata.CandleSource, stream *marketdata.KlineStream, engine *structure.Engine, catcher *bounce.Catcher, sink IntentSink, logger zerolog.Logger) *Runner {
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 300
	}
	return &Runner{
		cfg:     cfg,
		source:  source,
		stream:  stream,
		engine:  engine,
		catcher: catcher,
		sink:    sink,
		logger:  logger.With().Str("component", "runner").Logger(),
		buffers: make(map[string][]marketdata.Candle),
	}
}

// Run seeds history, starts the stream, and processes candle closes
// until ctx is cancelled. A nil stream (mock mode) stops after seeding
// and waits for cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.seedHistory(ctx); err != nil {
		return err
	}

	if r.stream == nil {
		r.logger.Info().Msg("no kline stream configured, serving seeded history only")
		<-ctx.Done()
		return ctx.Err()
	}

	for _, symbol := range r.cfg.Symbols {
		for _, tf := range r.cfg.Timeframes {
			r.stream.Subscribe(symbol, tf)
		}
	}
	go r.stream.Run(ctx)

	// One worker per symbol keeps per-symbol processing serialized
	// while symbols run in parallel.
	workers := make(map[string]chan marketdata.CandleClose, len(r.cfg.Symbols))
	var wg sync.WaitGroup
	for _, symbol := range r.cfg.Symbols {
		ch := make(chan marketdata.CandleClose, 16)
		workers[symbol] = ch
		wg.Add(1)
		go func(symbol string, ch <-chan marketdata.CandleClose) {
			defer wg.Done()
			for cc := range ch {
				r.process(ctx, cc)
			}
		}(symbol, ch)
	}

	for cc := range r.stream.Closes() {
		if ch, ok := workers[cc.Symbol]; ok {
			select {
			case ch <- cc:
			default:
				r.logger.Warn().Str("symbol", cc.Symbol).Msg("worker backlog full, dropping candle")
			}
		}
	}

	for _, ch := range workers {
		close(ch)
	}
	wg.Wait()
	return ctx.Err()
}

// seedHistory backfills each (symbol, timeframe) window over REST.
func (r *Runner) seedHistory(ctx context.Context) error {
	for _, symbol := range r.cfg.Symbols {
		for _, tf := range r.cfg.Timeframes {
			candles, err := r.source.GetCandles(ctx, symbol, tf, r.cfg.HistoryBars)
			if err != nil {
				// A symbol that fails to seed still streams; its buffer
				// fills organically.
				r.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("history seed failed")
				continue
			}
			r.mu.Lock()
			r.buffers[symbol+"|"+string(tf)] = candles
			r.mu.Unlock()

			if _, err := r.engine.OnCandleClose(ctx, symbol, string(tf), candles); err != nil {
				r.logger.Warn().Err(err).Str("symbol", symbol).Msg("initial structure update failed")
			}
		}
	}
	return nil
}

// process handles one closed candle for one symbol.
func (r *Runner) process(ctx context.Context, cc marketdata.CandleClose) {
	key := cc.Symbol + "|" + string(cc.Timeframe)

	r.mu.Lock()
	buf := append(r.buffers[key], cc.Candle)
	if len(buf) > r.cfg.HistoryBars {
		buf = buf[len(buf)-r.cfg.HistoryBars:]
	}
	r.buffers[key] = buf
	window := make([]marketdata.Candle, len(buf))
	copy(window, buf)
	r.mu.Unlock()

	if _, err := r.engine.OnCandleClose(ctx, cc.Symbol, string(cc.Timeframe), window); err != nil {
		r.logger.Warn().Err(err).Str("symbol", cc.Symbol).Msg("structure update failed")
	}

	if cc.Timeframe != r.cfg.PrimaryTimeframe {
		return
	}

	now := time.Now().UTC()
	ind, err := r.source.GetIndicators(ctx, cc.Symbol)
	if err != nil {
		r.logger.Debug().Err(err).Str("symbol", cc.Symbol).Msg("indicator fetch failed, using neutral values")
		ind = marketdata.Indicators{RSI15m: 50}
	}
	market, err := r.source.GetMarketState(ctx, cc.Symbol)
	if err != nil {
		r.logger.Debug().Err(err).Str("symbol", cc.Symbol).Msg("market state fetch failed, guards inactive")
		market = marketdata.MarketState{Now: now}
	}

	intent := r.catcher.Tick(ctx, cc.Symbol, window, ind, market, now)
	if intent == nil {
		return
	}

	r.logger.Info().
		Str("symbol", intent.Symbol).
		Float64("entry", intent.EntryPrice).
		Float64("tp", intent.TPPrice).
		Float64("sl", intent.SLPrice).
		Float64("score", intent.Score).
		Msg("trade intent emitted")

	if r.sink != nil {
		r.sink.HandleIntent(ctx, *intent)
	}
}
