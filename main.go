package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bounce-catcher/config"
	"bounce-catcher/internal/api"
	"bounce-catcher/internal/bot"
	"bounce-catcher/internal/bounce"
	"bounce-catcher/internal/cache"
	"bounce-catcher/internal/database"
	"bounce-catcher/internal/logging"
	"bounce-catcher/internal/marketdata"
	"bounce-catcher/internal/structure"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig.Level, cfg.LoggingConfig.Pretty)
	logger.Info().
		Str("primary_timeframe", cfg.RunnerConfig.PrimaryTimeframe).
		Strs("symbols", cfg.RunnerConfig.Symbols).
		Bool("bounce_enabled", cfg.BounceConfig.Enabled).
		Msg("Starting bounce-catcher")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database (optional). Without it the engine and catcher run
	// in-memory only.
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		logger.Info().Msg("Database ready")
	} else {
		logger.Warn().Msg("Database disabled, running without persistence")
	}

	// Redis snapshot mirror (optional).
	var sink structure.SnapshotSink
	if cfg.RedisConfig.Enabled {
		snapStore, err := cache.NewSnapshotStore(cache.Config{
			Enabled:  true,
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			TTL:      time.Duration(cfg.RedisConfig.TTLHours) * time.Hour,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, snapshot mirror disabled")
		} else {
			sink = snapStore
			defer snapStore.Close()
		}
	}

	// Market data source.
	var source marketdata.CandleSource
	var stream *marketdata.KlineStream
	if cfg.BinanceConfig.MockMode {
		logger.Warn().Msg("Mock mode enabled, using synthetic market data")
		source = marketdata.NewMockClient()
	} else {
		source = marketdata.NewClient(cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.FuturesBaseURL)
		stream = marketdata.NewKlineStream(cfg.BinanceConfig.WSBaseURL, logger)
	}

	// Structure engine.
	engineCfg := structure.DefaultEngineConfig()
	engineCfg.PivotK = cfg.StructureConfig.PivotK
	engineCfg.ATRLen = cfg.StructureConfig.ATRLen
	engineCfg.ATRFilterMult = cfg.StructureConfig.ATRFilterMult
	engineCfg.MaxPivots = cfg.StructureConfig.MaxPivots
	engineCfg.MinScoreToKeep = cfg.StructureConfig.MinScoreToKeep
	engineCfg.Trendline.Seed = cfg.StructureConfig.RANSACSeed

	var store structure.Store
	if db != nil {
		store = db
	}
	engine := structure.NewEngine(engineCfg, store, sink, logger)

	// Bounce catcher.
	catcherCfg := bounce.DefaultCatcherConfig()
	catcherCfg.Enabled = cfg.BounceConfig.Enabled
	catcherCfg.MinScore = cfg.BounceConfig.MinScore
	catcherCfg.CapitulationTimeout = time.Duration(cfg.BounceConfig.CapitulationTimeoutH * float64(time.Hour))
	catcherCfg.MinAlertInterval = time.Duration(cfg.BounceConfig.MinAlertIntervalMin) * time.Minute
	catcherCfg.RecoveryMaxAge = time.Duration(cfg.BounceConfig.RecoveryMaxAgeHours * float64(time.Hour))

	capCfg := bounce.DefaultCapitulationConfig()
	capCfg.ATRMult = cfg.BounceConfig.ATRMult
	capCfg.VolMult = cfg.BounceConfig.VolMult
	capCfg.LowerWickMin = cfg.BounceConfig.LowerWickMin

	stabCfg := bounce.DefaultStabilizationConfig()
	stabCfg.ConfirmationsRequired = cfg.BounceConfig.ConfirmationsRequired
	stabCfg.StrictFunding = cfg.BounceConfig.StrictFunding

	plannerCfg := bounce.DefaultPlannerConfig()
	plannerCfg.TPPct = cfg.BounceConfig.TPPct
	plannerCfg.SLATRMult = cfg.BounceConfig.SLATRMult
	plannerCfg.SLHardPct = cfg.BounceConfig.SLHardPct
	plannerCfg.TimeStopHours = cfg.BounceConfig.TimeStopHours

	guardCfg := bounce.DefaultGuardConfig()
	guardCfg.MaxSpreadPct = cfg.GuardConfig.MaxSpreadPct
	guardCfg.Max24hRangeRatio = cfg.GuardConfig.Max24hRangeRatio
	guardCfg.WeekendDampener = cfg.GuardConfig.WeekendDampener

	var eventStore bounce.EventStore
	if db != nil {
		eventStore = db
	}
	catcher := bounce.NewCatcher(
		catcherCfg,
		bounce.NewCapitulationDetector(capCfg),
		bounce.NewStabilizationConfirmer(stabCfg),
		bounce.NewBounceScorer(),
		bounce.NewPlanner(plannerCfg),
		bounce.NewGuardEvaluator(guardCfg),
		engine,
		eventStore,
		logger,
	)

	if db != nil {
		if err := catcher.RestoreStates(ctx, time.Now()); err != nil {
			logger.Warn().Err(err).Msg("State recovery failed, starting fresh")
		}
	}

	// Query API.
	if cfg.ServerConfig.Enabled {
		server := api.NewServer(api.Config{
			Host:      cfg.ServerConfig.Host,
			Port:      cfg.ServerConfig.Port,
			Debug:     cfg.ServerConfig.Debug,
			JWTSecret: cfg.ServerConfig.JWTSecret,
		}, engine, catcher, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("API server shutdown failed")
			}
		}()
	}

	// Runner.
	timeframes := make([]marketdata.Timeframe, 0, len(cfg.RunnerConfig.Timeframes))
	for _, tf := range cfg.RunnerConfig.Timeframes {
		parsed, err := marketdata.ParseTimeframe(tf)
		if err != nil {
			logger.Fatal().Err(err).Str("timeframe", tf).Msg("Invalid timeframe")
		}
		timeframes = append(timeframes, parsed)
	}
	primary, err := marketdata.ParseTimeframe(cfg.RunnerConfig.PrimaryTimeframe)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid primary timeframe")
	}

	runner := bot.NewRunner(bot.Config{
		Symbols:          cfg.RunnerConfig.Symbols,
		Timeframes:       timeframes,
		PrimaryTimeframe: primary,
		HistoryBars:      cfg.RunnerConfig.HistoryBars,
	}, source, stream, engine, catcher, logIntentSink{logger: logger}, logger)

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		<-runnerDone
	case err := <-runnerDone:
		if err != nil {
			logger.Error().Err(err).Msg("Runner exited")
		}
		cancel()
	}

	logger.Info().Msg("Shutdown complete")
}

// logIntentSink logs emitted intents. A real execution layer would
// replace this.
type logIntentSink struct {
	logger zerolog.Logger
}

func (s logIntentSink) HandleIntent(ctx context.Context, intent bounce.TradeIntent) {
	s.logger.Info().
		Str("intent_id", intent.ID).
		Str("symbol", intent.Symbol).
		Float64("score", intent.Score).
		Float64("entry", intent.EntryPrice).
		Float64("sl", intent.SLPrice).
		Float64("tp", intent.TPPrice).
		Msg("TRADE INTENT")
}
