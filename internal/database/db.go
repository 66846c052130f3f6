package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pivots (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			pivot_time TIMESTAMPTZ NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			kind TEXT NOT NULL,
			source TEXT NOT NULL,
			atr_at_pivot DOUBLE PRECISION,
			UNIQUE (symbol, timeframe, pivot_time, kind, source)
		)`,
		`CREATE TABLE IF NOT EXISTS trendlines (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			side TEXT NOT NULL,
			slope DOUBLE PRECISION NOT NULL,
			intercept DOUBLE PRECISION NOT NULL,
			inlier_count INT NOT NULL,
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ NOT NULL,
			residual_threshold DOUBLE PRECISION NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trendlines_active
			ON trendlines (symbol, timeframe) WHERE active`,
		`CREATE TABLE IF NOT EXISTS levels (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			role TEXT NOT NULL,
			centroid DOUBLE PRECISION NOT NULL,
			top DOUBLE PRECISION NOT NULL,
			bottom DOUBLE PRECISION NOT NULL,
			touch_count INT NOT NULL,
			first_tested TIMESTAMPTZ,
			last_tested TIMESTAMPTZ,
			score DOUBLE PRECISION NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_levels_active
			ON levels (symbol, timeframe) WHERE active`,
		`CREATE TABLE IF NOT EXISTS structure_events (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			event_type TEXT NOT NULL,
			reference_kind TEXT NOT NULL,
			price_at DOUBLE PRECISION NOT NULL,
			confirmed BOOLEAN NOT NULL,
			confirm_count INT NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bounce_events (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			prev_state TEXT NOT NULL,
			new_state TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			reason TEXT,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bounce_events_symbol_time
			ON bounce_events (symbol, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS bounce_intents (
			id BIGSERIAL PRIMARY KEY,
			intent_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}
