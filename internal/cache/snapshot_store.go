// Package cache mirrors structure snapshots into Redis for external
// readers. The in-memory engine cache stays authoritative: Redis being
// down degrades this mirror, never the decision path.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bounce-catcher/internal/structure"
)

// Config holds Redis connection settings.
type Config struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

const keyPrefix = "structure:%s:%s" // symbol, timeframe

// SnapshotStore writes structure snapshots to Redis with a simple
// circuit breaker: after maxFailures consecutive errors writes are
// skipped until the recovery interval elapses.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu           sync.Mutex
	healthy      bool
	failureCount int
	lastAttempt  time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewSnapshotStore connects to Redis. A failed initial connection
// returns the store in degraded mode, not an error.
func NewSnapshotStore(cfg Config, logger zerolog.Logger) (*SnapshotStore, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ss := &SnapshotStore{
		client:        client,
		ttl:           cfg.TTL,
		logger:        logger.With().Str("component", "snapshot_cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		ss.logger.Warn().Err(err).Msg("initial Redis connection failed, running degraded")
		return ss, nil
	}

	ss.healthy = true
	ss.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return ss, nil
}

var _ structure.SnapshotSink = (*SnapshotStore)(nil)

// SaveSnapshot mirrors one snapshot. Skipped silently while the breaker
// is open.
func (ss *SnapshotStore) SaveSnapshot(ctx context.Context, snap *structure.Snapshot) error {
	if !ss.shouldAttempt() {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf(keyPrefix, snap.Symbol, snap.Timeframe)
	if err := ss.client.Set(ctx, key, data, ss.ttl).Err(); err != nil {
		ss.recordFailure()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	ss.recordSuccess()
	return nil
}

// GetSnapshot reads a mirrored snapshot, nil when absent.
func (ss *SnapshotStore) GetSnapshot(ctx context.Context, symbol, timeframe string) (*structure.Snapshot, error) {
	key := fmt.Sprintf(keyPrefix, symbol, timeframe)
	data, err := ss.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		ss.recordFailure()
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	ss.recordSuccess()

	var snap structure.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close releases the Redis client.
func (ss *SnapshotStore) Close() error {
	return ss.client.Close()
}

func (ss *SnapshotStore) shouldAttempt() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.healthy {
		return true
	}
	if time.Since(ss.lastAttempt) >= ss.checkInterval {
		ss.lastAttempt = time.Now()
		return true
	}
	return false
}

func (ss *SnapshotStore) recordFailure() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.failureCount++
	ss.lastAttempt = time.Now()
	if ss.failureCount >= ss.maxFailures && ss.healthy {
		ss.healthy = false
		ss.logger.Warn().Int("failures", ss.failureCount).Msg("Redis marked unhealthy, mirroring paused")
	}
}

func (ss *SnapshotStore) recordSuccess() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if !ss.healthy {
		ss.logger.Info().Msg("Redis recovered, mirroring resumed")
	}
	ss.healthy = true
	ss.failureCount = 0
}
