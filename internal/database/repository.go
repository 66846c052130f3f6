package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bounce-catcher/internal/bounce"
	"bounce-catcher/internal/structure"
)

// The DB implements both persistence ports consumed by the core.
var _ structure.Store = (*DB)(nil)
var _ bounce.EventStore = (*DB)(nil)

// UpsertPivots inserts pivots, ignoring ones already recorded.
func (db *DB) UpsertPivots(ctx context.Context, symbol, timeframe string, pivots []structure.Pivot) error {
	if db.Pool == nil || len(pivots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pivots {
		batch.Queue(`
			INSERT INTO pivots (symbol, timeframe, pivot_time, price, kind, source, atr_at_pivot)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (symbol, timeframe, pivot_time, kind, source) DO UPDATE SET
				price = EXCLUDED.price,
				atr_at_pivot = EXCLUDED.atr_at_pivot`,
			symbol, timeframe, p.Timestamp, p.Price, string(p.Kind), string(p.Source), p.ATRAtPivot,
		)
	}

	results := db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range pivots {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert pivots: %w", err)
		}
	}
	return nil
}

// SaveTrendlines replaces the active trendlines for a (symbol,
// timeframe): deactivate everything, then insert the new set.
func (db *DB) SaveTrendlines(ctx context.Context, symbol, timeframe string, lines []structure.FittedLine) error {
	if db.Pool == nil {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin trendline transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE trendlines SET active = FALSE WHERE symbol = $1 AND timeframe = $2 AND active`,
		symbol, timeframe,
	); err != nil {
		return fmt.Errorf("failed to deactivate trendlines: %w", err)
	}

	for _, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO trendlines (symbol, timeframe, side, slope, intercept, inlier_count,
				start_at, end_at, residual_threshold, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			symbol, timeframe, string(l.Side), l.Slope, l.Intercept, l.InlierCount,
			l.StartAt, l.EndAt, l.ResidualThreshold, l.Score,
		); err != nil {
			return fmt.Errorf("failed to insert trendline: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SaveLevels replaces the active levels for a (symbol, timeframe) with
// the same deactivate-then-insert semantics as trendlines.
func (db *DB) SaveLevels(ctx context.Context, symbol, timeframe string, levels []structure.Level) error {
	if db.Pool == nil {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin level transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE levels SET active = FALSE WHERE symbol = $1 AND timeframe = $2 AND active`,
		symbol, timeframe,
	); err != nil {
		return fmt.Errorf("failed to deactivate levels: %w", err)
	}

	for _, lv := range levels {
		if _, err := tx.Exec(ctx, `
			INSERT INTO levels (symbol, timeframe, role, centroid, top, bottom,
				touch_count, first_tested, last_tested, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			symbol, timeframe, string(lv.Role), lv.Centroid, lv.Top, lv.Bottom,
			lv.TouchCount, lv.FirstTested, lv.LastTested, lv.Score,
		); err != nil {
			return fmt.Errorf("failed to insert level: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// InsertEvent appends one structure event. Append-only.
func (db *DB) InsertEvent(ctx context.Context, event structure.Event) error {
	if db.Pool == nil {
		return nil
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO structure_events (symbol, timeframe, event_type, reference_kind,
			price_at, confirmed, confirm_count, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.Symbol, event.Timeframe, string(event.Type), string(event.ReferenceKind),
		event.PriceAt, event.Confirmed, event.ConfirmCount, event.Reason, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert structure event: %w", err)
	}
	return nil
}

// InsertBounceEvent appends one state transition. Append-only.
func (db *DB) InsertBounceEvent(ctx context.Context, t bounce.Transition) error {
	if db.Pool == nil {
		return nil
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO bounce_events (symbol, prev_state, new_state, score, reason, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.Symbol, string(t.PrevState), string(t.NewState), t.Score, t.Reason, payload, t.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bounce event: %w", err)
	}
	return nil
}

// InsertBounceIntent appends one intent record. Append-only.
func (db *DB) InsertBounceIntent(ctx context.Context, rec bounce.IntentRecord) error {
	if db.Pool == nil {
		return nil
	}

	payload, err := json.Marshal(rec.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO bounce_intents (intent_id, symbol, status, score, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Intent.ID, rec.Intent.Symbol, rec.Status, rec.Intent.Score, payload, rec.Intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bounce intent: %w", err)
	}
	return nil
}

// LoadLastBounceStates returns the most recent transition per symbol
// for startup recovery.
func (db *DB) LoadLastBounceStates(ctx context.Context) (map[string]bounce.Transition, error) {
	out := make(map[string]bounce.Transition)
	if db.Pool == nil {
		return out, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (symbol) payload
		FROM bounce_events
		ORDER BY symbol, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bounce states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan bounce state: %w", err)
		}
		var t bounce.Transition
		if err := json.Unmarshal(payload, &t); err != nil {
			db.logger.Warn().Err(err).Msg("skipping unparsable bounce event payload")
			continue
		}
		out[t.Symbol] = t
	}
	return out, rows.Err()
}
