package structure

import (
	"context"
	"time"
)

// PivotKind distinguishes local highs from local lows.
type PivotKind string

const (
	PivotHigh PivotKind = "high"
	PivotLow  PivotKind = "low"
)

// PivotSource says which price series the pivot was detected on.
type PivotSource string

const (
	SourceWick PivotSource = "wick"
	SourceBody PivotSource = "body"
)

// Pivot is a confirmed local extremum. Immutable once confirmed: the
// detector only emits bars that already have k bars of history after them.
type Pivot struct {
	Timestamp  time.Time   `json:"timestamp"`
	Price      float64     `json:"price"`
	Kind       PivotKind   `json:"kind"`
	Source     PivotSource `json:"source"`
	ATRAtPivot float64     `json:"atr_at_pivot,omitempty"`
}

// Side says whether a trendline acts as support or resistance.
type Side string

const (
	SideSupport    Side = "support"
	SideResistance Side = "resistance"
)

// FittedLine is a trendline fitted over pivot points. Slope and
// intercept are in real time units: price = Slope*unixSeconds + Intercept.
type FittedLine struct {
	Slope             float64   `json:"slope"`
	Intercept         float64   `json:"intercept"`
	Side              Side      `json:"side"`
	InlierCount       int       `json:"inlier_count"`
	Inliers           []Pivot   `json:"inliers"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	ResidualThreshold float64   `json:"residual_threshold"`
	Score             float64   `json:"score"`
}

// PriceAt evaluates the line at a point in time.
func (l FittedLine) PriceAt(t time.Time) float64 {
	return l.Slope*float64(t.Unix()) + l.Intercept
}

// LevelRole classifies a horizontal zone.
type LevelRole string

const (
	RoleSupport    LevelRole = "support"
	RoleResistance LevelRole = "resistance"
	RoleFlip       LevelRole = "flip"
)

// Level is a horizontal price zone built from clustered pivots.
type Level struct {
	Centroid    float64   `json:"centroid"`
	Top         float64   `json:"top"`
	Bottom      float64   `json:"bottom"`
	Role        LevelRole `json:"role"`
	TouchCount  int       `json:"touch_count"`
	FirstTested time.Time `json:"first_tested"`
	LastTested  time.Time `json:"last_tested"`
	Score       float64   `json:"score"`
}

// Contains reports whether a price falls inside the zone band.
func (lv Level) Contains(price float64) bool {
	return price >= lv.Bottom && price <= lv.Top
}

// EventType classifies a confirmed structure event.
type EventType string

const (
	EventBreakout  EventType = "breakout"
	EventBreakdown EventType = "breakdown"
	EventRetest    EventType = "retest"
)

// ReferenceKind says what the event was confirmed against.
type ReferenceKind string

const (
	RefTrendline ReferenceKind = "trendline"
	RefLevel     ReferenceKind = "level"
)

// Event is a confirmed breakout/breakdown/retest. Append-only; never
// mutated after creation.
type Event struct {
	Symbol        string        `json:"symbol"`
	Timeframe     string        `json:"timeframe"`
	Type          EventType     `json:"type"`
	ReferenceKind ReferenceKind `json:"reference_kind"`
	PriceAt       float64       `json:"price_at"`
	Confirmed     bool          `json:"confirmed"`
	ConfirmCount  int           `json:"confirm_count"`
	Reason        string        `json:"reason"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Snapshot is one fully computed cache entry for a (symbol, timeframe).
// Replaced wholesale on every update; readers never see a partial one.
type Snapshot struct {
	Symbol       string       `json:"symbol"`
	Timeframe    string       `json:"timeframe"`
	Lines        []FittedLine `json:"lines"`
	Levels       []Level      `json:"levels"`
	Events       []Event      `json:"events"`
	MedianATR    float64      `json:"median_atr"`
	CurrentPrice float64      `json:"current_price"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Store is the persistence port the engine writes through. Failures are
// logged at the call site and never abort the tick; implementations own
// any retry policy.
type Store interface {
	UpsertPivots(ctx context.Context, symbol, timeframe string, pivots []Pivot) error
	SaveTrendlines(ctx context.Context, symbol, timeframe string, lines []FittedLine) error
	SaveLevels(ctx context.Context, symbol, timeframe string, levels []Level) error
	InsertEvent(ctx context.Context, event Event) error
}
