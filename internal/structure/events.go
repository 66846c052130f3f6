package structure

import (
	"fmt"
	"math"

	"bounce-catcher/internal/marketdata"
)

// EventConfig controls breakout/breakdown/retest confirmation.
type EventConfig struct {
	// RequiredConfirms is the consecutive-close count per timeframe.
	// Timeframes not present fall back to DefaultConfirms.
	RequiredConfirms map[string]int
	DefaultConfirms  int
	// Lookback bars searched for the pre-cross close that proves a
	// genuine cross, and for the out-of-zone close before a retest.
	Lookback int
	// BreakEpsATRMult scales ATR into the breakout epsilon; BreakEpsPct
	// is the fallback when ATR is degenerate.
	BreakEpsATRMult float64
	BreakEpsPct     float64
	// RetestTolATRMult scales ATR into the retest tolerance; RetestTolPct
	// is the fallback.
	RetestTolATRMult float64
	RetestTolPct     float64
}

// DefaultEventConfig returns the standard confirmation settings.
func DefaultEventConfig() EventConfig {
	return EventConfig{
		RequiredConfirms: map[string]int{
			"1m":  2,
			"5m":  2,
			"15m": 2,
			"1h":  1,
			"4h":  1,
			"1d":  1,
		},
		DefaultConfirms:  1,
		Lookback:         20,
		BreakEpsATRMult:  0.1,
		BreakEpsPct:      0.001,
		RetestTolATRMult: 0.3,
		RetestTolPct:     0.003,
	}
}

func (cfg EventConfig) confirms(timeframe string) int {
	if n, ok := cfg.RequiredConfirms[timeframe]; ok && n > 0 {
		return n
	}
	if cfg.DefaultConfirms > 0 {
		return cfg.DefaultConfirms
	}
	return 1
}

// DetectEvents confirms breakout, breakdown, and retest events for the
// current close against every level and trendline. Simultaneous events
// are all emitted; consumers choose which to act on.
func DetectEvents(symbol, timeframe string, candles []marketdata.Candle, lines []FittedLine, levels []Level, atr float64, cfg EventConfig) []Event {
	if len(candles) == 0 {
		return nil
	}
	required := cfg.confirms(timeframe)
	if len(candles) < required+1 {
		return nil
	}

	last := candles[len(candles)-1]
	eps := atr * cfg.BreakEpsATRMult
	if eps <= 0 {
		eps = last.Close * cfg.BreakEpsPct
	}
	tol := atr * cfg.RetestTolATRMult
	if tol <= 0 {
		tol = last.Close * cfg.RetestTolPct
	}

	var events []Event
	for _, level := range levels {
		events = append(events, levelEvents(symbol, timeframe, candles, level, required, eps, tol, cfg.Lookback)...)
	}
	for _, line := range lines {
		events = append(events, lineEvents(symbol, timeframe, candles, line, required, eps, tol, cfg.Lookback)...)
	}
	return events
}

func levelEvents(symbol, timeframe string, candles []marketdata.Candle, level Level, required int, eps, tol float64, lookback int) []Event {
	var events []Event
	last := candles[len(candles)-1]
	start := len(candles) - required

	if level.Role == RoleResistance || level.Role == RoleFlip {
		confirmed := true
		for i := start; i < len(candles); i++ {
			if candles[i].Close <= level.Top+eps {
				confirmed = false
				break
			}
		}
		if confirmed && hadCloseAtOrBelow(candles, level.Top, start, lookback) {
			events = append(events, Event{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Type:          EventBreakout,
				ReferenceKind: RefLevel,
				PriceAt:       last.Close,
				Confirmed:     true,
				ConfirmCount:  required,
				Reason:        fmt.Sprintf("%d closes above %s zone top %.6f", required, level.Role, level.Top),
				CreatedAt:     last.Timestamp,
			})
		}
	}

	if level.Role == RoleSupport || level.Role == RoleFlip {
		confirmed := true
		for i := start; i < len(candles); i++ {
			if candles[i].Close >= level.Bottom-eps {
				confirmed = false
				break
			}
		}
		if confirmed && hadCloseAtOrAbove(candles, level.Bottom, start, lookback) {
			events = append(events, Event{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Type:          EventBreakdown,
				ReferenceKind: RefLevel,
				PriceAt:       last.Close,
				Confirmed:     true,
				ConfirmCount:  required,
				Reason:        fmt.Sprintf("%d closes below %s zone bottom %.6f", required, level.Role, level.Bottom),
				CreatedAt:     last.Timestamp,
			})
		}
	}

	// Retest: back inside the widened band after being outside the zone
	// within the lookback.
	if last.Close >= level.Bottom-tol && last.Close <= level.Top+tol {
		wasOutside := false
		from := len(candles) - 1 - lookback
		if from < 0 {
			from = 0
		}
		for i := from; i < len(candles)-1; i++ {
			if candles[i].Close < level.Bottom || candles[i].Close > level.Top {
				wasOutside = true
				break
			}
		}
		if wasOutside {
			events = append(events, Event{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Type:          EventRetest,
				ReferenceKind: RefLevel,
				PriceAt:       last.Close,
				Confirmed:     true,
				ConfirmCount:  1,
				Reason:        fmt.Sprintf("close back inside %s zone [%.6f, %.6f]", level.Role, level.Bottom, level.Top),
				CreatedAt:     last.Timestamp,
			})
		}
	}

	return events
}

// lineEvents applies the consecutive-close logic against the line's
// live price at each bar instead of a static zone.
func lineEvents(symbol, timeframe string, candles []marketdata.Candle, line FittedLine, required int, eps, tol float64, lookback int) []Event {
	var events []Event
	last := candles[len(candles)-1]
	start := len(candles) - required

	crossedUp := true
	crossedDown := true
	for i := start; i < len(candles); i++ {
		ref := line.PriceAt(candles[i].Timestamp)
		if candles[i].Close <= ref+eps {
			crossedUp = false
		}
		if candles[i].Close >= ref-eps {
			crossedDown = false
		}
	}

	if line.Side == SideResistance && crossedUp && hadCloseAtOrBelowLine(candles, line, start, lookback) {
		events = append(events, Event{
			Symbol:        symbol,
			Timeframe:     timeframe,
			Type:          EventBreakout,
			ReferenceKind: RefTrendline,
			PriceAt:       last.Close,
			Confirmed:     true,
			ConfirmCount:  required,
			Reason:        fmt.Sprintf("%d closes above resistance trendline", required),
			CreatedAt:     last.Timestamp,
		})
	}
	if line.Side == SideSupport && crossedDown && hadCloseAtOrAboveLine(candles, line, start, lookback) {
		events = append(events, Event{
			Symbol:        symbol,
			Timeframe:     timeframe,
			Type:          EventBreakdown,
			ReferenceKind: RefTrendline,
			PriceAt:       last.Close,
			Confirmed:     true,
			ConfirmCount:  required,
			Reason:        fmt.Sprintf("%d closes below support trendline", required),
			CreatedAt:     last.Timestamp,
		})
	}

	ref := line.PriceAt(last.Timestamp)
	if math.Abs(last.Close-ref) <= tol {
		wasAway := false
		from := len(candles) - 1 - lookback
		if from < 0 {
			from = 0
		}
		for i := from; i < len(candles)-1; i++ {
			if math.Abs(candles[i].Close-line.PriceAt(candles[i].Timestamp)) > tol {
				wasAway = true
				break
			}
		}
		if wasAway {
			events = append(events, Event{
				Symbol:        symbol,
				Timeframe:     timeframe,
				Type:          EventRetest,
				ReferenceKind: RefTrendline,
				PriceAt:       last.Close,
				Confirmed:     true,
				ConfirmCount:  1,
				Reason:        fmt.Sprintf("close back at %s trendline", line.Side),
				CreatedAt:     last.Timestamp,
			})
		}
	}

	return events
}

func hadCloseAtOrBelow(candles []marketdata.Candle, ref float64, before, lookback int) bool {
	from := before - lookback
	if from < 0 {
		from = 0
	}
	for i := from; i < before; i++ {
		if candles[i].Close <= ref {
			return true
		}
	}
	return false
}

func hadCloseAtOrAbove(candles []marketdata.Candle, ref float64, before, lookback int) bool {
	from := before - lookback
	if from < 0 {
		from = 0
	}
	for i := from; i < before; i++ {
		if candles[i].Close >= ref {
			return true
		}
	}
	return false
}

func hadCloseAtOrBelowLine(candles []marketdata.Candle, line FittedLine, before, lookback int) bool {
	from := before - lookback
	if from < 0 {
		from = 0
	}
	for i := from; i < before; i++ {
		if candles[i].Close <= line.PriceAt(candles[i].Timestamp) {
			return true
		}
	}
	return false
}

func hadCloseAtOrAboveLine(candles []marketdata.Candle, line FittedLine, before, lookback int) bool {
	from := before - lookback
	if from < 0 {
		from = 0
	}
	for i := from; i < before; i++ {
		if candles[i].Close >= line.PriceAt(candles[i].Timestamp) {
			return true
		}
	}
	return false
}
