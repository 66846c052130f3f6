package structure

import (
	"bounce-catcher/internal/indicators"
	"bounce-catcher/internal/marketdata"
)

// DetectPivots finds confirmed fractal extrema over a centered window of
// 2k+1 bars. A bar is a pivot high/low iff its value equals the rolling
// extremum of its window. Only indices [k, n-k) can confirm, so the last
// k bars never emit a pivot (no look-ahead). Duplicate
// (timestamp, kind, source) triples are dropped.
func DetectPivots(candles []marketdata.Candle, k int, sources []PivotSource) []Pivot {
	if k <= 0 || len(candles) < 2*k+1 {
		return nil
	}
	if len(sources) == 0 {
		sources = []PivotSource{SourceWick}
	}

	type key struct {
		ts     int64
		kind   PivotKind
		source PivotSource
	}
	seen := make(map[key]bool)
	var pivots []Pivot

	for _, source := range sources {
		highs := make([]float64, len(candles))
		lows := make([]float64, len(candles))
		for i, c := range candles {
			switch source {
			case SourceBody:
				highs[i] = max(c.Open, c.Close)
				lows[i] = min(c.Open, c.Close)
			default:
				highs[i] = c.High
				lows[i] = c.Low
			}
		}

		for i := k; i < len(candles)-k; i++ {
			isHigh := true
			isLow := true
			for j := i - k; j <= i+k; j++ {
				if highs[j] > highs[i] {
					isHigh = false
				}
				if lows[j] < lows[i] {
					isLow = false
				}
				if !isHigh && !isLow {
					break
				}
			}

			if isHigh {
				kh := key{candles[i].Timestamp.Unix(), PivotHigh, source}
				if !seen[kh] {
					seen[kh] = true
					pivots = append(pivots, Pivot{
						Timestamp: candles[i].Timestamp,
						Price:     highs[i],
						Kind:      PivotHigh,
						Source:    source,
					})
				}
			}
			if isLow {
				kl := key{candles[i].Timestamp.Unix(), PivotLow, source}
				if !seen[kl] {
					seen[kl] = true
					pivots = append(pivots, Pivot{
						Timestamp: candles[i].Timestamp,
						Price:     lows[i],
						Kind:      PivotLow,
						Source:    source,
					})
				}
			}
		}
	}

	return pivots
}

// FilterPivotsByATR drops pivots whose local excursion is smaller than
// mult x ATR at the pivot bar. Wick-source pivots use the full bar range,
// body-source pivots the body range. Pivots whose bar predates the ATR
// warmup are kept unfiltered. ATRAtPivot is populated on survivors.
func FilterPivotsByATR(pivots []Pivot, candles []marketdata.Candle, atrLen int, mult float64) []Pivot {
	if len(pivots) == 0 || len(candles) == 0 {
		return pivots
	}

	atrs := indicators.ATRSeries(candles, atrLen)
	indexByTime := make(map[int64]int, len(candles))
	for i, c := range candles {
		indexByTime[c.Timestamp.Unix()] = i
	}

	kept := make([]Pivot, 0, len(pivots))
	for _, p := range pivots {
		i, ok := indexByTime[p.Timestamp.Unix()]
		if !ok {
			kept = append(kept, p)
			continue
		}
		atr := atrs[i]
		if atr <= 0 {
			// Not enough history for ATR at this bar; keep unfiltered.
			kept = append(kept, p)
			continue
		}

		c := candles[i]
		excursion := c.High - c.Low
		if p.Source == SourceBody {
			excursion = max(c.Open, c.Close) - min(c.Open, c.Close)
		}
		if excursion < mult*atr {
			continue
		}
		p.ATRAtPivot = atr
		kept = append(kept, p)
	}
	return kept
}

// SplitPivots separates pivots by kind.
func SplitPivots(pivots []Pivot) (highs, lows []Pivot) {
	for _, p := range pivots {
		if p.Kind == PivotHigh {
			highs = append(highs, p)
		} else {
			lows = append(lows, p)
		}
	}
	return highs, lows
}
