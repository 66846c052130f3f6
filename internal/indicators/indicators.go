package indicators

import (
	"math"
	"sort"

	"bounce-catcher/internal/marketdata"
)

// ============================================================================
// TRUE RANGE / ATR
// ============================================================================

// TrueRange calculates the Wilder true range of a bar given the prior close.
// With no prior close (first bar) it falls back to high-low.
func TrueRange(prevClose, high, low float64) float64 {
	if prevClose == 0 {
		return high - low
	}
	tr := high - low
	if d := math.Abs(high - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// TrueRanges calculates the true range series for a candle window.
func TrueRanges(candles []marketdata.Candle) []float64 {
	trs := make([]float64, len(candles))
	for i, c := range candles {
		prevClose := 0.0
		if i > 0 {
			prevClose = candles[i-1].Close
		}
		trs[i] = TrueRange(prevClose, c.High, c.Low)
	}
	return trs
}

// ATRSeries calculates the rolling-mean ATR for every bar. Bars with
// fewer than period prior true ranges get 0.
func ATRSeries(candles []marketdata.Candle, period int) []float64 {
	trs := TrueRanges(candles)
	atrs := make([]float64, len(candles))
	if period <= 0 {
		return atrs
	}
	sum := 0.0
	for i, tr := range trs {
		sum += tr
		if i >= period {
			sum -= trs[i-period]
		}
		if i >= period-1 {
			atrs[i] = sum / float64(period)
		}
	}
	return atrs
}

// ATR calculates the rolling-mean ATR as of the last bar in the window.
// Insufficient history returns 0.
func ATR(candles []marketdata.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}
	series := ATRSeries(candles, period)
	return series[len(series)-1]
}

// ============================================================================
// VOLUME
// ============================================================================

// VolumeMA calculates the simple moving average of volume over the last
// period bars. Insufficient history returns 0.
func VolumeMA(candles []marketdata.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Relative Strength Index over the trailing period.
// Insufficient history returns the neutral 50.
func RSI(candles []marketdata.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// CANDLE SHAPE
// ============================================================================

// WickRatio returns the fraction of a candle's total range taken by its
// lower wick, in [0,1]. A zero-range candle returns 0.
func WickRatio(open, high, low, close float64) float64 {
	rng := high - low
	if rng <= 0 {
		return 0
	}
	lowerWick := math.Min(open, close) - low
	ratio := lowerWick / rng
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// GarmanKlass estimates single-candle volatility using a simplified
// Garman-Klass estimator, capped at 10%. Degenerate candles return 0.
func GarmanKlass(c marketdata.Candle) float64 {
	if c.Low <= 0 || c.Open <= 0 || c.High <= 0 || c.Close <= 0 {
		return 0
	}
	hl := math.Log(c.High / c.Low)
	co := math.Log(c.Close / c.Open)
	v := 0.5*hl*hl - (2*math.Ln2-1)*co*co
	if v <= 0 {
		return 0
	}
	vol := math.Sqrt(v)
	if vol > 0.10 {
		vol = 0.10
	}
	return vol
}

// ============================================================================
// ROLLING HELPERS
// ============================================================================

// Median returns the median of values, 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// MedianATR returns the median of the defined (non-zero warmup) portion
// of the ATR series.
func MedianATR(candles []marketdata.Candle, period int) float64 {
	series := ATRSeries(candles, period)
	if len(series) < period {
		return 0
	}
	return Median(series[period-1:])
}
