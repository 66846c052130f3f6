package indicators

import (
	"math"
	"testing"
	"time"

	"bounce-catcher/internal/marketdata"
)

func flatCandles(n int, price float64) []marketdata.Candle {
	candles := make([]marketdata.Candle, n)
	ts := time.Unix(1700000000, 0)
	for i := range candles {
		candles[i] = marketdata.Candle{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 100,
		}
	}
	return candles
}

// TestTrueRange tests the Wilder true range with and without a prior close
func TestTrueRange(t *testing.T) {
	// First bar falls back to high-low
	if tr := TrueRange(0, 105, 95); tr != 10 {
		t.Errorf("First bar TR should be high-low=10, got %v", tr)
	}

	// Gap up: |high - prevClose| dominates when close gapped away
	if tr := TrueRange(90, 105, 100); tr != 15 {
		t.Errorf("Gap-up TR should be 15, got %v", tr)
	}

	// Gap down: |low - prevClose| dominates
	if tr := TrueRange(110, 105, 100); tr != 10 {
		t.Errorf("Gap-down TR should be 10, got %v", tr)
	}
}

// TestATR tests ATR over a constant-range series
func TestATR(t *testing.T) {
	candles := make([]marketdata.Candle, 20)
	ts := time.Unix(1700000000, 0)
	for i := range candles {
		candles[i] = marketdata.Candle{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 102, Low: 98, Close: 100,
			Volume: 50,
		}
	}

	atr := ATR(candles, 14)
	if math.Abs(atr-4) > 1e-9 {
		t.Errorf("Constant 4-point range should give ATR=4, got %v", atr)
	}

	// Insufficient history returns 0
	if atr := ATR(candles[:5], 14); atr != 0 {
		t.Errorf("Short window should give ATR=0, got %v", atr)
	}
}

// TestATRSeriesWarmup tests that warmup bars are zero
func TestATRSeriesWarmup(t *testing.T) {
	candles := flatCandles(20, 100)
	series := ATRSeries(candles, 14)

	for i := 0; i < 13; i++ {
		if series[i] != 0 {
			t.Errorf("Warmup bar %d should be 0, got %v", i, series[i])
		}
	}
	if len(series) != len(candles) {
		t.Errorf("Series length should match candles, got %d", len(series))
	}
}

// TestVolumeMA tests the volume moving average
func TestVolumeMA(t *testing.T) {
	candles := flatCandles(10, 100)
	for i := range candles {
		candles[i].Volume = float64(i + 1) // 1..10
	}

	// Last 5 volumes are 6..10, mean 8
	if ma := VolumeMA(candles, 5); math.Abs(ma-8) > 1e-9 {
		t.Errorf("VolumeMA should be 8, got %v", ma)
	}

	if ma := VolumeMA(candles[:3], 5); ma != 0 {
		t.Errorf("Short window should give 0, got %v", ma)
	}
}

// TestRSI tests RSI edge behaviors
func TestRSI(t *testing.T) {
	// Insufficient history returns neutral
	if rsi := RSI(flatCandles(5, 100), 14); rsi != 50 {
		t.Errorf("Short window should give neutral 50, got %v", rsi)
	}

	// Straight uptrend gives 100
	up := make([]marketdata.Candle, 20)
	ts := time.Unix(1700000000, 0)
	for i := range up {
		price := 100 + float64(i)
		up[i] = marketdata.Candle{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price + 1, Low: price - 1, Close: price,
		}
	}
	if rsi := RSI(up, 14); rsi != 100 {
		t.Errorf("Straight uptrend should give RSI=100, got %v", rsi)
	}

	// Straight downtrend gives 0
	down := make([]marketdata.Candle, 20)
	for i := range down {
		price := 200 - float64(i)
		down[i] = marketdata.Candle{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price + 1, Low: price - 1, Close: price,
		}
	}
	if rsi := RSI(down, 14); rsi != 0 {
		t.Errorf("Straight downtrend should give RSI=0, got %v", rsi)
	}
}

// TestWickRatio tests the lower-wick ratio
func TestWickRatio(t *testing.T) {
	// Hammer: body at the top, long lower tail
	if r := WickRatio(99, 100, 90, 100); math.Abs(r-0.9) > 1e-9 {
		t.Errorf("Hammer should have wick ratio 0.9, got %v", r)
	}

	// Zero-range candle returns 0, not NaN
	if r := WickRatio(100, 100, 100, 100); r != 0 {
		t.Errorf("Flat candle should give 0, got %v", r)
	}

	// Body closing at the low has no lower wick
	if r := WickRatio(100, 101, 95, 95); r != 0 {
		t.Errorf("Close-at-low candle should give 0, got %v", r)
	}
}

// TestGarmanKlass tests the single-candle volatility estimator
func TestGarmanKlass(t *testing.T) {
	// Degenerate candle returns 0
	if v := GarmanKlass(marketdata.Candle{Open: 0, High: 100, Low: 90, Close: 95}); v != 0 {
		t.Errorf("Degenerate candle should give 0, got %v", v)
	}

	// Wide range with flat body: v = 0.5*ln^2(H/L)
	c := marketdata.Candle{Open: 100, High: 110, Low: 100, Close: 100}
	want := math.Sqrt(0.5) * math.Log(1.1)
	if v := GarmanKlass(c); math.Abs(v-want) > 1e-9 {
		t.Errorf("GarmanKlass should be %v, got %v", want, v)
	}

	// Extreme candle is capped at 10%
	wild := marketdata.Candle{Open: 100, High: 300, Low: 50, Close: 100}
	if v := GarmanKlass(wild); v != 0.10 {
		t.Errorf("Extreme candle should cap at 0.10, got %v", v)
	}
}

// TestMedian tests the median helper
func TestMedian(t *testing.T) {
	if m := Median(nil); m != 0 {
		t.Errorf("Empty slice should give 0, got %v", m)
	}
	if m := Median([]float64{3, 1, 2}); m != 2 {
		t.Errorf("Odd-length median should be 2, got %v", m)
	}
	if m := Median([]float64{4, 1, 2, 3}); m != 2.5 {
		t.Errorf("Even-length median should be 2.5, got %v", m)
	}
	// Input must not be reordered
	in := []float64{3, 1, 2}
	Median(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Error("Median should not mutate its input")
	}
}
