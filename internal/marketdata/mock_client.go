package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for development and testing.
// Candle series are generated deterministically per (symbol, timeframe)
// so repeated calls return consistent history.
type MockClient struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewMockClient creates a mock client with realistic base prices.
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"SOLUSDT": 220.00,
			"XRPUSDT": 2.35,
			"ADAUSDT": 1.05,
		},
	}
}

func (mc *MockClient) basePrice(symbol string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if p, ok := mc.prices[symbol]; ok {
		return p
	}
	return 100.0
}

// GetCandles returns a deterministic synthetic random walk.
func (mc *MockClient) GetCandles(_ context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	base := mc.basePrice(symbol)
	seed := int64(0)
	for _, r := range symbol + string(tf) {
		seed = seed*31 + int64(r)
	}
	rng := rand.New(rand.NewSource(seed))

	interval := tf.Duration()
	end := time.Now().UTC().Truncate(interval)
	candles := make([]Candle, limit)
	price := base
	for i := 0; i < limit; i++ {
		drift := (rng.Float64() - 0.5) * 0.01 * price
		open := price
		close := price + drift
		high := math.Max(open, close) * (1 + rng.Float64()*0.003)
		low := math.Min(open, close) * (1 - rng.Float64()*0.003)
		candles[i] = Candle{
			Timestamp: end.Add(-time.Duration(limit-i) * interval),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + rng.Float64()*500,
		}
		price = close
	}
	return candles, nil
}

// GetMarketState returns a tight synthetic book around the base price.
func (mc *MockClient) GetMarketState(_ context.Context, symbol string) (MarketState, error) {
	base := mc.basePrice(symbol)
	return MarketState{
		Bid:       base * 0.9998,
		Ask:       base * 1.0002,
		SpreadPct: 0.04,
		High24h:   base * 1.03,
		Low24h:    base * 0.97,
		Open24h:   base * 0.99,
		Now:       time.Now().UTC(),
	}, nil
}

// GetIndicators returns neutral indicator values.
func (mc *MockClient) GetIndicators(_ context.Context, _ string) (Indicators, error) {
	funding := 0.0001
	return Indicators{RSI15m: 50, Funding8h: &funding}, nil
}

var _ CandleSource = (*Client)(nil)
var _ CandleSource = (*MockClient)(nil)
