package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CandleSource is the candle feed the engine consumes. Implementations
// must return candles ordered oldest-first.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)
	GetMarketState(ctx context.Context, symbol string) (MarketState, error)
	GetIndicators(ctx context.Context, symbol string) (Indicators, error)
}

// Client fetches market data from the Binance public REST API. Only
// unsigned endpoints are used; no credentials are required.
type Client struct {
	baseURL        string
	futuresBaseURL string
	httpClient     *http.Client
	rsiPeriod      int
}

// NewClient creates a REST market data client.
func NewClient(baseURL, futuresBaseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if futuresBaseURL == "" {
		futuresBaseURL = "https://fapi.binance.com"
	}
	return &Client{
		baseURL:        baseURL,
		futuresBaseURL: futuresBaseURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		rsiPeriod:      14,
	}
}

// GetCandles fetches closed candlestick data, oldest-first.
func (c *Client) GetCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline row at index %d", i)
		}
		candles[i] = Candle{
			Timestamp: time.UnixMilli(int64(raw[0].(float64))).UTC(),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
		}
	}

	return candles, nil
}

// bookTicker is the best bid/ask snapshot.
type bookTicker struct {
	Symbol   string  `json:"symbol"`
	BidPrice float64 `json:"bidPrice,string"`
	AskPrice float64 `json:"askPrice,string"`
}

// ticker24hr is the rolling 24h window statistics.
type ticker24hr struct {
	Symbol    string  `json:"symbol"`
	OpenPrice float64 `json:"openPrice,string"`
	HighPrice float64 `json:"highPrice,string"`
	LowPrice  float64 `json:"lowPrice,string"`
	LastPrice float64 `json:"lastPrice,string"`
}

// GetMarketState combines the book ticker and 24h statistics into the
// snapshot consumed by the guard checks.
func (c *Client) GetMarketState(ctx context.Context, symbol string) (MarketState, error) {
	var state MarketState

	body, err := c.get(ctx, fmt.Sprintf("%s/api/v3/ticker/bookTicker?symbol=%s", c.baseURL, symbol))
	if err != nil {
		return state, fmt.Errorf("error fetching book ticker: %w", err)
	}
	var book bookTicker
	if err := json.Unmarshal(body, &book); err != nil {
		return state, fmt.Errorf("error parsing book ticker: %w", err)
	}

	body, err = c.get(ctx, fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", c.baseURL, symbol))
	if err != nil {
		return state, fmt.Errorf("error fetching 24hr ticker: %w", err)
	}
	var day ticker24hr
	if err := json.Unmarshal(body, &day); err != nil {
		return state, fmt.Errorf("error parsing 24hr ticker: %w", err)
	}

	state = MarketState{
		Bid:     book.BidPrice,
		Ask:     book.AskPrice,
		High24h: day.HighPrice,
		Low24h:  day.LowPrice,
		Open24h: day.OpenPrice,
		Now:     time.Now().UTC(),
	}
	if mid := (book.BidPrice + book.AskPrice) / 2; mid > 0 {
		state.SpreadPct = (book.AskPrice - book.BidPrice) / mid * 100
	}
	return state, nil
}

// premiumIndex carries the current funding rate from the futures API.
type premiumIndex struct {
	Symbol          string  `json:"symbol"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
}

// GetIndicators fetches RSI (computed from 15m closes) and the current
// funding rate. The funding call is best-effort: a spot-only symbol has
// no futures market and the field stays nil.
func (c *Client) GetIndicators(ctx context.Context, symbol string) (Indicators, error) {
	ind := Indicators{RSI15m: 50}

	candles, err := c.GetCandles(ctx, symbol, Timeframe15m, c.rsiPeriod*3)
	if err != nil {
		return ind, fmt.Errorf("error fetching 15m candles for RSI: %w", err)
	}
	closes := make([]float64, len(candles))
	for i, cd := range candles {
		closes[i] = cd.Close
	}
	ind.RSI15m = rsiFromCloses(closes, c.rsiPeriod)

	body, err := c.get(ctx, fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", c.futuresBaseURL, symbol))
	if err == nil {
		var premium premiumIndex
		if json.Unmarshal(body, &premium) == nil {
			funding := premium.LastFundingRate
			ind.Funding8h = &funding
		}
	}

	return ind, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

// parseFloat safely converts interface{} to float64. Loosely typed
// fields degrade to 0 rather than failing the whole response.
func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return val
	default:
		return 0
	}
}

// rsiFromCloses computes a simple-average RSI over the trailing period.
// Too little history returns the neutral 50.
func rsiFromCloses(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
