package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CandleClose is delivered once per closed candle on a subscribed stream.
type CandleClose struct {
	Symbol    string
	Timeframe Timeframe
	Candle    Candle
}

// KlineStream subscribes to Binance combined kline streams and delivers
// closed candles on a channel. It reconnects with backoff until the
// context is cancelled.
type KlineStream struct {
	wsBaseURL string
	logger    zerolog.Logger

	mu      sync.Mutex
	streams []string

	out chan CandleClose
}

// NewKlineStream creates a stream for the given (symbol, timeframe) pairs.
func NewKlineStream(wsBaseURL string, logger zerolog.Logger) *KlineStream {
	if wsBaseURL == "" {
		wsBaseURL = "wss://stream.binance.com:9443"
	}
	return &KlineStream{
		wsBaseURL: wsBaseURL,
		logger:    logger.With().Str("component", "kline_stream").Logger(),
		out:       make(chan CandleClose, 256),
	}
}

// Subscribe registers a symbol/timeframe pair. Must be called before Run.
func (s *KlineStream) Subscribe(symbol string, tf Timeframe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), tf))
}

// Closes returns the channel of closed candles.
func (s *KlineStream) Closes() <-chan CandleClose {
	return s.out
}

// Run connects and pumps events until ctx is cancelled. The output
// channel is closed on return.
func (s *KlineStream) Run(ctx context.Context) {
	defer close(s.out)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.connectAndPump(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("kline stream disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// combinedStreamEvent wraps a payload from a combined stream connection.
type combinedStreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent is the kline payload from the Binance websocket.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64   `json:"t"`
		Interval  string  `json:"i"`
		Open      float64 `json:"o,string"`
		High      float64 `json:"h,string"`
		Low       float64 `json:"l,string"`
		Close     float64 `json:"c,string"`
		Volume    float64 `json:"v,string"`
		Closed    bool    `json:"x"`
	} `json:"k"`
}

func (s *KlineStream) connectAndPump(ctx context.Context) error {
	s.mu.Lock()
	streams := strings.Join(s.streams, "/")
	s.mu.Unlock()
	if streams == "" {
		return fmt.Errorf("no streams subscribed")
	}

	endpoint := fmt.Sprintf("%s/stream?streams=%s", s.wsBaseURL, streams)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Int("streams", len(s.streams)).Msg("kline stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var wrapper combinedStreamEvent
		if err := json.Unmarshal(msg, &wrapper); err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparsable stream message")
			continue
		}
		var event klineEvent
		if err := json.Unmarshal(wrapper.Data, &event); err != nil || event.EventType != "kline" {
			continue
		}
		if !event.Kline.Closed {
			continue
		}
		tf, err := ParseTimeframe(event.Kline.Interval)
		if err != nil {
			s.logger.Warn().Str("interval", event.Kline.Interval).Msg("unknown interval on stream")
			continue
		}

		cc := CandleClose{
			Symbol:    event.Symbol,
			Timeframe: tf,
			Candle: Candle{
				Timestamp: time.UnixMilli(event.Kline.StartTime).UTC(),
				Open:      event.Kline.Open,
				High:      event.Kline.High,
				Low:       event.Kline.Low,
				Close:     event.Kline.Close,
				Volume:    event.Kline.Volume,
			},
		}
		select {
		case s.out <- cc:
		default:
			s.logger.Warn().Str("symbol", cc.Symbol).Msg("candle channel full, dropping close")
		}
	}
}
