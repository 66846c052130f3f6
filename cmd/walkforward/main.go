package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bounce-catcher/internal/logging"
	"bounce-catcher/internal/marketdata"
	"bounce-catcher/internal/walkforward"
)

func main() {
	symbol := flag.String("symbol", "BTCUSDT", "symbol to replay")
	timeframe := flag.String("timeframe", "15m", "candle timeframe")
	bars := flag.Int("bars", 1000, "number of candles to replay")
	minScore := flag.Float64("min-score", 50, "minimum bounce score to trade")
	mock := flag.Bool("mock", false, "use synthetic candles instead of live history")
	level := flag.String("log-level", "warn", "log level during replay")
	flag.Parse()

	logger := logging.New(*level, true)

	tf, err := marketdata.ParseTimeframe(*timeframe)
	if err != nil {
		fmt.Printf("❌ Invalid timeframe %q: %v\n", *timeframe, err)
		os.Exit(1)
	}

	var source marketdata.CandleSource
	if *mock {
		source = marketdata.NewMockClient()
	} else {
		source = marketdata.NewClient("https://api.binance.com", "https://fapi.binance.com")
	}

	ctx := context.Background()
	candles, err := source.GetCandles(ctx, *symbol, tf, *bars)
	if err != nil {
		fmt.Printf("❌ Failed to fetch candles: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 78))
	fmt.Printf("📊 WALK-FORWARD REPLAY: %s %s (%d candles)\n", *symbol, tf, len(candles))
	fmt.Println(strings.Repeat("=", 78))

	cfg := walkforward.DefaultConfig(*symbol)
	cfg.MinScore = *minScore

	sim := walkforward.NewSimulator(cfg, logger)
	result := sim.Run(ctx, candles)

	fmt.Printf("\n📈 Trades: %d (wins %d, losses %d)\n",
		len(result.Trades), result.Wins, result.Losses)
	if len(result.Trades) > 0 {
		winRate := float64(result.Wins) / float64(len(result.Trades)) * 100
		fmt.Printf("🎯 Win rate: %.1f%%\n", winRate)
	}
	fmt.Printf("💰 Total PnL: %.2f%% (net of fees and slippage)\n", result.TotalPnLPct)
	if result.OpenAtFinish {
		fmt.Println("⚠️  Position still open at end of series")
	}

	fmt.Println("\nTrade log:")
	for i, t := range result.Trades {
		fmt.Printf("  %2d. %s  entry %.2f → exit %.2f  (%s)  score %.0f  pnl %+.2f%%\n",
			i+1,
			t.EntryTime.Format("2006-01-02 15:04"),
			t.EntryPrice, t.ExitPrice, t.ExitTrigger, t.Score, t.PnLPct)
	}
}
