// Command papertrade replays a recorded market data file through the pattern
// detector and a simulated portfolio, printing every signal and the final
// PnL. Useful for tuning detector thresholds against captured sessions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"solana-sniper-bot/internal/exits"
	"solana-sniper-bot/internal/logging"
	"solana-sniper-bot/internal/market"
	"solana-sniper-bot/internal/paper"
	"solana-sniper-bot/internal/patterns"
)

// replayFile is the recorded session format: bars and ticks interleaved in
// arrival order.
type replayFile struct {
	Events []replayEvent `json:"events"`
}

type replayEvent struct {
	Bar  *market.Bar  `json:"bar,omitempty"`
	Tick *market.Tick `json:"tick,omitempty"`
}

func main() {
	input := flag.String("input", "", "recorded session file (required)")
	balance := flag.Float64("balance", 1000, "starting balance in USD")
	sizeUSD := flag.Float64("size", 50, "position size per entry in USD")
	minConfidence := flag.Float64("min-confidence", 0, "override detector minimum confidence")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: papertrade -input session.json [-balance N] [-size N]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
	var session replayFile
	if err := json.Unmarshal(data, &session); err != nil {
		fmt.Fprintf(os.Stderr, "parse input: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: "info", Output: "stdout"})

	patternCfg := patterns.DefaultConfig()
	if *minConfidence > 0 {
		patternCfg.MinConfidence = *minConfidence
	}
	detector := patterns.NewDetector(patternCfg)
	engine := paper.NewEngine(*balance, logger)
	exitCfg := exits.DefaultConfig()

	signals := 0
	for _, evt := range session.Events {
		var matches []patterns.Match
		var price float64
		switch {
		case evt.Bar != nil:
			matches = detector.OnBar(*evt.Bar)
			price = evt.Bar.Close
			checkExits(engine, exitCfg, evt.Bar.Address, price)
		case evt.Tick != nil:
			matches = detector.OnTick(*evt.Tick)
			price = evt.Tick.PriceUSD
			checkExits(engine, exitCfg, evt.Tick.Address, price)
		default:
			continue
		}

		for _, m := range matches {
			signals++
			fmt.Printf("%-22s %-5s %s confidence=%.1f price=%.8f\n",
				m.Type, m.Signal, m.Address, m.Confidence, price)

			switch m.Signal {
			case patterns.SignalBuy:
				stop := price * (1 - exitCfg.StopLossPercent/100)
				tp := price * (1 + exitCfg.TakeProfitPercent/100)
				if _, err := engine.OpenPosition(m.Address, "", price, *sizeUSD, stop, tp); err == nil {
					fmt.Printf("  -> entered %s at %.8f\n", m.Address, price)
				}
			case patterns.SignalSell:
				if _, held := engine.Position(m.Address); held {
					closed, _ := engine.ClosePosition(m.Address, price, "signal_"+string(m.Type))
					fmt.Printf("  -> exited %s pnl=%.2f\n", m.Address, closed.PnL)
				}
			}
		}
	}

	// Mark remaining positions to their last price.
	for _, pos := range engine.OpenPositions() {
		closed, _ := engine.ClosePosition(pos.Address, pos.CurrentPrice, "replay_end")
		fmt.Printf("closed at end: %s pnl=%.2f\n", closed.Address, closed.PnL)
	}

	closed := engine.ClosedPositions()
	wins := 0
	totalPnL := 0.0
	for _, pos := range closed {
		totalPnL += pos.PnL
		if pos.PnL > 0 {
			wins++
		}
	}

	fmt.Println()
	fmt.Printf("events: %d  signals: %d  trades: %d  wins: %d\n",
		len(session.Events), signals, len(closed), wins)
	fmt.Printf("starting balance: %.2f  final balance: %.2f  pnl: %+.2f\n",
		*balance, engine.Balance(), totalPnL)
}

// checkExits applies stop/take-profit levels to any open position in the
// token as prices replay forward.
func checkExits(engine *paper.Engine, cfg exits.Config, address string, price float64) {
	pos, held := engine.Position(address)
	if !held {
		return
	}
	engine.UpdatePrice(address, price)

	switch {
	case price <= pos.StopLossPrice:
		if closed, err := engine.ClosePosition(address, price, "stop_loss"); err == nil {
			fmt.Printf("  -> stop loss %s pnl=%.2f\n", address, closed.PnL)
		}
	case price >= pos.TakeProfitPrice:
		if closed, err := engine.ClosePosition(address, price, "take_profit"); err == nil {
			fmt.Printf("  -> take profit %s pnl=%.2f\n", address, closed.PnL)
		}
	}
}
