// Package bot wires the full pipeline together: market stream in, pattern
// detection, risk gating, swap execution, and exit management out.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/blacklist"
	"solana-sniper-bot/internal/broker"
	"solana-sniper-bot/internal/chain"
	"solana-sniper-bot/internal/coordinator"
	"solana-sniper-bot/internal/events"
	"solana-sniper-bot/internal/executor"
	"solana-sniper-bot/internal/exits"
	"solana-sniper-bot/internal/journal"
	"solana-sniper-bot/internal/market"
	"solana-sniper-bot/internal/notification"
	"solana-sniper-bot/internal/paper"
	"solana-sniper-bot/internal/patterns"
	"solana-sniper-bot/internal/risk"
	"solana-sniper-bot/internal/stream"
)

// Config holds bot-level trading settings.
type Config struct {
	QuoteMint            string        `json:"quote_mint"` // mint spent on entries, e.g. USDC
	RiskPctPerTrade      float64       `json:"risk_pct_per_trade"`
	MaxSlippageBps       int           `json:"max_slippage_bps"`
	MinEntryLiquidityUSD float64       `json:"min_entry_liquidity_usd"`
	MaxTokenAge          time.Duration `json:"max_token_age"` // 0 disables the freshness filter
	MaintenanceInterval  time.Duration `json:"maintenance_interval"`
}

// DefaultConfig returns conservative bot defaults.
func DefaultConfig() Config {
	return Config{
		QuoteMint:            "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		RiskPctPerTrade:      0.02,
		MaxSlippageBps:       300,
		MinEntryLiquidityUSD: 10000,
		MaxTokenAge:          24 * time.Hour,
		MaintenanceInterval:  time.Minute,
	}
}

// Deps carries the collaborators the bot orchestrates. Journal, Snapshots,
// and Conn may be nil when PostgreSQL/Redis/RPC are not configured.
type Deps struct {
	Broker      *broker.Broker
	Detector    *patterns.Detector
	Coordinator *coordinator.Coordinator
	RiskManager *risk.Manager
	Executor    *executor.Executor
	ExitManager *exits.Manager
	Engine      *paper.Engine
	Snapshots   *paper.SnapshotStore
	Blacklist   *blacklist.Blacklist
	Stream      *stream.MarketStream
	Bus         *events.Bus
	Notifier    *notification.Manager
	Journal     *journal.Journal
	Conn        chain.ConnectionProvider
}

// Bot is the top-level orchestrator.
type Bot struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates the bot.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Bot {
	return &Bot{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "Bot").Logger(),
	}
}

// Start connects the stream and begins processing. Restores snapshotted
// positions first so their exits are re-armed.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.startedAt = time.Now()
	b.cancel = cancel
	b.mu.Unlock()

	if b.deps.Snapshots != nil {
		restored, err := b.deps.Snapshots.RestoreInto(runCtx, b.deps.Engine)
		if err != nil {
			b.logger.Warn().Err(err).Msg("snapshot restore failed, starting clean")
		}
		// Restored positions must count against the risk gates too, or the
		// restarted bot admits entries past the caps.
		for _, pos := range b.deps.Engine.OpenPositions() {
			b.deps.RiskManager.IncrementActivePositions(pos.SizeUSD)
			b.deps.ExitManager.ScheduleExit(pos.Address, pos.EntryPrice, pos.OpenedAt)
		}
		if restored > 0 {
			b.logger.Info().Int("count", restored).Msg("re-armed exits for restored positions")
		}
	}

	b.deps.Stream.SetNewTokenCallback(b.onNewToken)
	b.deps.Stream.SetTickCallback(b.onTick)
	b.deps.Stream.SetBarCallback(b.onBar)
	b.deps.Stream.Start()

	b.wg.Add(3)
	go b.dispatchLoop(runCtx)
	go b.exitLoop(runCtx)
	go b.maintenanceLoop(runCtx)

	b.deps.Bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{}})
	b.logger.Info().Msg("bot started")
	return nil
}

// Stop shuts the pipeline down and waits for in-flight work.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	b.deps.Stream.Stop()
	cancel()
	b.wg.Wait()

	b.deps.Bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{}})
	b.logger.Info().Msg("bot stopped")
}

// IsRunning reports whether the bot is started.
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// onNewToken registers interest in a freshly launched token. Banned tokens
// are dropped at the door.
func (b *Bot) onNewToken(snap market.TokenSnapshot) {
	if b.deps.Blacklist.IsBanned(snap.Address, "") {
		b.logger.Debug().Str("address", snap.Address).Msg("ignoring blacklisted launch")
		return
	}
	b.logger.Info().
		Str("address", snap.Address).
		Str("symbol", snap.Symbol).
		Float64("liquidity_usd", snap.LiquidityUSD).
		Msg("new token observed")
}

func (b *Bot) onTick(tick market.Tick) {
	b.deps.RiskManager.UpdatePrice(tick.Address, tick.PriceUSD)
	b.deps.Engine.UpdatePrice(tick.Address, tick.PriceUSD)
	b.deps.ExitManager.OnPriceUpdate(exits.PriceUpdate{
		Address:   tick.Address,
		Price:     tick.PriceUSD,
		Timestamp: time.UnixMilli(tick.Timestamp),
	})

	b.handleMatches(b.deps.Detector.OnTick(tick), tick.PriceUSD)
}

func (b *Bot) onBar(bar market.Bar) {
	b.handleMatches(b.deps.Detector.OnBar(bar), bar.Close)
}

// handleMatches routes detector output: buy signals queue the token for an
// entry attempt, sell signals force an early exit of any held position.
func (b *Bot) handleMatches(matches []patterns.Match, price float64) {
	for _, m := range matches {
		b.deps.Bus.PublishPatternDetected(m.Address, string(m.Type), string(m.Signal), m.Confidence)
		b.deps.Notifier.SendSignal(m.Address, string(m.Type), string(m.Signal), m.Confidence, price)

		switch m.Signal {
		case patterns.SignalBuy:
			if b.deps.Blacklist.IsBanned(m.Address, "") {
				continue
			}
			if b.deps.Coordinator.EnqueueToken(m.Address) {
				b.deps.Bus.Publish(events.Event{
					Type: events.EventTokenDispatched,
					Data: map[string]interface{}{"address": m.Address, "pattern": string(m.Type)},
				})
			}
		case patterns.SignalSell:
			if _, held := b.deps.Engine.Position(m.Address); held {
				b.deps.ExitManager.Cancel(m.Address)
				b.closePosition(context.Background(), m.Address, price, "signal_"+string(m.Type))
			}
		}
	}
}

// dispatchLoop consumes coordinator dispatches and runs one entry attempt
// per token. CompleteToken is called on every path so the slot is released.
func (b *Bot) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case address := <-b.deps.Coordinator.Dispatches():
			b.wg.Add(1)
			go func(addr string) {
				defer b.wg.Done()
				defer b.deps.Coordinator.CompleteToken(addr)
				b.tryEnter(ctx, addr)
			}(address)
		}
	}
}

// tryEnter runs the full entry pipeline for one dispatched token.
func (b *Bot) tryEnter(ctx context.Context, address string) {
	if _, held := b.deps.Engine.Position(address); held {
		return
	}

	data, err := b.deps.Broker.GetTokenData(ctx, address)
	if err != nil {
		b.logger.Warn().Err(err).Str("address", address).Msg("entry aborted, no market data")
		return
	}
	price := *data.PriceUSD
	if data.LiquidityUSD == nil || *data.LiquidityUSD < b.cfg.MinEntryLiquidityUSD {
		b.logger.Debug().Str("address", address).Msg("entry skipped, liquidity below floor")
		return
	}
	if !b.tokenFreshEnough(ctx, address) {
		return
	}

	riskMgr := b.deps.RiskManager
	size := riskMgr.DynamicPositionSize(address, riskMgr.Balance(), b.cfg.RiskPctPerTrade, b.deps.Engine.Balance())
	if size <= 0 {
		return
	}

	// A successful entry swap leaves the position slot reserved with the
	// risk manager; the executor releases it on every failure path.
	result := b.deps.Executor.ExecuteSwap(ctx, executor.SideEntry, b.cfg.QuoteMint, address, size, b.cfg.MaxSlippageBps)
	if !result.Success {
		b.deps.Bus.PublishSwapFailed(address, string(result.ErrorKind), fmt.Errorf("%s", result.Error))
		b.logger.Warn().
			Str("address", address).
			Str("kind", string(result.ErrorKind)).
			Str("error", result.Error).
			Msg("entry swap failed")
		return
	}
	if result.Price > 0 {
		price = result.Price
	}

	exitCfg := b.deps.ExitManager.Config()
	stopPrice := price * (1 - exitCfg.StopLossPercent/100)
	tpPrice := price * (1 + exitCfg.TakeProfitPercent/100)

	pos, err := b.deps.Engine.OpenPosition(address, "", price, size, stopPrice, tpPrice)
	if err != nil {
		riskMgr.DecrementActivePositions(size)
		b.logger.Error().Err(err).Str("address", address).Msg("swap succeeded but position open failed")
		return
	}
	b.deps.ExitManager.ScheduleExit(address, price, pos.OpenedAt)
	if b.deps.Snapshots != nil {
		if err := b.deps.Snapshots.Save(ctx, *pos); err != nil {
			b.logger.Warn().Err(err).Str("address", address).Msg("snapshot save failed")
		}
	}

	b.deps.Bus.PublishSwapExecuted(address, result.Signature, size, price, true)
	b.deps.Bus.PublishPositionOpened(address, price, size)
	b.deps.Notifier.SendTradeOpen(address, price, size)
	b.logger.Info().
		Str("address", address).
		Str("signature", result.Signature).
		Float64("price", price).
		Float64("size_usd", size).
		Msg("position entered")
}

// tokenFreshEnough applies the on-chain age ceiling: a token whose oldest
// visible signature predates MaxTokenAge is a relaunch, not a launch, and is
// skipped. No-op without an RPC connection or with the filter disabled.
func (b *Bot) tokenFreshEnough(ctx context.Context, address string) bool {
	if b.deps.Conn == nil || b.cfg.MaxTokenAge <= 0 {
		return true
	}
	age, err := chain.EstimateTokenAge(ctx, b.deps.Conn, address, 0)
	if err != nil {
		b.logger.Warn().Err(err).Str("address", address).Msg("token age lookup failed, proceeding")
		return true
	}
	if age > b.cfg.MaxTokenAge {
		b.logger.Debug().
			Str("address", address).
			Dur("age", age).
			Msg("entry skipped, token older than freshness ceiling")
		return false
	}
	return true
}

// exitLoop consumes fired exits and closes the corresponding positions.
func (b *Bot) exitLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-b.deps.ExitManager.Events():
			price := evt.Price
			if price <= 0 {
				// Timeout exits fire without a trigger price.
				if pos, ok := b.deps.Engine.Position(evt.Address); ok {
					price = pos.CurrentPrice
				} else {
					price = evt.EntryPrice
				}
			}
			b.closePosition(ctx, evt.Address, price, string(evt.Reason))
		}
	}
}

// closePosition unwinds a held position: sells, realizes PnL, updates risk
// counters, journals, and notifies.
func (b *Bot) closePosition(ctx context.Context, address string, price float64, reason string) {
	pos, ok := b.deps.Engine.Position(address)
	if !ok {
		return
	}

	result := b.deps.Executor.ExecuteSwap(ctx, executor.SideExit, address, b.cfg.QuoteMint, pos.Quantity*price, b.cfg.MaxSlippageBps)
	if !result.Success {
		// The position must still be unwound in our books; a stuck
		// exit swap cannot leave the bot believing it is flat. The
		// operator has to reconcile the on-chain balance by hand.
		b.logger.Error().
			Str("address", address).
			Str("error", result.Error).
			Msg("exit swap failed, closing position at mark price")
		b.deps.Notifier.SendError("Exit swap failed",
			fmt.Sprintf("%s: %s; position closed at mark price, reconcile on-chain balance", address, result.Error))
	}

	closed, err := b.deps.Engine.ClosePosition(address, price, reason)
	if err != nil {
		b.logger.Error().Err(err).Str("address", address).Msg("position close failed")
		return
	}
	b.deps.RiskManager.DecrementActivePositions(closed.SizeUSD)
	b.deps.RiskManager.RecordTrade(closed.PnL)

	if b.deps.Snapshots != nil {
		if err := b.deps.Snapshots.Delete(ctx, address); err != nil {
			b.logger.Warn().Err(err).Str("address", address).Msg("snapshot delete failed")
		}
	}
	if b.deps.Journal != nil {
		if err := b.deps.Journal.RecordTrade(ctx, *closed); err != nil {
			b.logger.Warn().Err(err).Str("address", address).Msg("trade journaling failed")
		}
	}

	pnlPct := 0.0
	if closed.SizeUSD > 0 {
		pnlPct = closed.PnL / closed.SizeUSD * 100
	}
	b.deps.Bus.PublishPositionClosed(address, reason, closed.EntryPrice, price, closed.PnL)
	b.deps.Notifier.SendTradeClose(address, reason, closed.EntryPrice, price, closed.PnL, pnlPct)
}

// maintenanceLoop runs the periodic sweeps.
func (b *Bot) maintenanceLoop(ctx context.Context) {
	defer b.wg.Done()

	interval := b.cfg.MaintenanceInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.deps.RiskManager.SweepAbandonedExecutions(); n > 0 {
				b.logger.Warn().Int("count", n).Msg("abandoned executions swept")
			}
			b.deps.Coordinator.SweepCooldowns()
		}
	}
}
