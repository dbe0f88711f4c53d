package bot

import (
	"context"
	"fmt"
	"time"

	"solana-sniper-bot/internal/blacklist"
	"solana-sniper-bot/internal/circuit"
	"solana-sniper-bot/internal/events"
	"solana-sniper-bot/internal/journal"
	"solana-sniper-bot/internal/market"
)

// The methods below form the surface consumed by the control API.

// Status returns a snapshot of bot health and risk state.
func (b *Bot) Status() map[string]interface{} {
	b.mu.Lock()
	running := b.running
	startedAt := b.startedAt
	b.mu.Unlock()

	status := map[string]interface{}{
		"running":     running,
		"open":        len(b.deps.Engine.OpenPositions()),
		"balance":     b.deps.Engine.Balance(),
		"coordinator": b.deps.Coordinator.GetStatus(),
		"risk":        b.deps.RiskManager.Metrics(),
		"stream":      b.deps.Stream.Stats(),
	}
	if running {
		status["uptime_seconds"] = int64(time.Since(startedAt).Seconds())
	}
	return status
}

// OpenPositions returns all currently open positions.
func (b *Bot) OpenPositions() []market.Position {
	return b.deps.Engine.OpenPositions()
}

// ClosedPositions returns positions closed this session.
func (b *Bot) ClosedPositions() []market.Position {
	return b.deps.Engine.ClosedPositions()
}

// ActiveBreakers returns the names of tripped circuit breakers.
func (b *Bot) ActiveBreakers() []string {
	active := b.deps.RiskManager.Breakers().Active()
	names := make([]string, 0, len(active))
	for name := range active {
		names = append(names, name)
	}
	return names
}

// ResetBreaker clears one tripped breaker by name.
func (b *Bot) ResetBreaker(name string) error {
	switch name {
	case circuit.BreakerDrawdown, circuit.BreakerDailyLoss, circuit.BreakerErrorRate, circuit.BreakerTradeRate:
	default:
		return fmt.Errorf("unknown breaker %q", name)
	}
	if !b.deps.RiskManager.Breakers().IsActive(name) {
		return fmt.Errorf("breaker %q is not active", name)
	}
	b.deps.RiskManager.Breakers().Clear(name)
	return nil
}

// EmergencyStop halts all new entries until ResetEmergencyStop.
func (b *Bot) EmergencyStop(reason string) {
	b.deps.RiskManager.EmergencyStop(reason)
	b.deps.Bus.Publish(events.Event{
		Type: events.EventEmergencyStop,
		Data: map[string]interface{}{"reason": reason},
	})
	b.deps.Notifier.SendError("Emergency Stop", reason)
}

// Resume lifts an emergency stop.
func (b *Bot) Resume() {
	b.deps.RiskManager.ResetEmergencyStop()
}

// BanToken blacklists a token and force-closes any open position in it.
func (b *Bot) BanToken(address, reason string) error {
	if err := b.deps.Blacklist.BanToken(address, reason); err != nil {
		return err
	}
	b.deps.Bus.Publish(events.Event{
		Type: events.EventTokenBanned,
		Data: map[string]interface{}{"address": address, "reason": reason},
	})

	if pos, held := b.deps.Engine.Position(address); held {
		b.deps.ExitManager.Cancel(address)
		b.closePosition(context.Background(), address, pos.CurrentPrice, "blacklisted")
	}
	return nil
}

// Blacklist returns banned token and creator entries.
func (b *Bot) Blacklist() ([]blacklist.Entry, []blacklist.Entry) {
	return b.deps.Blacklist.Tokens(), b.deps.Blacklist.Creators()
}

// RecentTrades returns journaled trades, newest first.
func (b *Bot) RecentTrades(ctx context.Context, limit int) ([]journal.TradeRecord, error) {
	if b.deps.Journal == nil {
		return nil, fmt.Errorf("trade journal not configured")
	}
	return b.deps.Journal.RecentTrades(ctx, limit)
}
