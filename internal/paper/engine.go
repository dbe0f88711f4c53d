package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/market"
)

// Engine is the trading-state holder for simulated trading. It owns the
// active position map exclusively: positions are created on open, mutated by
// price updates and exit events, and removed on close. At most one open
// position exists per token address.
type Engine struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*market.Position // keyed by address
	closed    []market.Position
	logger    zerolog.Logger
}

// NewEngine creates a paper trading engine with a starting balance.
func NewEngine(startingBalance float64, logger zerolog.Logger) *Engine {
	return &Engine{
		balance:   startingBalance,
		positions: make(map[string]*market.Position),
		logger:    logger.With().Str("component", "PaperEngine").Logger(),
	}
}

// OpenPosition opens a position in a token. Opening a token that already has
// an open position is rejected, preserving the one-position-per-address
// invariant.
func (e *Engine) OpenPosition(address, symbol string, entryPrice, sizeUSD, stopPrice, tpPrice float64) (*market.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.positions[address]; exists {
		return nil, fmt.Errorf("position already open for %s", address)
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("invalid entry price %f", entryPrice)
	}
	if sizeUSD > e.balance {
		return nil, fmt.Errorf("size %.2f exceeds balance %.2f", sizeUSD, e.balance)
	}

	pos := &market.Position{
		ID:              uuid.New().String(),
		Address:         address,
		Symbol:          symbol,
		EntryPrice:      entryPrice,
		CurrentPrice:    entryPrice,
		Quantity:        sizeUSD / entryPrice,
		SizeUSD:         sizeUSD,
		StopLossPrice:   stopPrice,
		TakeProfitPrice: tpPrice,
		Status:          market.PositionOpen,
		OpenedAt:        time.Now(),
	}
	e.positions[address] = pos
	e.balance -= sizeUSD

	e.logger.Info().
		Str("address", address).
		Str("position_id", pos.ID).
		Float64("entry", entryPrice).
		Float64("size_usd", sizeUSD).
		Msg("position opened")

	snap := *pos
	return &snap, nil
}

// UpdatePrice marks an open position to the latest price.
func (e *Engine) UpdatePrice(address string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pos, ok := e.positions[address]; ok {
		pos.CurrentPrice = price
		pos.PnL = pos.UnrealizedPnL()
	}
}

// ClosePosition closes the open position for a token at the given price,
// realizing its PnL into the balance. Returns the closed position snapshot.
func (e *Engine) ClosePosition(address string, price float64, reason string) (*market.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[address]
	if !ok {
		return nil, fmt.Errorf("no open position for %s", address)
	}
	delete(e.positions, address)

	now := time.Now()
	pos.CurrentPrice = price
	pos.PnL = (price - pos.EntryPrice) * pos.Quantity
	pos.Status = market.PositionClosed
	pos.ExitReason = reason
	pos.ClosedAt = &now

	e.balance += pos.SizeUSD + pos.PnL
	e.closed = append(e.closed, *pos)

	e.logger.Info().
		Str("address", address).
		Str("reason", reason).
		Float64("pnl", pos.PnL).
		Float64("balance", e.balance).
		Msg("position closed")

	snap := *pos
	return &snap, nil
}

// Position returns a snapshot of the open position for a token, if any.
func (e *Engine) Position(address string) (market.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[address]
	if !ok {
		return market.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns snapshots of all open positions.
func (e *Engine) OpenPositions() []market.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]market.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	return out
}

// ClosedPositions returns snapshots of all closed positions this session.
func (e *Engine) ClosedPositions() []market.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]market.Position(nil), e.closed...)
}

// Balance returns the free (unallocated) balance.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// restore reinstates positions from a snapshot store, skipping addresses
// that already have one.
func (e *Engine) restore(positions []market.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range positions {
		pos := positions[i]
		if pos.Status != market.PositionOpen {
			continue
		}
		if _, exists := e.positions[pos.Address]; exists {
			continue
		}
		p := pos
		e.positions[pos.Address] = &p
		e.balance -= pos.SizeUSD
	}
}
