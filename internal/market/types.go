package market

import "time"

// TokenSnapshot holds the point-in-time market state of a token.
// Snapshots are immutable; a newer snapshot for the same address supersedes
// the older one.
type TokenSnapshot struct {
	Address      string    `json:"address"`
	Symbol       string    `json:"symbol"`
	Decimals     int       `json:"decimals"`
	PriceUSD     float64   `json:"price_usd"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	VolumeUSD    float64   `json:"volume_usd"`
	HolderCount  int       `json:"holder_count"`
	CreatedAt    time.Time `json:"created_at"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Bar is one sampled interval of open/high/low/close price and volume for a
// token, timestamped in milliseconds.
type Bar struct {
	Address   string  `json:"address"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"` // milliseconds
}

// Tick is a raw price/volume/flow update between bars. Buys and Sells are
// counts of taker-side trades in the tick window.
type Tick struct {
	Address   string  `json:"address"`
	PriceUSD  float64 `json:"price_usd"`
	VolumeUSD float64 `json:"volume_usd"`
	Buys      int     `json:"buys"`
	Sells     int     `json:"sells"`
	Timestamp int64   `json:"timestamp"` // milliseconds
}

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is an open or closed speculative position in a single token.
// Owned exclusively by the paper trading engine (or a live equivalent).
type Position struct {
	ID              string         `json:"id"`
	Address         string         `json:"address"`
	Symbol          string         `json:"symbol"`
	EntryPrice      float64        `json:"entry_price"`
	CurrentPrice    float64        `json:"current_price"`
	Quantity        float64        `json:"quantity"`
	SizeUSD         float64        `json:"size_usd"`
	StopLossPrice   float64        `json:"stop_loss_price"`
	TakeProfitPrice float64        `json:"take_profit_price"`
	Status          PositionStatus `json:"status"`
	PnL             float64        `json:"pnl"`
	ExitReason      string         `json:"exit_reason,omitempty"`
	OpenedAt        time.Time      `json:"opened_at"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
}

// UnrealizedPnL returns the mark-to-market profit of an open position.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Quantity
}
