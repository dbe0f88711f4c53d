package exits

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reason is the terminal exit condition that fired for a position.
type Reason string

const (
	ExitStopLoss   Reason = "stop_loss"
	ExitTakeProfit Reason = "take_profit"
	ExitTimeout    Reason = "timeout"
)

// Event is a fired exit. Exactly one event is emitted per scheduled
// position.
type Event struct {
	Address    string    `json:"address"`
	Reason     Reason    `json:"reason"`
	Price      float64   `json:"price"` // price at the trigger, 0 for timeout
	EntryPrice float64   `json:"entry_price"`
	FiredAt    time.Time `json:"fired_at"`
}

// PriceUpdate is a price tick delivered to the manager.
type PriceUpdate struct {
	Address   string
	Price     float64
	Timestamp time.Time
}

// Config holds exit configuration
type Config struct {
	StopLossPercent   float64       `json:"stop_loss_percent"`   // e.g. 15 = exit 15% below entry
	TakeProfitPercent float64       `json:"take_profit_percent"` // e.g. 40 = exit 40% above entry
	Timeout           time.Duration `json:"timeout"`             // absolute deadline from entry
}

// DefaultConfig returns the exit defaults
func DefaultConfig() Config {
	return Config{
		StopLossPercent:   15,
		TakeProfitPercent: 40,
		Timeout:           10 * time.Minute,
	}
}

// watch is the armed state for one position instance.
type watch struct {
	entryPrice float64
	stopPrice  float64
	tpPrice    float64
	timer      *time.Timer
	fired      bool
}

// Manager watches open positions for stop-loss, take-profit, and timeout
// conditions, firing exactly one terminal event per scheduled position.
// After an exit fires, price updates for that address are ignored until a
// new ScheduleExit re-arms it.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	watches map[string]*watch
	events  chan Event
	logger  zerolog.Logger
}

// New creates an exit manager. Events are delivered on the Events channel.
func New(cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		watches: make(map[string]*watch),
		events:  make(chan Event, 64),
		logger:  logger.With().Str("component", "ExitManager").Logger(),
	}
}

// Events returns the channel of fired exits.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Config returns the exit thresholds in effect.
func (m *Manager) Config() Config {
	return m.cfg
}

// ScheduleExit arms stop-loss/take-profit levels and a timeout deadline for
// a newly opened position. Scheduling over an armed address replaces the
// previous watch.
func (m *Manager) ScheduleExit(address string, entryPrice float64, entryTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.watches[address]; ok && prev.timer != nil {
		prev.timer.Stop()
	}

	w := &watch{
		entryPrice: entryPrice,
		stopPrice:  entryPrice * (1 - m.cfg.StopLossPercent/100),
		tpPrice:    entryPrice * (1 + m.cfg.TakeProfitPercent/100),
	}

	deadline := entryTime.Add(m.cfg.Timeout)
	w.timer = time.AfterFunc(time.Until(deadline), func() {
		m.fire(address, ExitTimeout, 0)
	})
	m.watches[address] = w

	m.logger.Debug().
		Str("address", address).
		Float64("entry", entryPrice).
		Float64("stop", w.stopPrice).
		Float64("take_profit", w.tpPrice).
		Msg("exit scheduled")
}

// OnPriceUpdate evaluates an armed position against a new price. The
// stop-loss check takes priority when both thresholds are crossed in the
// same update. Updates for unarmed or already-exited addresses are ignored.
func (m *Manager) OnPriceUpdate(update PriceUpdate) {
	m.mu.Lock()
	w, ok := m.watches[update.Address]
	if !ok || w.fired {
		m.mu.Unlock()
		return
	}

	var reason Reason
	switch {
	case update.Price <= w.stopPrice:
		reason = ExitStopLoss
	case update.Price >= w.tpPrice:
		reason = ExitTakeProfit
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.fire(update.Address, reason, update.Price)
}

// fire emits the terminal event if this position instance has not already
// exited.
func (m *Manager) fire(address string, reason Reason, price float64) {
	m.mu.Lock()
	w, ok := m.watches[address]
	if !ok || w.fired {
		m.mu.Unlock()
		return
	}
	w.fired = true
	if w.timer != nil {
		w.timer.Stop()
	}
	entry := w.entryPrice
	m.mu.Unlock()

	m.events <- Event{
		Address:    address,
		Reason:     reason,
		Price:      price,
		EntryPrice: entry,
		FiredAt:    time.Now(),
	}
}

// Cancel disarms a position without firing, e.g. when a pipeline is
// abandoned before entry confirmation.
func (m *Manager) Cancel(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.watches[address]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(m.watches, address)
	}
}

// Armed reports whether an address has a live, unfired watch.
func (m *Manager) Armed(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[address]
	return ok && !w.fired
}
