package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/circuit"
)

// Config holds risk management configuration
type Config struct {
	MaxOpenPositions     int     `json:"max_open_positions"`
	MaxPositionSizeUSD   float64 `json:"max_position_size_usd"`
	MaxPortfolioExposure float64 `json:"max_portfolio_exposure"` // total USD across open positions
	MaxDrawdownPercent   float64 `json:"max_drawdown_percent"`   // from high-water mark
	MaxDailyLossUSD      float64 `json:"max_daily_loss_usd"`
	MaxErrorRate         float64 `json:"max_error_rate"` // failures / attempts in the trailing window
	ErrorRateWindow      time.Duration `json:"error_rate_window"`
	ErrorRateMinSamples  int           `json:"error_rate_min_samples"`
	MaxTradesPerMinute   int           `json:"max_trades_per_minute"`
	MaxTradesPerHour     int           `json:"max_trades_per_hour"`
	MaxTradesPerDay      int           `json:"max_trades_per_day"`
	ExecutionTimeout     time.Duration `json:"execution_timeout"` // started-but-never-completed cutoff
	VolatilityWindow     int           `json:"volatility_window"` // price samples kept per token
}

// DefaultConfig returns conservative defaults
func DefaultConfig() Config {
	return Config{
		MaxOpenPositions:     5,
		MaxPositionSizeUSD:   250,
		MaxPortfolioExposure: 1000,
		MaxDrawdownPercent:   20,
		MaxDailyLossUSD:      100,
		MaxErrorRate:         0.5,
		ErrorRateWindow:      10 * time.Minute,
		ErrorRateMinSamples:  5,
		MaxTradesPerMinute:   10,
		MaxTradesPerHour:     60,
		MaxTradesPerDay:      200,
		ExecutionTimeout:     2 * time.Minute,
		VolatilityWindow:     20,
	}
}

// pricePoint is one sample of a token's recent price history.
type pricePoint struct {
	price float64
	at    time.Time
}

// execution brackets one attempted trade for latency and error accounting.
type execution struct {
	startedAt time.Time
}

// outcome is a completed execution result inside the trailing window.
type outcome struct {
	at      time.Time
	success bool
}

// Manager owns the process-wide risk state: balance, exposure, volatility
// history, trade-frequency counters, and the circuit breakers. All mutation
// is serialized behind a single mutex; callers from concurrent pipelines
// never read-modify-write fields directly.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	balance       float64
	highWaterMark float64
	dailyPnL      float64
	dailyLoss     float64
	dailyResetAt  time.Time

	activePositions int
	exposureUSD     float64

	tradesThisMinute int
	tradesThisHour   int
	tradesToday      int
	minuteResetAt    time.Time
	hourResetAt      time.Time

	priceHistory map[string][]pricePoint
	executions   map[string]*execution
	outcomes     []outcome

	breakers      *circuit.BreakerSet
	emergencyStop bool
	systemEnabled bool

	logger zerolog.Logger
}

// NewManager creates a risk manager with the starting account balance.
func NewManager(cfg Config, startingBalance float64, logger zerolog.Logger) *Manager {
	now := time.Now()
	return &Manager{
		cfg:           cfg,
		balance:       startingBalance,
		highWaterMark: startingBalance,
		dailyResetAt:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
		minuteResetAt: now.Add(time.Minute),
		hourResetAt:   now.Add(time.Hour),
		priceHistory:  make(map[string][]pricePoint),
		executions:    make(map[string]*execution),
		breakers:      circuit.NewBreakerSet(),
		systemEnabled: true,
		logger:        logger.With().Str("component", "RiskManager").Logger(),
	}
}

// Breakers exposes the breaker registry for observability and manual control.
func (m *Manager) Breakers() *circuit.BreakerSet { return m.breakers }

// CanOpenPosition reports whether a new position of the proposed size may be
// opened, with the blocking reason when it may not. The answer is advisory:
// concurrent pipelines racing past it could overshoot the caps, so entry
// paths must claim their slot with ReservePosition instead.
func (m *Manager) CanOpenPosition(sizeUSD float64, address string, price float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canOpenLocked(sizeUSD)
}

// ReservePosition checks the gates and claims a position slot and its
// exposure in one critical section. On success the caller owns the slot and
// must release it with DecrementActivePositions when the trade fails or the
// position closes.
func (m *Manager) ReservePosition(sizeUSD float64, address string, price float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok, reason := m.canOpenLocked(sizeUSD); !ok {
		return false, reason
	}
	m.activePositions++
	m.exposureUSD += sizeUSD
	return true, ""
}

// canOpenLocked runs the gating chain. Caller holds the lock.
func (m *Manager) canOpenLocked(sizeUSD float64) (bool, string) {
	if m.emergencyStop {
		return false, "emergency stop active"
	}
	if !m.systemEnabled {
		return false, "system disabled"
	}
	if name, reason, active := m.breakers.AnyActive(); active {
		return false, fmt.Sprintf("circuit breaker %s active: %s", name, reason)
	}
	if m.activePositions >= m.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", m.activePositions, m.cfg.MaxOpenPositions)
	}
	if sizeUSD > m.cfg.MaxPositionSizeUSD {
		return false, fmt.Sprintf("size %.2f exceeds max position size %.2f", sizeUSD, m.cfg.MaxPositionSizeUSD)
	}
	if m.exposureUSD+sizeUSD > m.cfg.MaxPortfolioExposure {
		return false, fmt.Sprintf("size %.2f would exceed portfolio exposure limit %.2f", sizeUSD, m.cfg.MaxPortfolioExposure)
	}

	m.resetCountersIfNeeded()
	if m.cfg.MaxTradesPerMinute > 0 && m.tradesThisMinute >= m.cfg.MaxTradesPerMinute {
		return false, fmt.Sprintf("trade rate limit reached: %d/minute", m.tradesThisMinute)
	}
	if m.cfg.MaxTradesPerHour > 0 && m.tradesThisHour >= m.cfg.MaxTradesPerHour {
		return false, fmt.Sprintf("trade rate limit reached: %d/hour", m.tradesThisHour)
	}
	if m.cfg.MaxTradesPerDay > 0 && m.tradesToday >= m.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("trade rate limit reached: %d/day", m.tradesToday)
	}

	return true, ""
}

// DynamicPositionSize computes a position size inversely proportional to the
// token's realized volatility. With fewer than two price samples, or a flat
// price, it falls back to balance*riskPct; the result is always capped at
// maxExposure.
func (m *Manager) DynamicPositionSize(address string, balance, riskPct, maxExposure float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := balance * riskPct

	history := m.priceHistory[address]
	if len(history) < 2 {
		return base
	}

	mean := 0.0
	for _, p := range history {
		mean += p.price
	}
	mean /= float64(len(history))

	var ss float64
	for _, p := range history {
		d := p.price - mean
		ss += d * d
	}
	sigma := math.Sqrt(ss / float64(len(history)-1))

	if sigma < 1e-12 {
		return base
	}
	return math.Min(maxExposure, base/sigma)
}

// UpdatePrice appends a price sample to the token's bounded volatility
// history.
func (m *Manager) UpdatePrice(address string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.priceHistory[address], pricePoint{price: price, at: time.Now()})
	if len(history) > m.cfg.VolatilityWindow {
		history = history[len(history)-m.cfg.VolatilityWindow:]
	}
	m.priceHistory[address] = history
}

// IncrementActivePositions records a newly opened position and its exposure.
func (m *Manager) IncrementActivePositions(sizeUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activePositions++
	m.exposureUSD += sizeUSD
}

// DecrementActivePositions releases an open position slot and its exposure.
func (m *Manager) DecrementActivePositions(sizeUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activePositions--
	if m.activePositions < 0 {
		m.activePositions = 0
	}
	m.exposureUSD -= sizeUSD
	if m.exposureUSD < 0 {
		m.exposureUSD = 0
	}
}

// RecordTrade applies a realized PnL to the balance and the daily counters,
// then evaluates the drawdown and daily-loss breakers.
func (m *Manager) RecordTrade(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		m.logger.Warn().Float64("pnl", pnl).Msg("ignoring non-finite pnl")
		return
	}

	m.resetCountersIfNeeded()

	m.balance += pnl
	m.dailyPnL += pnl
	if pnl < 0 {
		m.dailyLoss += -pnl
	}
	if m.balance > m.highWaterMark {
		m.highWaterMark = m.balance
	}

	m.tradesThisMinute++
	m.tradesThisHour++
	m.tradesToday++

	m.evaluateBreakers()
}

// evaluateBreakers trips drawdown, daily-loss, and trade-rate breakers from
// the current counters. Caller holds the lock.
func (m *Manager) evaluateBreakers() {
	if m.highWaterMark > 0 {
		drawdown := (m.highWaterMark - m.balance) / m.highWaterMark * 100
		if drawdown >= m.cfg.MaxDrawdownPercent {
			m.breakers.Trip(circuit.BreakerDrawdown,
				fmt.Sprintf("drawdown %.2f%% >= %.2f%%", drawdown, m.cfg.MaxDrawdownPercent))
		}
	}
	if m.cfg.MaxDailyLossUSD > 0 && m.dailyLoss >= m.cfg.MaxDailyLossUSD {
		m.breakers.Trip(circuit.BreakerDailyLoss,
			fmt.Sprintf("daily loss %.2f >= %.2f", m.dailyLoss, m.cfg.MaxDailyLossUSD))
	}
	if m.cfg.MaxTradesPerMinute > 0 && m.tradesThisMinute > m.cfg.MaxTradesPerMinute {
		m.breakers.Trip(circuit.BreakerTradeRate,
			fmt.Sprintf("%d trades in the last minute", m.tradesThisMinute))
	}
	if m.cfg.MaxTradesPerHour > 0 && m.tradesThisHour > m.cfg.MaxTradesPerHour {
		m.breakers.Trip(circuit.BreakerTradeRate,
			fmt.Sprintf("%d trades in the last hour", m.tradesThisHour))
	}
	if m.cfg.MaxTradesPerDay > 0 && m.tradesToday > m.cfg.MaxTradesPerDay {
		m.breakers.Trip(circuit.BreakerTradeRate,
			fmt.Sprintf("%d trades today", m.tradesToday))
	}
}

// resetCountersIfNeeded rolls the minute/hour/day counters. Caller holds the
// lock.
func (m *Manager) resetCountersIfNeeded() {
	now := time.Now()
	if now.After(m.minuteResetAt) {
		m.tradesThisMinute = 0
		m.minuteResetAt = now.Add(time.Minute)
	}
	if now.After(m.hourResetAt) {
		m.tradesThisHour = 0
		m.hourResetAt = now.Add(time.Hour)
	}
	if now.After(m.dailyResetAt) {
		m.dailyPnL = 0
		m.dailyLoss = 0
		m.tradesToday = 0
		m.dailyResetAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// EmergencyStop halts all trading until ResetEmergencyStop is called.
func (m *Manager) EmergencyStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = true
	m.logger.Error().Str("reason", reason).Msg("emergency stop activated")
}

// ResetEmergencyStop manually clears the emergency stop.
func (m *Manager) ResetEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = false
}

// SetEnabled toggles the system-enabled gate.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemEnabled = enabled
}

// Balance returns the current account balance.
func (m *Manager) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// Metrics returns a snapshot of the risk state for the status API.
func (m *Manager) Metrics() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"balance":          m.balance,
		"high_water_mark":  m.highWaterMark,
		"daily_pnl":        m.dailyPnL,
		"daily_loss":       m.dailyLoss,
		"active_positions": m.activePositions,
		"exposure_usd":     m.exposureUSD,
		"trades_today":     m.tradesToday,
		"emergency_stop":   m.emergencyStop,
		"system_enabled":   m.systemEnabled,
		"breakers":         m.breakers.Active(),
	}
}
