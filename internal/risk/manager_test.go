package risk

import (
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/circuit"
)

const testMint = "MintRisk111"

func newTestManager(cfg Config, balance float64) *Manager {
	return NewManager(cfg, balance, zerolog.Nop())
}

// TestMaxPositionsGate tests that the sixth position is rejected at a limit
// of five
func TestMaxPositionsGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 5
	cfg.MaxPortfolioExposure = 10000
	m := newTestManager(cfg, 1000)

	for i := 0; i < 5; i++ {
		ok, reason := m.CanOpenPosition(50, testMint, 1.0)
		if !ok {
			t.Fatalf("position %d should be allowed: %s", i+1, reason)
		}
		m.IncrementActivePositions(50)
	}

	ok, reason := m.CanOpenPosition(50, testMint, 1.0)
	if ok {
		t.Fatal("sixth position must be rejected at max_open_positions=5")
	}
	if !strings.Contains(reason, "max positions") {
		t.Errorf("expected max positions reason, got %q", reason)
	}
}

// TestDynamicSizingBoundaries tests the <2 samples, zero variance, and
// nonzero variance cases
func TestDynamicSizingBoundaries(t *testing.T) {
	m := newTestManager(DefaultConfig(), 1000)
	balance, riskPct, maxExposure := 1000.0, 0.02, 500.0
	base := balance * riskPct

	// Fewer than 2 samples: exactly balance*riskPct.
	if got := m.DynamicPositionSize(testMint, balance, riskPct, maxExposure); got != base {
		t.Errorf("with no samples expected %.2f, got %.2f", base, got)
	}
	m.UpdatePrice(testMint, 1.0)
	if got := m.DynamicPositionSize(testMint, balance, riskPct, maxExposure); got != base {
		t.Errorf("with one sample expected %.2f, got %.2f", base, got)
	}

	// Zero variance: still balance*riskPct.
	m.UpdatePrice(testMint, 1.0)
	m.UpdatePrice(testMint, 1.0)
	if got := m.DynamicPositionSize(testMint, balance, riskPct, maxExposure); got != base {
		t.Errorf("with flat prices expected %.2f, got %.2f", base, got)
	}

	// Nonzero variance: min(maxExposure, base/sigma).
	volatile := "MintVolatile1"
	prices := []float64{1.0, 1.2, 0.8, 1.1}
	mean := 0.0
	for _, p := range prices {
		m.UpdatePrice(volatile, p)
		mean += p
	}
	mean /= float64(len(prices))
	var ss float64
	for _, p := range prices {
		ss += (p - mean) * (p - mean)
	}
	sigma := math.Sqrt(ss / float64(len(prices)-1))
	want := math.Min(maxExposure, base/sigma)

	if got := m.DynamicPositionSize(volatile, balance, riskPct, maxExposure); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %.4f, got %.4f", want, got)
	}

	// The absolute cap applies when volatility is tiny.
	calm := "MintCalm1"
	m.UpdatePrice(calm, 1.0)
	m.UpdatePrice(calm, 1.0000001)
	if got := m.DynamicPositionSize(calm, balance, riskPct, maxExposure); got != maxExposure {
		t.Errorf("expected cap %.2f for near-zero sigma, got %.2f", maxExposure, got)
	}
}

// TestDailyLossBreaker tests that losses past the limit trip the breaker and
// block trading until cleared
func TestDailyLossBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyLossUSD = 100
	cfg.MaxDrawdownPercent = 90 // keep the drawdown breaker out of the way
	m := newTestManager(cfg, 1000)

	m.RecordTrade(-60)
	if ok, _ := m.CanOpenPosition(10, testMint, 1.0); !ok {
		t.Fatal("trading should still be allowed under the daily loss limit")
	}

	m.RecordTrade(-50)
	ok, reason := m.CanOpenPosition(10, testMint, 1.0)
	if ok {
		t.Fatal("daily loss breaker should block trading")
	}
	if !strings.Contains(reason, circuit.BreakerDailyLoss) {
		t.Errorf("expected daily_loss breaker in reason, got %q", reason)
	}

	m.Breakers().Clear(circuit.BreakerDailyLoss)
	if ok, reason := m.CanOpenPosition(10, testMint, 1.0); !ok {
		t.Errorf("clearing the breaker should re-enable trading: %s", reason)
	}
}

// TestDrawdownBreaker tests the high-water-mark drawdown trip
func TestDrawdownBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDrawdownPercent = 10
	cfg.MaxDailyLossUSD = 10000
	m := newTestManager(cfg, 1000)

	m.RecordTrade(200) // HWM 1200
	m.RecordTrade(-150) // balance 1050, drawdown 12.5%

	if !m.Breakers().IsActive(circuit.BreakerDrawdown) {
		t.Fatal("drawdown breaker should trip at 12.5% off the high-water mark")
	}
}

// TestErrorRateBreaker tests that a burst of failed executions trips the
// error-rate breaker
func TestErrorRateBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxErrorRate = 0.5
	cfg.ErrorRateMinSamples = 5
	m := newTestManager(cfg, 1000)

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		m.StartTradeExecution(id)
		m.CompleteTradeExecution(id, false, "send failed")
	}

	if !m.Breakers().IsActive(circuit.BreakerErrorRate) {
		t.Fatal("error rate breaker should trip after 5/5 failures")
	}
}

// TestAbandonedExecutionSweep tests that a started-but-never-completed
// execution is counted as a failure after the timeout
func TestAbandonedExecutionSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecutionTimeout = 10 * time.Millisecond
	cfg.ErrorRateMinSamples = 1
	cfg.MaxErrorRate = 0.5
	m := newTestManager(cfg, 1000)

	m.StartTradeExecution("orphan")
	time.Sleep(20 * time.Millisecond)

	if swept := m.SweepAbandonedExecutions(); swept != 1 {
		t.Fatalf("expected 1 abandoned execution swept, got %d", swept)
	}
	if m.PendingExecutions() != 0 {
		t.Error("swept execution should no longer be pending")
	}
	if !m.Breakers().IsActive(circuit.BreakerErrorRate) {
		t.Error("swept failure should count toward the error rate")
	}
}

// TestEmergencyStopGate tests that the emergency stop is terminal until a
// manual reset
func TestEmergencyStopGate(t *testing.T) {
	m := newTestManager(DefaultConfig(), 1000)

	m.EmergencyStop("rug detected")
	if ok, reason := m.CanOpenPosition(10, testMint, 1.0); ok || !strings.Contains(reason, "emergency stop") {
		t.Fatalf("emergency stop must block trading, got ok=%v reason=%q", ok, reason)
	}

	// Winning trades do not clear it.
	m.RecordTrade(500)
	if ok, _ := m.CanOpenPosition(10, testMint, 1.0); ok {
		t.Fatal("emergency stop must persist until manual reset")
	}

	m.ResetEmergencyStop()
	if ok, reason := m.CanOpenPosition(10, testMint, 1.0); !ok {
		t.Errorf("manual reset should re-enable trading: %s", reason)
	}
}

// TestSizeAndExposureLimits tests per-position and portfolio caps
func TestSizeAndExposureLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSizeUSD = 100
	cfg.MaxPortfolioExposure = 150
	m := newTestManager(cfg, 1000)

	if ok, _ := m.CanOpenPosition(150, testMint, 1.0); ok {
		t.Error("size above max_position_size_usd must be rejected")
	}

	m.IncrementActivePositions(100)
	if ok, reason := m.CanOpenPosition(80, testMint, 1.0); ok {
		t.Error("size pushing exposure past the portfolio limit must be rejected")
	} else if !strings.Contains(reason, "exposure") {
		t.Errorf("expected exposure reason, got %q", reason)
	}

	m.DecrementActivePositions(100)
	if ok, reason := m.CanOpenPosition(80, testMint, 1.0); !ok {
		t.Errorf("exposure released, open should be allowed: %s", reason)
	}
}

// TestReservePositionUnderContention tests that racing reservations can
// never overshoot max_open_positions
func TestReservePositionUnderContention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 2
	cfg.MaxPortfolioExposure = 10000
	m := newTestManager(cfg, 1000)

	var wg sync.WaitGroup
	var granted int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.ReservePosition(10, testMint, 1.0); ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()

	if granted != 2 {
		t.Errorf("expected exactly 2 reservations through a cap of 2, got %d", granted)
	}
	if n := m.Metrics()["active_positions"].(int); n != 2 {
		t.Errorf("expected 2 active positions, got %d", n)
	}

	m.DecrementActivePositions(10)
	if ok, reason := m.ReservePosition(10, testMint, 1.0); !ok {
		t.Errorf("released slot should be reservable again: %s", reason)
	}
}

// TestTradeRateBreakerAllWindows tests that the trade-rate breaker trips on
// the minute, hour, and day counters alike
func TestTradeRateBreakerAllWindows(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"minute", func(c *Config) { c.MaxTradesPerMinute = 3 }},
		{"hour", func(c *Config) { c.MaxTradesPerHour = 3 }},
		{"day", func(c *Config) { c.MaxTradesPerDay = 3 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MaxDrawdownPercent = 99
			cfg.MaxDailyLossUSD = 1e9
			cfg.MaxTradesPerMinute = 0
			cfg.MaxTradesPerHour = 0
			cfg.MaxTradesPerDay = 0
			tc.mutate(&cfg)
			m := newTestManager(cfg, 1000)

			for i := 0; i < 3; i++ {
				m.RecordTrade(1)
			}
			if m.Breakers().IsActive(circuit.BreakerTradeRate) {
				t.Fatalf("%s breaker must not trip at the limit", tc.name)
			}

			m.RecordTrade(1)
			if !m.Breakers().IsActive(circuit.BreakerTradeRate) {
				t.Errorf("%s breaker should trip past the limit", tc.name)
			}
		})
	}
}
