package patterns

import (
	"math"
	"sync"

	"solana-sniper-bot/internal/market"
)

// Config holds detection thresholds. The constants are contract values; the
// concrete breakout and ratio scenarios in the tests depend on them.
type Config struct {
	Lookback            int     `json:"lookback"`              // samples for rolling stats
	MaxBars             int     `json:"max_bars"`              // per-address history cap
	MinConfidence       float64 `json:"min_confidence"`        // matches below this are discarded
	SqueezeMaxBandWidth float64 `json:"squeeze_max_bandwidth"` // bandWidth considered "tight"
	SqueezeMinBreakout  float64 `json:"squeeze_min_breakout"`  // fraction above upper band
	PumpMinBuyRatio     float64 `json:"pump_min_buy_ratio"`    // buys per sell
	PumpMinVolumeChange float64 `json:"pump_min_volume_change"` // percent tick-over-tick
	StopHuntRecovery    float64 `json:"stop_hunt_recovery"`    // fraction of decline recovered
	TrapMaxVolumeRatio  float64 `json:"trap_max_volume_ratio"` // volume vs average on a new high
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() Config {
	return Config{
		Lookback:            20,
		MaxBars:             30,
		MinConfidence:       65,
		SqueezeMaxBandWidth: 0.04,
		SqueezeMinBreakout:  0.01,
		PumpMinBuyRatio:     3.0,
		PumpMinVolumeChange: 150,
		StopHuntRecovery:    0.5,
		TrapMaxVolumeRatio:  0.7,
	}
}

// tokenHistory is the bounded per-address rolling window.
type tokenHistory struct {
	bars  []market.Bar
	ticks []market.Tick
}

// Detector classifies short price/volume histories into named setups. The
// matching math uses only the supplied bar/tick data, never the wall clock,
// so replaying the same ordered input produces identical matches.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	history map[string]*tokenHistory
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 20
	}
	if cfg.MaxBars < cfg.Lookback {
		cfg.MaxBars = cfg.Lookback + 10
	}
	return &Detector{
		cfg:     cfg,
		history: make(map[string]*tokenHistory),
	}
}

// OnBar appends a bar to the token's rolling window and runs every
// bar-driven detector against the updated history. Multiple patterns may
// fire for the same bar.
func (d *Detector) OnBar(bar market.Bar) []Match {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.historyFor(bar.Address)
	h.bars = append(h.bars, bar)
	if len(h.bars) > d.cfg.MaxBars {
		h.bars = h.bars[len(h.bars)-d.cfg.MaxBars:]
	}

	var matches []Match
	if m, ok := d.detectSqueeze(bar.Address, h.bars); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectStopHunt(bar.Address, h.bars); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectReversal(bar.Address, h.bars); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectTrap(bar.Address, h.bars); ok {
		matches = append(matches, m)
	}

	return d.filter(matches)
}

// OnTick appends a raw price/volume/flow update and runs the tick-driven
// detectors.
func (d *Detector) OnTick(tick market.Tick) []Match {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.historyFor(tick.Address)
	h.ticks = append(h.ticks, tick)
	if len(h.ticks) > d.cfg.MaxBars {
		h.ticks = h.ticks[len(h.ticks)-d.cfg.MaxBars:]
	}

	var matches []Match
	if m, ok := d.detectPumpAndDump(tick.Address, h.ticks); ok {
		matches = append(matches, m)
	}
	return d.filter(matches)
}

// Forget drops all history for a token.
func (d *Detector) Forget(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, address)
}

func (d *Detector) historyFor(address string) *tokenHistory {
	h, ok := d.history[address]
	if !ok {
		h = &tokenHistory{}
		d.history[address] = h
	}
	return h
}

// filter discards matches below the minimum confidence.
func (d *Detector) filter(matches []Match) []Match {
	out := matches[:0]
	for _, m := range matches {
		if m.Confidence >= d.cfg.MinConfidence {
			out = append(out, m)
		}
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// rollingStats returns mean and sample standard deviation of the closes.
func rollingStats(bars []market.Bar) (mean, sigma float64) {
	n := float64(len(bars))
	if n == 0 {
		return 0, 0
	}
	for _, b := range bars {
		mean += b.Close
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, b := range bars {
		d := b.Close - mean
		ss += d * d
	}
	sigma = math.Sqrt(ss / (n - 1))
	return mean, sigma
}
