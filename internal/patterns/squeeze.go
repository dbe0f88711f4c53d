package patterns

import "solana-sniper-bot/internal/market"

// detectSqueeze matches a Bollinger-band volatility squeeze followed by an
// upside breakout. Bands are computed over the lookback window excluding the
// most recent bar: upper = mean + 2σ, lower = mean - 2σ,
// bandWidth = (upper-lower)/mean. The squeeze fires when the band was tight
// and the latest close clears the upper band by the minimum margin.
func (d *Detector) detectSqueeze(address string, bars []market.Bar) (Match, bool) {
	if len(bars) < d.cfg.Lookback {
		return Match{}, false
	}

	latest := bars[len(bars)-1]
	window := bars[len(bars)-d.cfg.Lookback : len(bars)-1]

	mean, sigma := rollingStats(window)
	if mean <= 0 {
		return Match{}, false
	}

	upper := mean + 2*sigma
	lower := mean - 2*sigma
	bandWidth := (upper - lower) / mean

	if bandWidth >= d.cfg.SqueezeMaxBandWidth {
		return Match{}, false
	}

	breakout := (latest.Close - upper) / upper
	if breakout < d.cfg.SqueezeMinBreakout {
		return Match{}, false
	}

	// Confidence scales with breakout magnitude and squeeze tightness.
	tightness := (d.cfg.SqueezeMaxBandWidth - bandWidth) / d.cfg.SqueezeMaxBandWidth
	confidence := clampConfidence(40 + 500*breakout + 15*tightness)

	return Match{
		Type:       VolatilitySqueeze,
		Address:    address,
		Confidence: confidence,
		Signal:     SignalBuy,
		Metadata: map[string]float64{
			"band_width": bandWidth,
			"breakout":   breakout,
			"upper_band": upper,
			"mean":       mean,
			"sigma":      sigma,
		},
		Timestamp: latest.Timestamp,
	}, true
}
