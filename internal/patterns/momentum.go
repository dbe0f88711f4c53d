package patterns

import "solana-sniper-bot/internal/market"

// detectPumpAndDump matches a mega pump forming: the taker buy/sell ratio
// and the tick-over-tick volume change both exceed their thresholds in the
// same short window. Fired as a sell signal, the dump side follows the pump.
func (d *Detector) detectPumpAndDump(address string, ticks []market.Tick) (Match, bool) {
	if len(ticks) < 2 {
		return Match{}, false
	}

	latest := ticks[len(ticks)-1]
	prev := ticks[len(ticks)-2]

	if prev.VolumeUSD <= 0 || latest.Sells < 0 {
		return Match{}, false
	}

	sells := latest.Sells
	if sells == 0 {
		sells = 1
	}
	buyRatio := float64(latest.Buys) / float64(sells)
	volumeChange := (latest.VolumeUSD - prev.VolumeUSD) / prev.VolumeUSD * 100

	if buyRatio < d.cfg.PumpMinBuyRatio || volumeChange < d.cfg.PumpMinVolumeChange {
		return Match{}, false
	}

	confidence := clampConfidence(50 + 5*buyRatio + volumeChange/20)

	return Match{
		Type:       MegaPumpAndDump,
		Address:    address,
		Confidence: confidence,
		Signal:     SignalSell,
		Metadata: map[string]float64{
			"buy_ratio":     buyRatio,
			"volume_change": volumeChange,
			"volume_usd":    latest.VolumeUSD,
		},
		Timestamp: latest.Timestamp,
	}, true
}

// detectTrap matches a smart-money trap: price prints a new high over the
// lookback window while volume dries up, the classic exit-liquidity shape.
func (d *Detector) detectTrap(address string, bars []market.Bar) (Match, bool) {
	if len(bars) < d.cfg.Lookback {
		return Match{}, false
	}

	latest := bars[len(bars)-1]
	window := bars[len(bars)-d.cfg.Lookback : len(bars)-1]

	var priorHigh, volSum float64
	for _, b := range window {
		if b.High > priorHigh {
			priorHigh = b.High
		}
		volSum += b.Volume
	}
	if priorHigh <= 0 {
		return Match{}, false
	}
	avgVolume := volSum / float64(len(window))
	if avgVolume <= 0 {
		return Match{}, false
	}

	newHighPct := (latest.Close - priorHigh) / priorHigh
	volRatio := latest.Volume / avgVolume

	if newHighPct < 0.01 || volRatio >= d.cfg.TrapMaxVolumeRatio {
		return Match{}, false
	}

	confidence := clampConfidence(60 + 100*newHighPct + 50*(d.cfg.TrapMaxVolumeRatio-volRatio))

	return Match{
		Type:       SmartMoneyTrap,
		Address:    address,
		Confidence: confidence,
		Signal:     SignalSell,
		Metadata: map[string]float64{
			"new_high_pct": newHighPct,
			"volume_ratio": volRatio,
			"prior_high":   priorHigh,
		},
		Timestamp: latest.Timestamp,
	}, true
}
