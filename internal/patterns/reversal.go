package patterns

import "solana-sniper-bot/internal/market"

// closeDeltas returns period-over-period close changes for the last n+1 bars.
func closeDeltas(bars []market.Bar, n int) []float64 {
	if len(bars) < n+1 {
		return nil
	}
	deltas := make([]float64, n)
	start := len(bars) - n - 1
	for i := 0; i < n; i++ {
		deltas[i] = bars[start+i+1].Close - bars[start+i].Close
	}
	return deltas
}

// detectStopHunt matches an algorithmic stop hunt: three consecutive
// declines flushing stops, then a single recovery bar that claws back at
// least the configured fraction of the decline.
func (d *Detector) detectStopHunt(address string, bars []market.Bar) (Match, bool) {
	deltas := closeDeltas(bars, 4)
	if deltas == nil {
		return Match{}, false
	}

	if deltas[0] >= 0 || deltas[1] >= 0 || deltas[2] >= 0 || deltas[3] <= 0 {
		return Match{}, false
	}

	decline := -(deltas[0] + deltas[1] + deltas[2])
	if decline <= 0 {
		return Match{}, false
	}
	recoveryRatio := deltas[3] / decline
	if recoveryRatio < d.cfg.StopHuntRecovery {
		return Match{}, false
	}

	latest := bars[len(bars)-1]
	confidence := clampConfidence(50 + 40*recoveryRatio)

	return Match{
		Type:       AlgorithmicStopHunt,
		Address:    address,
		Confidence: confidence,
		Signal:     SignalBuy,
		Metadata: map[string]float64{
			"decline":        decline,
			"recovery":       deltas[3],
			"recovery_ratio": recoveryRatio,
		},
		Timestamp: latest.Timestamp,
	}, true
}

// detectReversal matches a smart-money reversal: three consecutive declines
// followed by two rising bars recovering most of the decline on expanding
// volume.
func (d *Detector) detectReversal(address string, bars []market.Bar) (Match, bool) {
	deltas := closeDeltas(bars, 5)
	if deltas == nil {
		return Match{}, false
	}

	if deltas[0] >= 0 || deltas[1] >= 0 || deltas[2] >= 0 || deltas[3] <= 0 || deltas[4] <= 0 {
		return Match{}, false
	}

	decline := -(deltas[0] + deltas[1] + deltas[2])
	if decline <= 0 {
		return Match{}, false
	}
	recoveryRatio := (deltas[3] + deltas[4]) / decline
	if recoveryRatio < 0.6 {
		return Match{}, false
	}

	// Volume must expand on the recovery leg.
	latest := bars[len(bars)-1]
	declineBar := bars[len(bars)-4]
	if declineBar.Volume <= 0 || latest.Volume <= declineBar.Volume {
		return Match{}, false
	}
	volExpansion := latest.Volume/declineBar.Volume - 1
	if volExpansion > 1 {
		volExpansion = 1
	}

	confidence := clampConfidence(50 + 35*recoveryRatio + 10*volExpansion)

	return Match{
		Type:       SmartMoneyReversal,
		Address:    address,
		Confidence: confidence,
		Signal:     SignalBuy,
		Metadata: map[string]float64{
			"decline":          decline,
			"recovery_ratio":   recoveryRatio,
			"volume_expansion": volExpansion,
		},
		Timestamp: latest.Timestamp,
	}, true
}
