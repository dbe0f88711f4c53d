package chain

import (
	"context"
	"time"
)

// EstimateTokenAge approximates how long a token has existed from its oldest
// visible signature. Providers cap signature history, so the estimate is a
// lower bound for old tokens; for freshly launched tokens it is accurate.
func EstimateTokenAge(ctx context.Context, conn ConnectionProvider, address string, limit int) (time.Duration, error) {
	if limit <= 0 {
		limit = 1000
	}
	sigs, err := conn.GetSignaturesForAddress(ctx, address, SignatureOptions{Limit: limit})
	if err != nil {
		return 0, err
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	// Nodes omit blockTime for some slots; those entries cannot seed or
	// move the minimum.
	var oldest time.Time
	for _, s := range sigs {
		if s.BlockTime.IsZero() {
			continue
		}
		if oldest.IsZero() || s.BlockTime.Before(oldest) {
			oldest = s.BlockTime
		}
	}
	if oldest.IsZero() {
		return 0, nil
	}
	return time.Since(oldest), nil
}
