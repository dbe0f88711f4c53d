package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"solana-sniper-bot/internal/cache"
)

// TokenData is the normalized market data shape shared by all providers.
// Fields are pointers because providers differ in coverage; a nil field means
// the provider did not report it.
type TokenData struct {
	PriceUSD        *float64 `json:"price_usd"`
	LiquidityUSD    *float64 `json:"liquidity_usd"`
	FDVUSD          *float64 `json:"fdv_usd"`
	Volume24hUSD    *float64 `json:"volume_24h_usd"`
	LastTradeUnixMs *int64   `json:"last_trade_unix_ms"`
	Source          string   `json:"source"`
}

// Provider fetches raw token data from a single upstream source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, address string) (*TokenData, error)
}

// softError marks a provider failure that should fall through to the next
// provider instead of aborting the chain (rate limits, missing tokens,
// upstream 5xx, unparseable payloads).
type softError struct {
	err error
}

func (e *softError) Error() string { return e.err.Error() }
func (e *softError) Unwrap() error { return e.err }

// Soft wraps err so the broker treats it as a fall-through failure.
func Soft(err error) error { return &softError{err: err} }

func isSoft(err error) bool {
	var s *softError
	return errors.As(err, &s)
}

// ErrAllProvidersFailed is returned when every provider was exhausted without
// a valid result. The last provider error is attached via %w.
var ErrAllProvidersFailed = errors.New("all data providers exhausted")

// providerSlot pairs a provider with its request-rate budget.
type providerSlot struct {
	provider Provider
	limiter  *rate.Limiter
}

// Broker fetches token market data from an ordered list of providers with a
// shared TTL cache and per-provider queued request budgets.
type Broker struct {
	slots  []providerSlot
	cache  *cache.TTLCache[*TokenData]
	logger zerolog.Logger
}

// Config holds broker configuration
type Config struct {
	CacheTTL        time.Duration `json:"cache_ttl"`
	CacheMaxEntries int           `json:"cache_max_entries"`
}

// DefaultConfig returns the broker defaults
func DefaultConfig() Config {
	return Config{
		CacheTTL:        10 * time.Second,
		CacheMaxEntries: 2000,
	}
}

// New creates a broker with an empty provider chain.
func New(cfg Config, logger zerolog.Logger) *Broker {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}
	return &Broker{
		cache:  cache.New[*TokenData](cfg.CacheTTL, cfg.CacheMaxEntries),
		logger: logger.With().Str("component", "DataBroker").Logger(),
	}
}

// AddProvider appends a provider to the fallback chain with a request budget
// of requestsPerWindow calls per window. Calls beyond the budget queue until
// a slot frees up rather than failing.
func (b *Broker) AddProvider(p Provider, requestsPerWindow int, window time.Duration) {
	limit := rate.Limit(float64(requestsPerWindow) / window.Seconds())
	b.slots = append(b.slots, providerSlot{
		provider: p,
		limiter:  rate.NewLimiter(limit, 1),
	})
}

// GetTokenData returns normalized market data for a token, serving from the
// shared cache when fresh. Providers are tried in registration order; soft
// failures (rate limits, missing data, upstream errors) fall through to the
// next provider, any other error aborts immediately.
func (b *Broker) GetTokenData(ctx context.Context, address string) (*TokenData, error) {
	if data, ok := b.cache.Get(address); ok {
		return data, nil
	}

	var lastErr error
	for _, slot := range b.slots {
		if err := slot.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", slot.provider.Name(), err)
		}

		data, err := slot.provider.Fetch(ctx, address)
		if err != nil {
			if isSoft(err) {
				b.logger.Debug().
					Str("provider", slot.provider.Name()).
					Str("address", address).
					Err(err).
					Msg("provider failed, falling through")
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("provider %s: %w", slot.provider.Name(), err)
		}

		if !hasValidPrice(data) {
			lastErr = fmt.Errorf("provider %s returned no usable price", slot.provider.Name())
			continue
		}

		data.Source = slot.provider.Name()
		b.cache.Set(address, data)
		return data, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrAllProvidersFailed, address, lastErr)
	}
	return nil, fmt.Errorf("%w for %s: no providers configured", ErrAllProvidersFailed, address)
}

// InvalidateToken drops a token from the cache, forcing the next call to hit
// the provider chain.
func (b *Broker) InvalidateToken(address string) {
	b.cache.Delete(address)
}

// hasValidPrice reports whether the response carries a finite price, the
// validity criterion for a provider result.
func hasValidPrice(d *TokenData) bool {
	if d == nil || d.PriceUSD == nil {
		return false
	}
	p := *d.PriceUSD
	return !math.IsNaN(p) && !math.IsInf(p, 0)
}
