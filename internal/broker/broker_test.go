package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testBroker(ttl time.Duration) *Broker {
	cfg := DefaultConfig()
	if ttl > 0 {
		cfg.CacheTTL = ttl
	}
	return New(cfg, zerolog.Nop())
}

// stubProvider is a scripted provider for chain tests.
type stubProvider struct {
	name  string
	calls int
	fetch func() (*TokenData, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, address string) (*TokenData, error) {
	s.calls++
	return s.fetch()
}

func price(v float64) *TokenData {
	return &TokenData{PriceUSD: &v}
}

// TestFallbackToSecondProvider tests that a rate-limited primary falls
// through to the next provider and the result is cached
func TestFallbackToSecondProvider(t *testing.T) {
	dexCalls := 0
	dex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dexCalls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer dex.Close()

	geckoCalls := 0
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geckoCalls++
		fmt.Fprint(w, `{"data":{"attributes":{"price_usd":"0.0042","fdv_usd":"120000","total_reserve_in_usd":"55000","volume_usd":{"h24":"9000"}}}}`)
	}))
	defer gecko.Close()

	b := testBroker(time.Minute)
	b.AddProvider(NewDexScreenerProvider(dex.URL), 55, time.Minute)
	b.AddProvider(NewGeckoTerminalProvider(gecko.URL, "solana"), 25, time.Minute)

	data, err := b.GetTokenData(context.Background(), "TokenMint111")
	if err != nil {
		t.Fatalf("expected fallback success, got error: %v", err)
	}
	if data.PriceUSD == nil || *data.PriceUSD != 0.0042 {
		t.Errorf("expected geckoterminal price 0.0042, got %v", data.PriceUSD)
	}
	if data.LiquidityUSD == nil || *data.LiquidityUSD != 55000 {
		t.Errorf("expected liquidity 55000, got %v", data.LiquidityUSD)
	}
	if data.Source != "geckoterminal" {
		t.Errorf("expected source geckoterminal, got %q", data.Source)
	}

	// Second call within TTL must be served from cache with no network calls.
	dexBefore, geckoBefore := dexCalls, geckoCalls
	if _, err := b.GetTokenData(context.Background(), "TokenMint111"); err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if dexCalls != dexBefore || geckoCalls != geckoBefore {
		t.Error("cached fetch must not hit the network")
	}
}

// TestThreeFailuresThenSuccess tests that 429/403/500 all fall through and
// the fourth provider's valid result is returned
func TestThreeFailuresThenSuccess(t *testing.T) {
	failing := func(name string, status int) *stubProvider {
		return &stubProvider{name: name, fetch: func() (*TokenData, error) {
			return nil, Soft(fmt.Errorf("unexpected status %d", status))
		}}
	}
	ok := &stubProvider{name: "last", fetch: func() (*TokenData, error) {
		return price(1.25), nil
	}}

	b := testBroker(time.Minute)
	for _, p := range []*stubProvider{failing("a", 429), failing("b", 403), failing("c", 500), ok} {
		b.AddProvider(p, 100, time.Minute)
	}

	data, err := b.GetTokenData(context.Background(), "TokenMint222")
	if err != nil {
		t.Fatalf("expected success after three soft failures, got: %v", err)
	}
	if *data.PriceUSD != 1.25 {
		t.Errorf("expected price 1.25, got %f", *data.PriceUSD)
	}
	if ok.calls != 1 {
		t.Errorf("expected final provider called once, got %d", ok.calls)
	}
}

// TestHardErrorAbortsChain tests that a non-soft error propagates without
// trying later providers
func TestHardErrorAbortsChain(t *testing.T) {
	hardErr := errors.New("connection refused")
	hard := &stubProvider{name: "hard", fetch: func() (*TokenData, error) {
		return nil, hardErr
	}}
	never := &stubProvider{name: "never", fetch: func() (*TokenData, error) {
		return price(1), nil
	}}

	b := testBroker(time.Minute)
	b.AddProvider(hard, 100, time.Minute)
	b.AddProvider(never, 100, time.Minute)

	_, err := b.GetTokenData(context.Background(), "TokenMint333")
	if !errors.Is(err, hardErr) {
		t.Fatalf("expected hard error to propagate, got: %v", err)
	}
	if never.calls != 0 {
		t.Error("hard error must abort the chain before later providers")
	}
}

// TestAllProvidersExhausted tests the aggregated error when nothing succeeds
func TestAllProvidersExhausted(t *testing.T) {
	b := testBroker(time.Minute)
	b.AddProvider(&stubProvider{name: "a", fetch: func() (*TokenData, error) {
		return nil, Soft(errors.New("unexpected status 429"))
	}}, 100, time.Minute)
	b.AddProvider(&stubProvider{name: "b", fetch: func() (*TokenData, error) {
		return &TokenData{}, nil // no usable price
	}}, 100, time.Minute)

	_, err := b.GetTokenData(context.Background(), "TokenMint444")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got: %v", err)
	}
}

// TestInvalidPriceFallsThrough tests that a parseable response without a
// finite price is not accepted
func TestInvalidPriceFallsThrough(t *testing.T) {
	bad := &stubProvider{name: "bad", fetch: func() (*TokenData, error) {
		return &TokenData{}, nil
	}}
	good := &stubProvider{name: "good", fetch: func() (*TokenData, error) {
		return price(3.5), nil
	}}

	b := testBroker(time.Minute)
	b.AddProvider(bad, 100, time.Minute)
	b.AddProvider(good, 100, time.Minute)

	data, err := b.GetTokenData(context.Background(), "TokenMint555")
	if err != nil {
		t.Fatalf("expected fallthrough past invalid payload, got: %v", err)
	}
	if data.Source != "good" {
		t.Errorf("expected result from second provider, got %q", data.Source)
	}
}

// TestCacheExpiryTriggersRefetch tests that an expired entry goes back to
// the provider chain
func TestCacheExpiryTriggersRefetch(t *testing.T) {
	p := &stubProvider{name: "p", fetch: func() (*TokenData, error) {
		return price(2), nil
	}}

	b := testBroker(20 * time.Millisecond)
	b.AddProvider(p, 100, time.Minute)

	ctx := context.Background()
	b.GetTokenData(ctx, "TokenMint666")
	time.Sleep(30 * time.Millisecond)
	b.GetTokenData(ctx, "TokenMint666")

	if p.calls != 2 {
		t.Errorf("expected 2 provider calls across TTL expiry, got %d", p.calls)
	}
}
