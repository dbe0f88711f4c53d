package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// statusIsSoft reports whether an HTTP status should fall through to the
// next provider rather than abort the chain.
func statusIsSoft(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError:
		return true
	}
	return false
}

// getJSON performs a GET and decodes the body into out. Non-2xx statuses are
// returned as soft or hard errors per statusIsSoft.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if statusIsSoft(resp.StatusCode) {
			return Soft(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Soft(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// parsePrice converts a provider price string into a float pointer, returning
// nil for empty or malformed values.
func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ==================== DEXSCREENER ====================

// DexScreenerProvider fetches token data from the DexScreener pairs API.
type DexScreenerProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewDexScreenerProvider creates a DexScreener provider. An empty baseURL
// uses the public endpoint.
func NewDexScreenerProvider(baseURL string) *DexScreenerProvider {
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	return &DexScreenerProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *DexScreenerProvider) Name() string { return "dexscreener" }

type dexScreenerResponse struct {
	Pairs []struct {
		PriceUSD  string `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		FDV    float64 `json:"fdv"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		PairCreatedAt int64 `json:"pairCreatedAt"`
	} `json:"pairs"`
}

// Fetch returns the best pair's data for the token.
func (p *DexScreenerProvider) Fetch(ctx context.Context, address string) (*TokenData, error) {
	var out dexScreenerResponse
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", p.baseURL, address)
	if err := getJSON(ctx, p.httpClient, url, &out); err != nil {
		return nil, err
	}
	if len(out.Pairs) == 0 {
		return nil, Soft(fmt.Errorf("no pairs for token %s", address))
	}

	pair := out.Pairs[0]
	data := &TokenData{
		PriceUSD: parsePrice(pair.PriceUSD),
	}
	if pair.Liquidity.USD > 0 {
		liq := pair.Liquidity.USD
		data.LiquidityUSD = &liq
	}
	if pair.FDV > 0 {
		fdv := pair.FDV
		data.FDVUSD = &fdv
	}
	vol := pair.Volume.H24
	data.Volume24hUSD = &vol
	if pair.PairCreatedAt > 0 {
		ts := pair.PairCreatedAt
		data.LastTradeUnixMs = &ts
	}
	return data, nil
}

// ==================== GECKOTERMINAL ====================

// GeckoTerminalProvider fetches token data from the GeckoTerminal API.
// GeckoTerminal enforces a stricter request budget than the other sources.
type GeckoTerminalProvider struct {
	baseURL    string
	network    string
	httpClient *http.Client
}

// NewGeckoTerminalProvider creates a GeckoTerminal provider for a network.
func NewGeckoTerminalProvider(baseURL, network string) *GeckoTerminalProvider {
	if baseURL == "" {
		baseURL = "https://api.geckoterminal.com"
	}
	if network == "" {
		network = "solana"
	}
	return &GeckoTerminalProvider{
		baseURL:    baseURL,
		network:    network,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *GeckoTerminalProvider) Name() string { return "geckoterminal" }

type geckoTerminalResponse struct {
	Data struct {
		Attributes struct {
			PriceUSD          string `json:"price_usd"`
			FDVUSD            string `json:"fdv_usd"`
			TotalReserveInUSD string `json:"total_reserve_in_usd"`
			VolumeUSD         struct {
				H24 string `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// Fetch returns token attributes from GeckoTerminal.
func (p *GeckoTerminalProvider) Fetch(ctx context.Context, address string) (*TokenData, error) {
	var out geckoTerminalResponse
	url := fmt.Sprintf("%s/api/v2/networks/%s/tokens/%s", p.baseURL, p.network, address)
	if err := getJSON(ctx, p.httpClient, url, &out); err != nil {
		return nil, err
	}

	attrs := out.Data.Attributes
	return &TokenData{
		PriceUSD:     parsePrice(attrs.PriceUSD),
		FDVUSD:       parsePrice(attrs.FDVUSD),
		LiquidityUSD: parsePrice(attrs.TotalReserveInUSD),
		Volume24hUSD: parsePrice(attrs.VolumeUSD.H24),
	}, nil
}

// ==================== JUPITER ====================

// JupiterPriceProvider fetches spot prices from the Jupiter price API. It
// reports price only, so it sits last in the chain.
type JupiterPriceProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewJupiterPriceProvider creates a Jupiter price provider.
func NewJupiterPriceProvider(baseURL string) *JupiterPriceProvider {
	if baseURL == "" {
		baseURL = "https://api.jup.ag"
	}
	return &JupiterPriceProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *JupiterPriceProvider) Name() string { return "jupiter" }

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// Fetch returns the Jupiter aggregated price for the token.
func (p *JupiterPriceProvider) Fetch(ctx context.Context, address string) (*TokenData, error) {
	var out jupiterPriceResponse
	url := fmt.Sprintf("%s/price/v2?ids=%s", p.baseURL, address)
	if err := getJSON(ctx, p.httpClient, url, &out); err != nil {
		return nil, err
	}

	entry, ok := out.Data[address]
	if !ok {
		return nil, Soft(fmt.Errorf("no price entry for token %s", address))
	}
	return &TokenData{PriceUSD: parsePrice(entry.Price)}, nil
}
