package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Quote is a priced route for a prospective swap.
type Quote struct {
	InputMint          string  `json:"input_mint"`
	OutputMint         string  `json:"output_mint"`
	InAmountUSD        float64 `json:"in_amount_usd"`
	OutAmount          float64 `json:"out_amount"`
	Price              float64 `json:"price"`
	PriceImpactPct     float64 `json:"price_impact_pct"`
	MinHopLiquidityUSD float64 `json:"min_hop_liquidity_usd"`
	Transaction        []byte  `json:"-"` // serialized swap transaction, live mode only
}

// Quoter prices a prospective swap route.
type Quoter interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amountUSD float64, slippageBps int) (*Quote, error)
}

// ==================== LIVE QUOTER ====================

// JupiterQuoter fetches swap quotes from a Jupiter-style aggregator API.
type JupiterQuoter struct {
	baseURL    string
	httpClient *http.Client
}

// NewJupiterQuoter creates a live quoter. An empty baseURL uses the public
// endpoint.
func NewJupiterQuoter(baseURL string) *JupiterQuoter {
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag"
	}
	return &JupiterQuoter{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type jupiterQuoteResponse struct {
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      []struct {
		SwapInfo struct {
			LiquidityUSD float64 `json:"liquidityUsd"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
	SwapTransaction string `json:"swapTransaction"`
}

// GetQuote fetches and normalizes a live quote.
func (q *JupiterQuoter) GetQuote(ctx context.Context, inputMint, outputMint string, amountUSD float64, slippageBps int) (*Quote, error) {
	url := fmt.Sprintf("%s/v6/quote?inputMint=%s&outputMint=%s&amount=%.0f&slippageBps=%d",
		q.baseURL, inputMint, outputMint, amountUSD*1e6, slippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("quote endpoint returned %d", resp.StatusCode)
	}

	var out jupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding quote: %w", err)
	}

	outAmount, err := strconv.ParseFloat(out.OutAmount, 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable outAmount %q", out.OutAmount)
	}
	impact, _ := strconv.ParseFloat(out.PriceImpactPct, 64)

	minLiquidity := 0.0
	for i, hop := range out.RoutePlan {
		if i == 0 || hop.SwapInfo.LiquidityUSD < minLiquidity {
			minLiquidity = hop.SwapInfo.LiquidityUSD
		}
	}

	quote := &Quote{
		InputMint:          inputMint,
		OutputMint:         outputMint,
		InAmountUSD:        amountUSD,
		OutAmount:          outAmount,
		PriceImpactPct:     impact * 100,
		MinHopLiquidityUSD: minLiquidity,
		Transaction:        []byte(out.SwapTransaction),
	}
	if outAmount > 0 {
		quote.Price = amountUSD / outAmount
	}
	return quote, nil
}

// ==================== DRY-RUN QUOTER ====================

// PriceSource returns a reference price for a mint, e.g. the data broker's
// cached price. It must not contact the execution backend.
type PriceSource func(mint string) float64

// DryRunQuoter synthesizes deterministic quotes without any network I/O
// against the execution backend.
type DryRunQuoter struct {
	Prices         PriceSource
	LiquidityUSD   float64 // reported per-hop liquidity
	PriceImpactPct float64 // reported impact
}

// NewDryRunQuoter creates a simulated quoter with ample liquidity and
// negligible impact.
func NewDryRunQuoter(prices PriceSource) *DryRunQuoter {
	return &DryRunQuoter{
		Prices:       prices,
		LiquidityUSD: 1_000_000,
	}
}

// GetQuote synthesizes a quote from the reference price.
func (q *DryRunQuoter) GetQuote(_ context.Context, inputMint, outputMint string, amountUSD float64, _ int) (*Quote, error) {
	price := 1.0
	if q.Prices != nil {
		if p := q.Prices(outputMint); p > 0 {
			price = p
		}
	}
	return &Quote{
		InputMint:          inputMint,
		OutputMint:         outputMint,
		InAmountUSD:        amountUSD,
		OutAmount:          amountUSD / price,
		Price:              price,
		PriceImpactPct:     q.PriceImpactPct,
		MinHopLiquidityUSD: q.LiquidityUSD,
	}, nil
}

// dryRunSignature derives a stable synthetic signature from the swap
// parameters so repeated simulations of the same trade are idempotent.
func dryRunSignature(inputMint, outputMint string, amountUSD float64, slippageBps int) string {
	payload := fmt.Sprintf("dryrun:%s:%s:%.8f:%d", inputMint, outputMint, amountUSD, slippageBps)
	sum := sha256.Sum256([]byte(payload))
	return "sim1" + hex.EncodeToString(sum[:16])
}
