package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/chain"
	"solana-sniper-bot/internal/risk"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	memeMint = "MintMeme111"
)

func testRisk() *risk.Manager {
	cfg := risk.DefaultConfig()
	cfg.MaxPositionSizeUSD = 1000
	cfg.MaxPortfolioExposure = 5000
	return risk.NewManager(cfg, 10000, zerolog.Nop())
}

func fastConfig(dryRun bool) Config {
	cfg := DefaultConfig()
	cfg.DryRun = dryRun
	cfg.MinCallSpacing = 0
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

// scriptedQuoter returns a fixed quote or error. With failures set it errors
// that many times before succeeding.
type scriptedQuoter struct {
	quote    *Quote
	err      error
	failures int
	calls    int
}

func (s *scriptedQuoter) GetQuote(_ context.Context, inputMint, outputMint string, amountUSD float64, _ int) (*Quote, error) {
	s.calls++
	if s.err != nil && (s.failures == 0 || s.calls <= s.failures) {
		return nil, s.err
	}
	q := *s.quote
	q.InputMint = inputMint
	q.OutputMint = outputMint
	q.InAmountUSD = amountUSD
	return &q, nil
}

// flakySigner fails a set number of times before succeeding.
type flakySigner struct {
	failures int
	calls    int
}

func (f *flakySigner) SignAndSendTransaction(_ context.Context, tx []byte, _ chain.SendOptions) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("blockhash expired")
	}
	return "sig111", nil
}

// instantConfirm confirms everything immediately.
type instantConfirm struct{}

func (instantConfirm) GetAccountInfo(_ context.Context, _ string) (*chain.AccountInfo, error) {
	return nil, nil
}
func (instantConfirm) GetSignaturesForAddress(_ context.Context, _ string, _ chain.SignatureOptions) ([]chain.SignatureInfo, error) {
	return nil, nil
}
func (instantConfirm) SendTransaction(_ context.Context, _ []byte) (string, error) {
	return "", nil
}
func (instantConfirm) ConfirmTransaction(_ context.Context, _ string) error {
	return nil
}

// TestDryRunDeterministicSignature tests that dry-run swaps succeed with a
// stable synthetic signature and no signer
func TestDryRunDeterministicSignature(t *testing.T) {
	quoter := NewDryRunQuoter(func(string) float64 { return 0.002 })
	e := New(fastConfig(true), quoter, nil, nil, testRisk(), zerolog.Nop())

	first := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if !first.Success {
		t.Fatalf("dry-run swap should succeed: %s", first.Error)
	}
	if first.OutAmount != 100/0.002 {
		t.Errorf("expected out amount %.0f, got %.0f", 100/0.002, first.OutAmount)
	}

	second := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if first.Signature != second.Signature {
		t.Errorf("dry-run signature must be deterministic: %q vs %q", first.Signature, second.Signature)
	}
	if !strings.HasPrefix(first.Signature, "sim1") {
		t.Errorf("expected synthetic signature prefix, got %q", first.Signature)
	}
}

// TestInsufficientLiquidityTerminal tests the liquidity rejection kind and
// that it is not retried
func TestInsufficientLiquidityTerminal(t *testing.T) {
	quoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		MinHopLiquidityUSD: 100, // below the 5000 minimum
	}}
	e := New(fastConfig(false), quoter, &flakySigner{}, instantConfirm{}, testRisk(), zerolog.Nop())

	result := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if result.Success {
		t.Fatal("expected liquidity rejection")
	}
	if result.ErrorKind != ErrKindInsufficientLiquidity {
		t.Errorf("expected insufficient_liquidity kind, got %s", result.ErrorKind)
	}
	if quoter.calls != 1 {
		t.Errorf("validation failures must not be retried, got %d quote calls", quoter.calls)
	}
}

// TestPriceImpactTerminal tests the impact rejection kind
func TestPriceImpactTerminal(t *testing.T) {
	quoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		PriceImpactPct:     8.5,
		MinHopLiquidityUSD: 50000,
	}}
	e := New(fastConfig(false), quoter, &flakySigner{}, instantConfirm{}, testRisk(), zerolog.Nop())

	result := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if result.ErrorKind != ErrKindPriceImpact {
		t.Errorf("expected price_impact kind, got %s", result.ErrorKind)
	}
}

// TestRiskRejectedTerminal tests that a gated-off risk manager produces a
// risk rejection
func TestRiskRejectedTerminal(t *testing.T) {
	riskMgr := testRisk()
	riskMgr.EmergencyStop("test")

	quoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		MinHopLiquidityUSD: 50000,
	}}
	e := New(fastConfig(false), quoter, &flakySigner{}, instantConfirm{}, riskMgr, zerolog.Nop())

	result := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if result.ErrorKind != ErrKindRiskRejected {
		t.Errorf("expected risk_rejected kind, got %s", result.ErrorKind)
	}
}

// TestTransientRetrySucceeds tests bounded retries with eventual success
func TestTransientRetrySucceeds(t *testing.T) {
	quoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		MinHopLiquidityUSD: 50000,
	}}
	signer := &flakySigner{failures: 2}
	e := New(fastConfig(false), quoter, signer, instantConfirm{}, testRisk(), zerolog.Nop())

	result := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if !result.Success {
		t.Fatalf("expected success on the third attempt: %s", result.Error)
	}
	if signer.calls != 3 {
		t.Errorf("expected 3 submission attempts, got %d", signer.calls)
	}
	if result.Signature != "sig111" {
		t.Errorf("expected live signature, got %q", result.Signature)
	}
}

// TestTransientRetriesExhausted tests that persistent failures surface as a
// transient failure after the attempt budget
func TestTransientRetriesExhausted(t *testing.T) {
	quoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		MinHopLiquidityUSD: 50000,
	}}
	signer := &flakySigner{failures: 99}
	e := New(fastConfig(false), quoter, signer, instantConfirm{}, testRisk(), zerolog.Nop())

	result := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if result.Success {
		t.Fatal("expected failure after retries exhausted")
	}
	if result.ErrorKind != ErrKindTransient {
		t.Errorf("expected transient kind, got %s", result.ErrorKind)
	}
	if signer.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", signer.calls)
	}
}

// TestExecutionBracketing tests that every outcome is reported to the risk
// manager exactly once
func TestExecutionBracketing(t *testing.T) {
	riskMgr := testRisk()
	quoter := &scriptedQuoter{err: errors.New("quote backend down")}
	e := New(fastConfig(false), quoter, &flakySigner{}, instantConfirm{}, riskMgr, zerolog.Nop())

	e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)

	if n := riskMgr.PendingExecutions(); n != 0 {
		t.Errorf("execution bracket must be closed after the swap, %d still pending", n)
	}
}

// TestExitSwapBypassesPositionGate tests that a sell is never blocked by the
// position cap that its own close would relieve
func TestExitSwapBypassesPositionGate(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxOpenPositions = 1
	riskMgr := risk.NewManager(cfg, 10000, zerolog.Nop())
	riskMgr.IncrementActivePositions(100) // cap saturated

	quoter := NewDryRunQuoter(func(string) float64 { return 0.002 })
	e := New(fastConfig(true), quoter, nil, nil, riskMgr, zerolog.Nop())

	entry := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if entry.ErrorKind != ErrKindRiskRejected {
		t.Fatalf("entry at the cap should be risk rejected, got %+v", entry)
	}

	exit := e.ExecuteSwap(context.Background(), SideExit, memeMint, solMint, 100, 50)
	if !exit.Success {
		t.Fatalf("exit swap must not be gated at the position cap: %s", exit.Error)
	}
}

// TestConcurrentEntriesRespectPositionCap tests that racing entry swaps
// cannot overshoot max_open_positions
func TestConcurrentEntriesRespectPositionCap(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxOpenPositions = 1
	cfg.MaxPositionSizeUSD = 1000
	cfg.MaxPortfolioExposure = 5000
	riskMgr := risk.NewManager(cfg, 10000, zerolog.Nop())

	quoter := NewDryRunQuoter(func(string) float64 { return 0.002 })
	e := New(fastConfig(true), quoter, nil, nil, riskMgr, zerolog.Nop())

	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mint := fmt.Sprintf("MintRace%d", n)
			if e.ExecuteSwap(context.Background(), SideEntry, solMint, mint, 100, 50).Success {
				atomic.AddInt64(&successes, 1)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly 1 entry through a cap of 1, got %d", successes)
	}
	if n := riskMgr.Metrics()["active_positions"].(int); n != 1 {
		t.Errorf("expected 1 reserved position, got %d", n)
	}
}

// TestFailedEntryReleasesReservation tests that the position slot claimed in
// preflight is released when the swap does not go through
func TestFailedEntryReleasesReservation(t *testing.T) {
	riskMgr := testRisk()

	// Price impact rejection after the reservation.
	impactQuoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		PriceImpactPct:     8.5,
		MinHopLiquidityUSD: 50000,
	}}
	e := New(fastConfig(false), impactQuoter, &flakySigner{}, instantConfirm{}, riskMgr, zerolog.Nop())
	if r := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50); r.ErrorKind != ErrKindPriceImpact {
		t.Fatalf("expected price impact rejection, got %+v", r)
	}
	if n := riskMgr.Metrics()["active_positions"].(int); n != 0 {
		t.Errorf("impact rejection must release the slot, %d still held", n)
	}

	// Submission retries exhausted.
	goodQuoter := &scriptedQuoter{quote: &Quote{
		OutAmount:          1000,
		Price:              0.1,
		MinHopLiquidityUSD: 50000,
	}}
	e = New(fastConfig(false), goodQuoter, &flakySigner{failures: 99}, instantConfirm{}, riskMgr, zerolog.Nop())
	if r := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50); r.Success {
		t.Fatal("expected submission failure")
	}
	if n := riskMgr.Metrics()["active_positions"].(int); n != 0 {
		t.Errorf("failed submission must release the slot, %d still held", n)
	}
}

// TestQuoteFetchRetried tests that a flaky quote backend is retried with the
// attempt budget instead of failing the swap outright
func TestQuoteFetchRetried(t *testing.T) {
	quoter := &scriptedQuoter{
		err:      errors.New("quote backend down"),
		failures: 2,
		quote: &Quote{
			OutAmount:          1000,
			Price:              0.1,
			MinHopLiquidityUSD: 50000,
		},
	}
	e := New(fastConfig(false), quoter, &flakySigner{}, instantConfirm{}, testRisk(), zerolog.Nop())

	result := e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if !result.Success {
		t.Fatalf("expected success after quote retries: %s", result.Error)
	}
	if quoter.calls != 3 {
		t.Errorf("expected 3 quote attempts, got %d", quoter.calls)
	}

	dead := &scriptedQuoter{err: errors.New("quote backend down")}
	e = New(fastConfig(false), dead, &flakySigner{}, instantConfirm{}, testRisk(), zerolog.Nop())
	result = e.ExecuteSwap(context.Background(), SideEntry, solMint, memeMint, 100, 50)
	if result.Success || result.ErrorKind != ErrKindTransient {
		t.Fatalf("expected transient failure, got %+v", result)
	}
	if dead.calls != 3 {
		t.Errorf("expected the full attempt budget against a dead backend, got %d calls", dead.calls)
	}
}
