package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/chain"
	"solana-sniper-bot/internal/risk"
)

// ErrorKind classifies a failed swap so callers can distinguish terminal
// validation rejections from retryable transport faults.
type ErrorKind string

const (
	ErrKindNone                  ErrorKind = ""
	ErrKindInsufficientLiquidity ErrorKind = "insufficient_liquidity"
	ErrKindPriceImpact           ErrorKind = "price_impact"
	ErrKindRiskRejected          ErrorKind = "risk_rejected"
	ErrKindTransient             ErrorKind = "transient"
)

// Side distinguishes entry swaps from exit swaps. Entries claim a
// risk-managed position slot before submission; exits reduce exposure and
// are never blocked by the position gates.
type Side string

const (
	SideEntry Side = "entry"
	SideExit  Side = "exit"
)

// SwapResult is the outcome of one ExecuteSwap call.
type SwapResult struct {
	Success   bool      `json:"success"`
	Signature string    `json:"signature,omitempty"`
	OutAmount float64   `json:"out_amount,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Config holds executor configuration
type Config struct {
	DryRun             bool          `json:"dry_run"`
	MaxAttempts        int           `json:"max_attempts"`
	RetryBackoff       time.Duration `json:"retry_backoff"` // multiplied by the attempt number
	MinCallSpacing     time.Duration `json:"min_call_spacing"`
	MinLiquidityPerHop float64       `json:"min_liquidity_per_hop"`
	MaxPriceImpactPct  float64       `json:"max_price_impact_pct"`
	ConfirmTimeout     time.Duration `json:"confirm_timeout"`
}

// DefaultConfig returns the executor defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        3,
		RetryBackoff:       500 * time.Millisecond,
		MinCallSpacing:     200 * time.Millisecond,
		MinLiquidityPerHop: 5000,
		MaxPriceImpactPct:  3.0,
		ConfirmTimeout:     30 * time.Second,
	}
}

// Executor performs swaps against the execution backend, or simulates them
// in dry-run mode. Every attempted trade is bracketed with the risk manager
// exactly once, success or failure.
type Executor struct {
	cfg    Config
	quoter Quoter
	signer chain.Signer
	conn   chain.ConnectionProvider
	risk   *risk.Manager
	logger zerolog.Logger

	spacingMu sync.Mutex
	lastCall  time.Time
}

// New creates an executor. In dry-run mode signer and conn may be nil; they
// are never touched.
func New(cfg Config, quoter Quoter, signer chain.Signer, conn chain.ConnectionProvider, riskMgr *risk.Manager, logger zerolog.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Executor{
		cfg:    cfg,
		quoter: quoter,
		signer: signer,
		conn:   conn,
		risk:   riskMgr,
		logger: logger.With().Str("component", "OrderExecutor").Logger(),
	}
}

// ExecuteSwap swaps amountUSD of inputMint into outputMint, enforcing
// liquidity, price-impact, and (for entries) risk limits before submission.
// Transient failures are retried with linearly increasing backoff;
// validation rejections are terminal. A successful entry leaves its position
// slot reserved with the risk manager; every failure path releases it.
func (e *Executor) ExecuteSwap(ctx context.Context, side Side, inputMint, outputMint string, amountUSD float64, maxSlippageBps int) SwapResult {
	execID := uuid.New().String()
	e.risk.StartTradeExecution(execID)

	result := e.executeSwap(ctx, side, inputMint, outputMint, amountUSD, maxSlippageBps)

	e.risk.CompleteTradeExecution(execID, result.Success, result.Error)
	return result
}

func (e *Executor) executeSwap(ctx context.Context, side Side, inputMint, outputMint string, amountUSD float64, maxSlippageBps int) SwapResult {
	quote, reserved, result := e.preflight(ctx, side, inputMint, outputMint, amountUSD, maxSlippageBps)
	if result != nil {
		return *result
	}
	release := func() {
		if reserved {
			e.risk.DecrementActivePositions(amountUSD)
		}
	}

	if e.cfg.DryRun {
		return SwapResult{
			Success:   true,
			Signature: dryRunSignature(inputMint, outputMint, amountUSD, maxSlippageBps),
			OutAmount: quote.OutAmount,
			Price:     quote.Price,
		}
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * e.cfg.RetryBackoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				release()
				return failure(ErrKindTransient, ctx.Err().Error())
			}
		}

		sig, err := e.submit(ctx, quote)
		if err == nil {
			return SwapResult{
				Success:   true,
				Signature: sig,
				OutAmount: quote.OutAmount,
				Price:     quote.Price,
			}
		}
		lastErr = err
		e.logger.Warn().
			Int("attempt", attempt).
			Str("output_mint", outputMint).
			Err(err).
			Msg("swap submission failed")
	}

	release()
	return failure(ErrKindTransient, fmt.Sprintf("swap failed after %d attempts: %v", e.cfg.MaxAttempts, lastErr))
}

// preflight fetches a quote and runs the terminal validation chain:
// liquidity per hop, risk reservation (entries only), then price impact.
// The returned flag reports whether a position slot is held.
func (e *Executor) preflight(ctx context.Context, side Side, inputMint, outputMint string, amountUSD float64, maxSlippageBps int) (*Quote, bool, *SwapResult) {
	e.waitSpacing()

	quote, err := e.fetchQuote(ctx, inputMint, outputMint, amountUSD, maxSlippageBps)
	if err != nil {
		r := failure(ErrKindTransient, err.Error())
		return nil, false, &r
	}

	if quote.MinHopLiquidityUSD < e.cfg.MinLiquidityPerHop {
		r := failure(ErrKindInsufficientLiquidity,
			fmt.Sprintf("route liquidity %.0f below minimum %.0f per hop", quote.MinHopLiquidityUSD, e.cfg.MinLiquidityPerHop))
		return nil, false, &r
	}

	reserved := false
	if side == SideEntry {
		ok, reason := e.risk.ReservePosition(amountUSD, outputMint, quote.Price)
		if !ok {
			r := failure(ErrKindRiskRejected, reason)
			return nil, false, &r
		}
		reserved = true
	}

	if quote.PriceImpactPct > e.cfg.MaxPriceImpactPct {
		if reserved {
			e.risk.DecrementActivePositions(amountUSD)
		}
		r := failure(ErrKindPriceImpact,
			fmt.Sprintf("price impact %.2f%% exceeds maximum %.2f%%", quote.PriceImpactPct, e.cfg.MaxPriceImpactPct))
		return nil, false, &r
	}

	return quote, reserved, nil
}

// fetchQuote retries the quote fetch with the same bounded backoff as
// submission; a dead quote backend is transient, not terminal.
func (e *Executor) fetchQuote(ctx context.Context, inputMint, outputMint string, amountUSD float64, maxSlippageBps int) (*Quote, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * e.cfg.RetryBackoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		quote, err := e.quoter.GetQuote(ctx, inputMint, outputMint, amountUSD, maxSlippageBps)
		if err == nil {
			return quote, nil
		}
		lastErr = err
		e.logger.Warn().
			Int("attempt", attempt).
			Str("output_mint", outputMint).
			Err(err).
			Msg("quote fetch failed")
	}
	return nil, fmt.Errorf("quote failed after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// submit signs, sends, and confirms the swap transaction.
func (e *Executor) submit(ctx context.Context, quote *Quote) (string, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	sig, err := e.signer.SignAndSendTransaction(confirmCtx, quote.Transaction, chain.SendOptions{MaxRetries: 0})
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if err := e.conn.ConfirmTransaction(confirmCtx, sig); err != nil {
		return "", fmt.Errorf("confirm %s: %w", sig, err)
	}
	return sig, nil
}

// waitSpacing enforces the minimum spacing between outbound backend calls.
func (e *Executor) waitSpacing() {
	if e.cfg.MinCallSpacing <= 0 {
		return
	}
	e.spacingMu.Lock()
	wait := e.cfg.MinCallSpacing - time.Since(e.lastCall)
	if wait > 0 {
		time.Sleep(wait)
	}
	e.lastCall = time.Now()
	e.spacingMu.Unlock()
}

func failure(kind ErrorKind, msg string) SwapResult {
	return SwapResult{Error: msg, ErrorKind: kind}
}
