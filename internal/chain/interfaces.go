package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AccountInfo is the subset of on-chain account state the bot reads.
type AccountInfo struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
	Data     []byte `json:"data"`
}

// SignatureInfo describes one historical transaction touching an address.
type SignatureInfo struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
	Err       bool      `json:"err"`
}

// SignatureOptions bounds a signature history query.
type SignatureOptions struct {
	Limit int
}

// ConnectionProvider is the RPC surface the core needs. Implementations may
// rotate or fail over endpoints underneath; callers must tolerate a call
// being transparently retried against a different endpoint.
type ConnectionProvider interface {
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)
	GetSignaturesForAddress(ctx context.Context, address string, opts SignatureOptions) ([]SignatureInfo, error)
	SendTransaction(ctx context.Context, tx []byte) (string, error)
	ConfirmTransaction(ctx context.Context, signature string) error
}

// SendOptions configures transaction submission.
type SendOptions struct {
	SkipPreflight bool
	MaxRetries    int
}

// Signer signs and submits a transaction, returning its signature. Key
// management lives behind this interface.
type Signer interface {
	SignAndSendTransaction(ctx context.Context, tx []byte, opts SendOptions) (string, error)
}

// MockSigner returns a deterministic placeholder signature derived from the
// transaction bytes. Used for dry runs and tests; it never touches the
// network.
type MockSigner struct{}

// SignAndSendTransaction hashes the transaction into a stable fake
// signature.
func (MockSigner) SignAndSendTransaction(_ context.Context, tx []byte, _ SendOptions) (string, error) {
	sum := sha256.Sum256(tx)
	return "mock1" + hex.EncodeToString(sum[:16]), nil
}
