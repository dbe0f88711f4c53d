package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// WalletSigner signs serialized transactions with a local ed25519 keypair
// and submits them through a ConnectionProvider. The wallet is assumed to be
// the transaction's fee payer, so its signature occupies the first slot.
type WalletSigner struct {
	key  ed25519.PrivateKey
	conn ConnectionProvider
}

// NewWalletSigner creates a signer from a base64-encoded 64-byte ed25519
// secret key.
func NewWalletSigner(encodedKey string, conn ConnectionProvider) (*WalletSigner, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode wallet key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return &WalletSigner{key: ed25519.PrivateKey(raw), conn: conn}, nil
}

// SignAndSendTransaction fills the fee payer signature slot and submits the
// transaction.
func (s *WalletSigner) SignAndSendTransaction(ctx context.Context, tx []byte, _ SendOptions) (string, error) {
	signed, err := s.sign(tx)
	if err != nil {
		return "", err
	}
	return s.conn.SendTransaction(ctx, signed)
}

// sign writes the wallet's signature into the first signature slot of a
// serialized transaction. The signature section is a compact-u16 count
// followed by 64-byte signatures; the message is everything after it.
func (s *WalletSigner) sign(tx []byte) ([]byte, error) {
	if len(tx) < 1 {
		return nil, fmt.Errorf("empty transaction")
	}
	numSigs := int(tx[0])
	if numSigs == 0 || numSigs > 127 {
		return nil, fmt.Errorf("unsupported signature count %d", numSigs)
	}
	msgStart := 1 + numSigs*64
	if len(tx) <= msgStart {
		return nil, fmt.Errorf("transaction truncated: %d bytes, message starts at %d", len(tx), msgStart)
	}

	signed := make([]byte, len(tx))
	copy(signed, tx)
	sig := ed25519.Sign(s.key, tx[msgStart:])
	copy(signed[1:1+64], sig)
	return signed, nil
}
