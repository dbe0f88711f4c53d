package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

type captureConn struct {
	sent []byte
}

func (c *captureConn) GetAccountInfo(context.Context, string) (*AccountInfo, error) {
	return nil, nil
}

func (c *captureConn) GetSignaturesForAddress(context.Context, string, SignatureOptions) ([]SignatureInfo, error) {
	return nil, nil
}

func (c *captureConn) SendTransaction(_ context.Context, tx []byte) (string, error) {
	c.sent = tx
	return "sig1", nil
}

func (c *captureConn) ConfirmTransaction(context.Context, string) error { return nil }

func testKeypair(t *testing.T) (ed25519.PublicKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return pub, base64.StdEncoding.EncodeToString(priv)
}

// buildTx assembles a minimal serialized transaction: one empty signature
// slot followed by a message.
func buildTx(message []byte) []byte {
	tx := make([]byte, 1+64+len(message))
	tx[0] = 1
	copy(tx[1+64:], message)
	return tx
}

func TestSignFillsFeePayerSlot(t *testing.T) {
	pub, encoded := testKeypair(t)
	conn := &captureConn{}
	signer, err := NewWalletSigner(encoded, conn)
	if err != nil {
		t.Fatalf("NewWalletSigner failed: %v", err)
	}

	message := []byte("swap instruction bytes")
	sig, err := signer.SignAndSendTransaction(context.Background(), buildTx(message), SendOptions{})
	if err != nil {
		t.Fatalf("SignAndSendTransaction failed: %v", err)
	}
	if sig != "sig1" {
		t.Errorf("unexpected signature %q", sig)
	}

	if !ed25519.Verify(pub, message, conn.sent[1:1+64]) {
		t.Error("fee payer signature does not verify against the message")
	}
}

func TestNewWalletSignerRejectsBadKeys(t *testing.T) {
	if _, err := NewWalletSigner("%%%", nil); err == nil {
		t.Error("expected error for invalid base64")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if _, err := NewWalletSigner(short, nil); err == nil {
		t.Error("expected error for wrong key length")
	}
}

func TestSignRejectsMalformedTransactions(t *testing.T) {
	_, encoded := testKeypair(t)
	signer, err := NewWalletSigner(encoded, &captureConn{})
	if err != nil {
		t.Fatalf("NewWalletSigner failed: %v", err)
	}

	if _, err := signer.sign(nil); err == nil {
		t.Error("expected error for empty transaction")
	}
	if _, err := signer.sign([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated transaction")
	}
	if _, err := signer.sign([]byte{0}); err == nil {
		t.Error("expected error for zero signature slots")
	}
}
