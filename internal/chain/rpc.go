package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// RPCClient talks to Solana JSON-RPC nodes. Multiple endpoints rotate
// round-robin; a failed call advances to the next endpoint before surfacing
// the error.
type RPCClient struct {
	endpoints []string
	next      atomic.Uint64
	client    *http.Client
	logger    zerolog.Logger

	mu  sync.Mutex
	seq uint64
}

// NewRPCClient creates a client over one or more RPC endpoints.
func NewRPCClient(endpoints []string, logger zerolog.Logger) (*RPCClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint required")
	}
	return &RPCClient{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger.With().Str("component", "RPCClient").Logger(),
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call issues one JSON-RPC request, rotating endpoints on transport errors.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	c.mu.Lock()
	c.seq++
	id := c.seq
	c.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < len(c.endpoints); attempt++ {
		endpoint := c.endpoints[c.next.Add(1)%uint64(len(c.endpoints))]

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("rpc endpoint failed, rotating")
			continue
		}

		var rpcResp rpcResponse
		err = json.NewDecoder(resp.Body).Decode(&rpcResp)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if rpcResp.Error != nil {
			return fmt.Errorf("rpc %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
		}
		if out != nil {
			if err := json.Unmarshal(rpcResp.Result, out); err != nil {
				return fmt.Errorf("decode rpc result: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("all rpc endpoints failed: %w", lastErr)
}

// GetAccountInfo fetches an account's lamports, owner, and data.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var result struct {
		Value *struct {
			Lamports uint64   `json:"lamports"`
			Owner    string   `json:"owner"`
			Data     []string `json:"data"` // [base64 blob, encoding]
		} `json:"value"`
	}
	params := []interface{}{address, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("account %s not found", address)
	}

	info := &AccountInfo{
		Address:  address,
		Lamports: result.Value.Lamports,
		Owner:    result.Value.Owner,
	}
	if len(result.Value.Data) > 0 {
		if decoded, err := base64.StdEncoding.DecodeString(result.Value.Data[0]); err == nil {
			info.Data = decoded
		}
	}
	return info, nil
}

// GetSignaturesForAddress lists recent transactions touching an address,
// newest first.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, opts SignatureOptions) ([]SignatureInfo, error) {
	cfg := map[string]interface{}{}
	if opts.Limit > 0 {
		cfg["limit"] = opts.Limit
	}

	var result []struct {
		Signature string          `json:"signature"`
		Slot      uint64          `json:"slot"`
		BlockTime *int64          `json:"blockTime"`
		Err       json.RawMessage `json:"err"`
	}
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, cfg}, &result); err != nil {
		return nil, err
	}

	infos := make([]SignatureInfo, 0, len(result))
	for _, r := range result {
		info := SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			Err:       string(r.Err) != "null" && len(r.Err) > 0,
		}
		if r.BlockTime != nil {
			info.BlockTime = time.Unix(*r.BlockTime, 0)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *RPCClient) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	var signature string
	params := []interface{}{
		base64.StdEncoding.EncodeToString(tx),
		map[string]interface{}{"encoding": "base64", "skipPreflight": false},
	}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// ConfirmTransaction polls signature status until the transaction is
// confirmed or the context expires.
func (c *RPCClient) ConfirmTransaction(ctx context.Context, signature string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		var result struct {
			Value []*struct {
				ConfirmationStatus string          `json:"confirmationStatus"`
				Err                json.RawMessage `json:"err"`
			} `json:"value"`
		}
		params := []interface{}{[]string{signature}}
		if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
			return err
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if string(status.Err) != "null" && len(status.Err) > 0 {
				return fmt.Errorf("transaction %s failed on chain", signature)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
