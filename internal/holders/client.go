package holders

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Holder is one token holder aggregated by owner wallet. Amount is the
// raw token amount in base units; UIAmount is the human-scale figure
// (raw divided by mint decimals) used for display.
type Holder struct {
	Address  string
	Amount   float64
	UIAmount float64
}

// Client queries a Solana JSON-RPC endpoint for holder and transaction
// data. Public RPC endpoints rate-limit aggressively, so every call
// retries on 429 with exponential backoff and per-account lookups are
// paced requestGap apart.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	requestGap time.Duration
	log        zerolog.Logger
}

func NewClient(rpcURL string, logger zerolog.Logger) *Client {
	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
		requestGap: 100 * time.Millisecond,
		log:        logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
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

// ErrRateLimited is returned when the RPC keeps answering 429 after all
// retries.
var ErrRateLimited = fmt.Errorf("rpc rate limited")

func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "Too Many Requests") ||
		strings.Contains(s, "rate limit")
}

// call performs one JSON-RPC request with retry on rate limiting.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase * time.Duration(1<<(attempt-1))
			c.log.Debug().Str("method", method).Dur("backoff", backoff).
				Int("attempt", attempt).Msg("rpc rate limited, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.callOnce(ctx, method, params, result)
		if lastErr == nil {
			return nil
		}
		if !isRateLimit(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrRateLimited, method, lastErr)
}

func (c *Client) callOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rpc %s: 429 Too Many Requests", method)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s: %d %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, result)
}

type largestAccountsResult struct {
	Value []struct {
		Address  string  `json:"address"`
		Decimals int     `json:"decimals"`
		UIAmount float64 `json:"uiAmount"`
	} `json:"value"`
}

type accountInfoResult struct {
	Value *struct {
		Data []string `json:"data"` // [base64 payload, encoding]
	} `json:"value"`
}

// TopHolders returns up to limit holders of mint, aggregated by owner
// wallet and sorted by amount descending. Only the mint's largest token
// accounts (top 20 per RPC semantics) are considered; scanning all
// program accounts overwhelms public endpoints.
func (c *Client) TopHolders(ctx context.Context, mint string, limit int) ([]Holder, error) {
	var largest largestAccountsResult
	err := c.call(ctx, "getTokenLargestAccounts", []interface{}{mint}, &largest)
	if err != nil {
		return nil, fmt.Errorf("get largest accounts: %w", err)
	}

	byOwner := make(map[string]*Holder)
	for i, acct := range largest.Value {
		if acct.UIAmount <= 0 {
			continue
		}
		if i > 0 {
			select {
			case <-time.After(c.requestGap):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		owner, err := c.accountOwner(ctx, acct.Address)
		if err != nil {
			c.log.Warn().Str("account", acct.Address).Err(err).Msg("skipping account, owner lookup failed")
			continue
		}

		h, ok := byOwner[owner]
		if !ok {
			h = &Holder{Address: owner}
			byOwner[owner] = h
		}
		scale := 1.0
		for d := 0; d < acct.Decimals; d++ {
			scale *= 10
		}
		h.Amount += acct.UIAmount * scale
		h.UIAmount += acct.UIAmount
	}

	holders := make([]Holder, 0, len(byOwner))
	for _, h := range byOwner {
		holders = append(holders, *h)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Amount > holders[j].Amount })
	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

// accountOwner fetches a token account and extracts its owner pubkey.
// SPL token account layout: mint at bytes 0..32, owner at bytes 32..64.
func (c *Client) accountOwner(ctx context.Context, account string) (string, error) {
	var info accountInfoResult
	params := []interface{}{account, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &info); err != nil {
		return "", err
	}
	if info.Value == nil || len(info.Value.Data) == 0 {
		return "", fmt.Errorf("account %s not found", account)
	}

	raw, err := base64.StdEncoding.DecodeString(info.Value.Data[0])
	if err != nil {
		return "", fmt.Errorf("decode account data: %w", err)
	}
	if len(raw) < 64 {
		return "", fmt.Errorf("account data too short: %d bytes", len(raw))
	}
	return encodeBase58(raw[32:64]), nil
}

type transactionResult struct {
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// TransactionSigner returns the fee payer (first account key) of a
// transaction. Used to backfill the trader address on stored trades.
func (c *Client) TransactionSigner(ctx context.Context, signature string) (string, error) {
	var tx transactionResult
	params := []interface{}{
		signature,
		map[string]interface{}{"encoding": "json", "maxSupportedTransactionVersion": 0},
	}
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return "", err
	}
	if len(tx.Transaction.Message.AccountKeys) == 0 {
		return "", fmt.Errorf("transaction %s not found", signature)
	}
	return tx.Transaction.Message.AccountKeys[0], nil
}
