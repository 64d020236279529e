package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"ratepath/internal/config"
	"ratepath/internal/domain"
	"ratepath/internal/metrics"
)

// ErrRetriesExhausted marks a call that stayed transiently broken through the
// whole retry budget. Callers treat it as a network problem, not as a bad
// contract.
var ErrRetriesExhausted = errors.New("chain rpc retries exhausted")

// errRateLimited keeps 429 handling apart from the growing backoff: the node
// asked us to slow down, so we wait the base delay and try again.
var errRateLimited = errors.New("rate limited by node")

// StatusError is a non-200, non-429 HTTP response. Fatal for the call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected node status %d: %s", e.Code, e.Body)
}

// RPCError is an error member inside a JSON-RPC envelope. Fatal for the call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RawLog is one eth_getLogs entry with the fields the ingestor consumes. All
// numeric fields arrive hex-encoded.
type RawLog struct {
	Address     string   `json:"address"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Data        string   `json:"data"`
	Topics      []string `json:"topics"`
}

// Client issues read-only JSON-RPC calls against one node URL. Transient
// failures (transport errors, malformed envelopes, 429) are retried with a
// doubling backoff capped by the retry config; HTTP status and JSON-RPC errors
// surface immediately.
type Client struct {
	lg    logger.Logger
	url   string
	httpc *http.Client
	retry config.RetryConfig
}

func New(lg logger.Logger, cfg config.ChainConfig) *Client {
	return &Client{
		lg:    lg,
		url:   cfg.NodeURL,
		httpc: &http.Client{Timeout: cfg.RequestTimeout},
		retry: cfg.Retry,
	}
}

// Call runs one JSON-RPC method under the retry policy and decodes the result
// member into out.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	delay := c.retry.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err = c.doOnce(ctx, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isFatal(err) {
			return fmt.Errorf("%s: %w", method, err)
		}

		lastErr = err
		metrics.ChainRetries.Inc()

		if errors.Is(err, errRateLimited) {
			c.lg.Debugf("Rate limited on %s, attempt=%d/%d, wait=%s", method, attempt, c.retry.MaxAttempts, c.retry.BaseDelay)
			if err = sleep(ctx, c.retry.BaseDelay); err != nil {
				return err
			}
			continue
		}

		c.lg.Warnf("Transient failure on %s, attempt=%d/%d, error=%v", method, attempt, c.retry.MaxAttempts, err)
		if err = sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return fmt.Errorf("%s: %w, last error: %v", method, ErrRetriesExhausted, lastErr)
}

func (c *Client) doOnce(ctx context.Context, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errRateLimited
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
	}

	var rr rpcResponse
	if err = json.Unmarshal(body, &rr); err != nil {
		return fmt.Errorf("malformed rpc envelope: %v", err)
	}
	if rr.Error != nil {
		return rr.Error
	}
	if out != nil {
		if err = json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("malformed rpc result: %v", err)
		}
	}
	return nil
}

func isFatal(err error) bool {
	var se *StatusError
	var re *RPCError
	return errors.As(err, &se) || errors.As(err, &re)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

// EthCall performs a static contract read and returns the hex-encoded result.
func (c *Client) EthCall(ctx context.Context, to domain.Address, data string) (string, error) {
	var res string
	params := []any{map[string]string{"to": to.String(), "data": data}}
	if err := c.Call(ctx, "eth_call", params, &res); err != nil {
		return "", err
	}
	return res, nil
}

// PoolToken reads the token address stored in pool slot 0 or 1.
func (c *Client) PoolToken(ctx context.Context, pool domain.Address, slot int) (domain.Address, error) {
	var sel string
	switch slot {
	case 0:
		sel = selToken0
	case 1:
		sel = selToken1
	default:
		return "", fmt.Errorf("invalid pool token slot %d, must be 0 or 1", slot)
	}

	out, err := c.EthCall(ctx, pool, sel)
	if err != nil {
		return "", err
	}
	return DecodeAddressWord(out)
}

func (c *Client) TokenDecimals(ctx context.Context, token domain.Address) (uint8, error) {
	out, err := c.EthCall(ctx, token, selDecimals)
	if err != nil {
		return 0, err
	}
	return DecodeUint8(out)
}

func (c *Client) TokenSymbol(ctx context.Context, token domain.Address) (string, error) {
	out, err := c.EthCall(ctx, token, selSymbol)
	if err != nil {
		return "", err
	}
	return DecodeSymbol(out)
}

// SwapLogs fetches every Swap-topic log in the inclusive block range.
func (c *Client) SwapLogs(ctx context.Context, fromBlock, toBlock uint64) ([]RawLog, error) {
	params := []any{map[string]any{
		"fromBlock": hexBlock(fromBlock),
		"toBlock":   hexBlock(toBlock),
		"topics":    []string{SwapTopic},
	}}

	var logs []RawLog
	if err := c.Call(ctx, "eth_getLogs", params, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func hexBlock(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}
