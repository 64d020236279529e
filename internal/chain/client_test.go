package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"ratepath/internal/config"
	"ratepath/internal/domain"
)

// --- helpers ---

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func newTestClient(url string) *Client {
	return New(newTestLogger(), config.ChainConfig{
		NodeURL:        url,
		RequestTimeout: 5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   5 * time.Millisecond,
			MaxDelay:    20 * time.Millisecond,
		},
	})
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, raw)
}

func decodeRequest(t *testing.T, r *http.Request) (method string, params []json.RawMessage) {
	t.Helper()

	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req.Method, req.Params
}

// --- tests ---

func TestClient_PoolToken(t *testing.T) {
	t.Parallel()

	const pool = "0x8ad599c3a0ff1de082011efddc58f1908eb6e6d8"
	const token = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, params := decodeRequest(t, r)
		if method != "eth_call" {
			t.Errorf("expected eth_call, got %s", method)
		}

		var callObj map[string]string
		if err := json.Unmarshal(params[0], &callObj); err != nil {
			t.Errorf("decode call object: %v", err)
		}
		if callObj["to"] != pool {
			t.Errorf("expected to=%s, got %s", pool, callObj["to"])
		}

		switch callObj["data"] {
		case selToken0, selToken1:
			writeResult(t, w, addressWord(token))
		default:
			t.Errorf("unexpected selector %s", callObj["data"])
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	for slot := 0; slot <= 1; slot++ {
		got, err := c.PoolToken(ctx, domain.Address(pool), slot)
		if err != nil {
			t.Fatalf("slot %d: unexpected error: %v", slot, err)
		}
		if got.String() != token {
			t.Fatalf("slot %d: expected %s, got %s", slot, token, got)
		}
	}

	if _, err := c.PoolToken(ctx, domain.Address(pool), 2); err == nil {
		t.Fatal("expected error for slot 2")
	}
}

func TestClient_TokenDecimalsAndSymbol(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, params := decodeRequest(t, r)
		var callObj map[string]string
		if err := json.Unmarshal(params[0], &callObj); err != nil {
			t.Errorf("decode call object: %v", err)
		}

		switch callObj["data"] {
		case selDecimals:
			writeResult(t, w, "0x"+fmt.Sprintf("%064x", 6))
		case selSymbol:
			writeResult(t, w, "0x"+
				fmt.Sprintf("%064x", 32)+
				fmt.Sprintf("%064x", 4)+
				"5553444300000000000000000000000000000000000000000000000000000000")
		default:
			t.Errorf("unexpected selector %s", callObj["data"])
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()
	token := domain.Address("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")

	decimals, err := c.TokenDecimals(ctx, token)
	if err != nil {
		t.Fatalf("decimals: unexpected error: %v", err)
	}
	if decimals != 6 {
		t.Fatalf("expected 6 decimals, got %d", decimals)
	}

	symbol, err := c.TokenSymbol(ctx, token)
	if err != nil {
		t.Fatalf("symbol: unexpected error: %v", err)
	}
	if symbol != "USDC" {
		t.Fatalf("expected USDC, got %q", symbol)
	}
}

func TestClient_SwapLogs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, params := decodeRequest(t, r)
		if method != "eth_getLogs" {
			t.Errorf("expected eth_getLogs, got %s", method)
		}

		var filter struct {
			FromBlock string   `json:"fromBlock"`
			ToBlock   string   `json:"toBlock"`
			Topics    []string `json:"topics"`
		}
		if err := json.Unmarshal(params[0], &filter); err != nil {
			t.Errorf("decode filter: %v", err)
		}
		if filter.FromBlock != "0x64" || filter.ToBlock != "0xc8" {
			t.Errorf("unexpected block range %s..%s", filter.FromBlock, filter.ToBlock)
		}
		if len(filter.Topics) != 1 || filter.Topics[0] != SwapTopic {
			t.Errorf("unexpected topics %v", filter.Topics)
		}

		writeResult(t, w, []RawLog{{
			Address:     "0xPool",
			BlockNumber: "0x65",
			TxHash:      "0xabc",
			LogIndex:    "0x2",
			Data:        "0xdata",
			Topics:      []string{SwapTopic},
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	logs, err := c.SwapLogs(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].BlockNumber != "0x65" || logs[0].LogIndex != "0x2" {
		t.Fatalf("unexpected log %+v", logs[0])
	}
}

func TestClient_RateLimitThenSuccess(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeResult(t, w, "0x"+fmt.Sprintf("%064x", 18))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	decimals, err := c.TokenDecimals(context.Background(), "0xtoken")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decimals != 18 {
		t.Fatalf("expected 18, got %d", decimals)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests (429 then 200), got %d", got)
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, "not json at all")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.TokenDecimals(context.Background(), "0xtoken")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestClient_FatalStatus(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.TokenDecimals(context.Background(), "0xtoken")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusInternalServerError {
		t.Fatalf("expected code 500, got %d", se.Code)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("fatal status must not retry, got %d requests", got)
	}
}

func TestClient_RPCErrorFatal(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.TokenDecimals(context.Background(), "0xtoken")

	var re *RPCError
	if !errors.As(err, &re) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if re.Code != -32000 || !strings.Contains(re.Message, "reverted") {
		t.Fatalf("unexpected rpc error %+v", re)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("rpc error must not retry, got %d requests", got)
	}
}

func TestClient_ContextCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(newTestLogger(), config.ChainConfig{
		NodeURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 100,
			BaseDelay:   time.Hour,
			MaxDelay:    time.Hour,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.TokenDecimals(ctx, "0xtoken")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
