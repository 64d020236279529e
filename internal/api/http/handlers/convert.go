package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ratepath/internal/chain"
	"ratepath/internal/domain"
	"ratepath/internal/graph"
	"ratepath/internal/metadata"
	"ratepath/pkg/httputil"
)

// GET /tokens/{token0}/to/{token1}?block=N
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	token0 := chi.URLParam(r, "token0")
	token1 := chi.URLParam(r, "token1")

	if !domain.ValidAddress(token0) || !domain.ValidAddress(token1) {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "token address must be 0x-prefixed 20-byte hex", nil)
		return
	}

	block, err := strconv.ParseUint(r.URL.Query().Get("block"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "block query parameter must be a non-negative integer", nil)
		return
	}

	res, err := h.Converter.Convert(r.Context(), domain.Address(token0), domain.Address(token1), block)
	if err != nil {
		h.convertError(w, r, err)
		return
	}

	if err = httputil.OK(w, res); err != nil {
		h.Log.Errorf("Convert handler error: %s", err.Error())
	}
}

// Map engine errors to API statuses: client mistakes are 4xx, upstream chain
// trouble is 5xx.
func (h *Handler) convertError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		statusErr *chain.StatusError
		rpcErr    *chain.RPCError
	)

	switch {
	case errors.Is(err, graph.ErrTokenNotFound):
		h.writeError(w, r, http.StatusNotFound, "token_not_found", err.Error(), nil)
	case errors.Is(err, graph.ErrNoPath):
		h.writeError(w, r, http.StatusNotFound, "no_path", err.Error(), nil)
	case errors.Is(err, chain.ErrRetriesExhausted):
		h.writeError(w, r, http.StatusServiceUnavailable, "chain_unavailable", "chain node did not answer after retries", map[string]any{
			"error": err.Error(),
		})
	case errors.Is(err, metadata.ErrContractResolution):
		h.writeError(w, r, http.StatusBadGateway, "contract_resolution_failed", "token contract could not be resolved", map[string]any{
			"error": err.Error(),
		})
	case errors.As(err, &statusErr), errors.As(err, &rpcErr):
		h.writeError(w, r, http.StatusBadGateway, "chain_error", "chain node returned an error", map[string]any{
			"error": err.Error(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, r, http.StatusGatewayTimeout, "timeout", "conversion timed out", nil)
	default:
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "conversion failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details any) {
	if err := httputil.Error(w, r, status, code, msg, details); err != nil {
		h.Log.Errorf("Failed to write %s error response: %s", code, err.Error())
	}
}
