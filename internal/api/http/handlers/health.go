package handlers

import (
	"context"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"ratepath/internal/service"
	"ratepath/pkg/httputil"
)

type Handler struct {
	Log       logger.Logger
	Converter *service.ConverterService
}

func NewHandler(log logger.Logger, converter *service.ConverterService) *Handler {
	if converter == nil {
		panic("converter service cannot be nil")
	}

	return &Handler{Log: log, Converter: converter}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.OK(w, map[string]any{}); err != nil {
		h.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Check health external services/clients
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.Converter.CheckDependency(ctx); err != nil {
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			h.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.OK(w, map[string]string{"dependencies": "healthy"}); err != nil {
		h.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}
