// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"devcompliance/pkg/platform/httputil"
)

// Pinger is satisfied by every compliance store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves /healthz and /readyz.
type Handler struct {
	store   Pinger
	timeout time.Duration
	logger  *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
}

// New constructs a Handler. Readiness pings store within timeout.
func New(store Pinger, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Handler{store: store, timeout: timeout, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleLiveness)
	r.Get("/readyz", h.HandleReadiness)
}

// HandleLiveness reports the process is serving.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// HandleReadiness reports whether the store answers a ping.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}
