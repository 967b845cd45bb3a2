package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/metrics"
)

// MetricsHandler exposes the in-process counters and latency percentiles.
type MetricsHandler struct {
	registry *metrics.Registry
	logger   *zap.Logger
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(registry *metrics.Registry, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the metrics route on the given mux.
func (h *MetricsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/metrics", h.Snapshot)
}

// Snapshot handles GET /api/metrics.
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.registry.Snapshot()); err != nil {
		h.logger.Error("Failed to encode metrics snapshot", zap.Error(err))
	}
}
