// Package handlers exposes the engine's HTTP surface.
package handlers

import (
	"net/http"
	"os"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// RuleCounter reports how many compiled rules the engine holds; readiness
// requires at least one.
type RuleCounter interface {
	RuleCount() int
}

// HealthHandler handles liveness, readiness, and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	rules  RuleCounter
	ready  atomic.Bool
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. SetReady must be called once
// warmup completes or readiness stays false.
func NewHealthHandler(cfg *config.Config, rules RuleCounter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, rules: rules, logger: logger}
}

// SetReady marks warmup complete (or revoked, during shutdown).
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests: process liveness only.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /ready requests. Ready means warmup completed and at
// least one rule compiled, so traffic can be admitted.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "not_ready", "warmup has not completed")
		return
	}
	if h.rules.RuleCount() == 0 {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "not_ready", "no rules compiled")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Ping handles GET /ping requests with service details.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "question-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
