package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendvoice/question-engine/pkg/config"
)

type stubRuleCounter struct{ count int }

func (s stubRuleCounter) RuleCount() int { return s.count }

func newHealthMux(h *HealthHandler) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, stubRuleCounter{count: 1}, zap.NewNop())
	mux := newHealthMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyBeforeWarmup(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, stubRuleCounter{count: 1}, zap.NewNop())
	mux := newHealthMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyAfterWarmup(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, stubRuleCounter{count: 12}, zap.NewNop())
	h.SetReady(true)
	mux := newHealthMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyWithoutRules(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, stubRuleCounter{count: 0}, zap.NewNop())
	h.SetReady(true)
	mux := newHealthMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["error"])
}

func TestPing(t *testing.T) {
	cfg := &config.Config{Env: "test", Version: "1.2.3"}
	h := NewHealthHandler(cfg, stubRuleCounter{count: 1}, zap.NewNop())
	mux := newHealthMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "question-engine", resp.Service)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "test", resp.Environment)
}
