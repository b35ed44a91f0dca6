package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, health HealthChecker) http.Handler {
	t.Helper()
	if health == nil {
		health = func(ctx context.Context) map[string]error {
			return map[string]error{}
		}
	}

	analysisHandler := newTestAnalysisHandler(&stubGateway{available: false})
	_, source := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})

	eventHandler := NewEventHandler(source, nil, zap.NewNop())
	return NewRouter(analysisHandler, eventHandler, health, []string{"*"}, zap.NewNop())
}

func TestHealthEndpointHealthy(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context) map[string]error {
		return map[string]error{"redis": nil}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestHealthEndpointDegraded(t *testing.T) {
	router := newTestRouter(t, func(ctx context.Context) map[string]error {
		return map[string]error{
			"redis": errors.New("connection refused"),
			"kafka": nil,
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestRouterNotFound(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint not found")
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/ai/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterWiresStatusRoute(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ai/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}
