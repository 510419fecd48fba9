package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAgent(t *testing.T) {
	auth := NewAuth("agent-secret", "admin-secret", "", zaptest.NewLogger(t))
	handler := auth.RequireAgent(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/agent/request", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"detail":"invalid_agent_key"}`, w.Body.String())

	r = httptest.NewRequest(http.MethodPost, "/api/v1/agent/request", nil)
	r.Header.Set("X-Glove-Agent-Key", "wrong")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Admin key does not open the agent surface.
	r = httptest.NewRequest(http.MethodPost, "/api/v1/agent/request", nil)
	r.Header.Set("X-Glove-Agent-Key", "admin-secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/api/v1/agent/request", nil)
	r.Header.Set("X-Glove-Agent-Key", "agent-secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuth("agent-secret", "admin-secret", "", zaptest.NewLogger(t))
	handler := auth.RequireAdmin(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/bootstrap", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"detail":"invalid_admin_key"}`, w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/api/v1/admin/bootstrap", nil)
	r.Header.Set("X-Glove-Admin-Key", "admin-secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireInboundToken(t *testing.T) {
	auth := NewAuth("a", "b", "hook-token", zaptest.NewLogger(t))
	handler := auth.RequireInboundToken(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/inbound/reply", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"detail":"invalid_inbound_token"}`, w.Body.String())

	r = httptest.NewRequest(http.MethodPost, "/api/v1/inbound/reply?token=wrong", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/api/v1/inbound/reply?token=hook-token", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestInboundRejectsWhenUnconfigured(t *testing.T) {
	auth := NewAuth("a", "b", "", zaptest.NewLogger(t))
	handler := auth.RequireInboundToken(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/inbound/reply?token=anything", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, zaptest.NewLogger(t))
	handler := rl.Middleware(okHandler())

	codes := []int{}
	for i := 0; i < 4; i++ {
		r := httptest.NewRequest(http.MethodPost, "/x", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	require.Equal(t, http.StatusOK, codes[0])
	require.Equal(t, http.StatusOK, codes[1])
	require.Equal(t, http.StatusTooManyRequests, codes[2])

	// A different remote host has its own bucket.
	r := httptest.NewRequest(http.MethodPost, "/x", nil)
	r.RemoteAddr = "10.0.0.2:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}
