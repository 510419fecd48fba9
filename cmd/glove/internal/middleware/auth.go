// Package middleware holds the HTTP middleware chain: bearer-key auth,
// request tracing, and rate limiting.
package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/security"
)

// Auth guards routes with the process-scoped bearer secrets. Keys are
// compared in constant time.
type Auth struct {
	agentKey     string
	adminKey     string
	inboundToken string
	logger       *zap.Logger
}

// NewAuth creates the auth middleware.
func NewAuth(agentKey, adminKey, inboundToken string, logger *zap.Logger) *Auth {
	return &Auth{
		agentKey:     agentKey,
		adminKey:     adminKey,
		inboundToken: inboundToken,
		logger:       logger,
	}
}

// RequireAgent admits requests bearing the agent key.
func (a *Auth) RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Glove-Agent-Key")
		if key == "" || !security.ConstantTimeEquals(key, a.agentKey) {
			a.reject(w, r, "invalid_agent_key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits requests bearing the admin key.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Glove-Admin-Key")
		if key == "" || !security.ConstantTimeEquals(key, a.adminKey) {
			a.reject(w, r, "invalid_admin_key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireInboundToken admits inbound-relay webhooks carrying the configured
// token as a URL query parameter. An unset token rejects everything.
func (a *Auth) RequireInboundToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if a.inboundToken == "" || token == "" || !security.ConstantTimeEquals(token, a.inboundToken) {
			a.reject(w, r, "invalid_inbound_token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, detail string) {
	a.logger.Debug("Request rejected",
		zap.String("path", r.URL.Path),
		zap.String("detail", detail),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"detail":"` + detail + `"}`))
}
