package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracing tags every request with an id and logs it at debug.
type Tracing struct {
	logger *zap.Logger
}

// NewTracing creates the tracing middleware.
func NewTracing(logger *zap.Logger) *Tracing {
	return &Tracing{logger: logger}
}

// Middleware returns the HTTP middleware function.
func (t *Tracing) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		t.logger.Debug("Request received",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}
