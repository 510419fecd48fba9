package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/approval"
	"github.com/vrtxceo/glove/internal/config"
	"github.com/vrtxceo/glove/internal/security"
)

// HealthHandler reports liveness and the key tails an operator pairs with
// the startup log line.
type HealthHandler struct {
	service  *approval.Service
	settings *config.Settings
	agentKey string
	adminKey string
	logger   *zap.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(service *approval.Service, settings *config.Settings, agentKey, adminKey string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		service:  service,
		settings: settings,
		agentKey: agentKey,
		adminKey: adminKey,
		logger:   logger,
	}
}

// Health handles GET /api/v1/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"pin_configured": h.service.PINConfigured(),
		"notifier":       h.settings.NotifierProvider,
		"agent_key_tail": security.KeyTail(h.agentKey),
		"admin_key_tail": security.KeyTail(h.adminKey),
	})
}
