package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/approval"
)

// AgentHandler serves the agent-facing decision and polling endpoints.
type AgentHandler struct {
	service *approval.Service
	logger  *zap.Logger
}

// NewAgentHandler creates the agent handler.
func NewAgentHandler(service *approval.Service, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{service: service, logger: logger}
}

type agentRequestIn struct {
	Action   string                 `json:"action"`
	Target   string                 `json:"target"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Request handles POST /api/v1/agent/request.
func (h *AgentHandler) Request(w http.ResponseWriter, r *http.Request) {
	var in agentRequestIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if !lengthBetween(in.Action, 1, 200) || !lengthBetween(in.Target, 1, 500) {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}

	decision, err := h.service.Decide(r.Context(), in.Action, in.Target, in.Metadata)
	if err != nil {
		h.logger.Error("Decision failed",
			zap.String("action", in.Action),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// RequestStatus handles GET /api/v1/agent/request-status?request_id=...
func (h *AgentHandler) RequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	snapshot, err := h.service.Status(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
