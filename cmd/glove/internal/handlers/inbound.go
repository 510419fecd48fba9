package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/approval"
)

// InboundHandler accepts message-relay webhooks (e.g. an SMS provider's
// reply callback) carrying a "PIN <request_id> <pin>" body.
type InboundHandler struct {
	service *approval.Service
	logger  *zap.Logger
}

// NewInboundHandler creates the inbound handler.
func NewInboundHandler(service *approval.Service, logger *zap.Logger) *InboundHandler {
	return &InboundHandler{service: service, logger: logger}
}

// Reply handles POST /api/v1/inbound/reply?token=... with a form-encoded
// body field. Both "body" and "Body" are accepted; providers differ.
func (h *InboundHandler) Reply(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "missing_message_body")
		return
	}
	raw := r.PostFormValue("body")
	if raw == "" {
		raw = r.PostFormValue("Body")
	}
	if raw == "" {
		writeDetail(w, http.StatusBadRequest, "missing_message_body")
		return
	}

	result, err := h.service.ApproveFromMessage(r.Context(), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
