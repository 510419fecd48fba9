package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/approval"
	"github.com/vrtxceo/glove/internal/store"
)

// AdminHandler serves the operator surface: bootstrap, PIN setup, pending
// requests, audit, keyword config, and the approval/denial endpoints.
type AdminHandler struct {
	service *approval.Service
	store   *store.Store
	logger  *zap.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(service *approval.Service, st *store.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{service: service, store: st, logger: logger}
}

// Bootstrap handles GET /api/v1/admin/bootstrap.
func (h *AdminHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"pin_configured": h.service.PINConfigured()})
}

type setupPINIn struct {
	PIN string `json:"pin"`
}

// SetupPIN handles POST /api/v1/admin/setup-pin. Overwrites any prior PIN.
func (h *AdminHandler) SetupPIN(w http.ResponseWriter, r *http.Request) {
	var in setupPINIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if !lengthBetween(in.PIN, 4, 32) {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.service.SetupPIN(in.PIN); err != nil {
		h.logger.Error("PIN setup failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListPending handles GET /api/v1/admin/requests/pending.
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListPendingRequests()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// RecentAudit handles GET /api/v1/admin/audit/recent. Optional ?limit=,
// default 100, clamped by the store to [1, 500].
func (h *AdminHandler) RecentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	items, err := h.store.RecentAudit(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// RiskKeywords handles GET /api/v1/admin/risk-keywords.
func (h *AdminHandler) RiskKeywords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"keywords": h.service.RiskKeywords()})
}

type riskKeywordsIn struct {
	Keywords []string `json:"keywords"`
}

// SetRiskKeywords handles POST /api/v1/admin/risk-keywords/config.
func (h *AdminHandler) SetRiskKeywords(w http.ResponseWriter, r *http.Request) {
	var in riskKeywordsIn
	if !decodeJSON(w, r, &in) {
		return
	}
	keywords, err := h.service.SetRiskKeywords(in.Keywords)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.AppendAudit("risk_keywords_config", "success",
		map[string]interface{}{"count": len(keywords), "keywords": keywords}, "", "", ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "keywords": keywords})
}

type approvePINIn struct {
	RequestID string `json:"request_id"`
	PIN       string `json:"pin"`
}

// ApprovePIN handles POST /api/v1/admin/approve-pin.
func (h *AdminHandler) ApprovePIN(w http.ResponseWriter, r *http.Request) {
	var in approvePINIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.RequestID == "" || !lengthBetween(in.PIN, 4, 32) {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := h.service.Approve(r.Context(), in.RequestID, in.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type denyRequestIn struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// DenyRequest handles POST /api/v1/admin/deny-request: the operator declines
// a pending request without entering a PIN.
func (h *AdminHandler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	var in denyRequestIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.RequestID == "" || len(in.Reason) > 200 {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.service.Deny(r.Context(), in.RequestID, in.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "denied", "request_id": in.RequestID})
}

type messageReplyIn struct {
	Body string `json:"body"`
}

// MessageReply handles POST /api/v1/admin/message-reply with a
// "PIN <request_id> <pin>" body.
func (h *AdminHandler) MessageReply(w http.ResponseWriter, r *http.Request) {
	var in messageReplyIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if !lengthBetween(in.Body, 1, 300) {
		writeDetail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := h.service.ApproveFromMessage(r.Context(), in.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
