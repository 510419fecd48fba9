// Package approval implements the agent-facing decision flow and the human
// approval lifecycle around pending requests.
package approval

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vrtxceo/glove/internal/canonical"
	"github.com/vrtxceo/glove/internal/config"
	"github.com/vrtxceo/glove/internal/notify"
	"github.com/vrtxceo/glove/internal/policy"
	"github.com/vrtxceo/glove/internal/security"
	"github.com/vrtxceo/glove/internal/store"
)

// Decision is the agent-visible outcome of one request.
type Decision struct {
	Decision  string `json:"decision"`
	Reason    string `json:"reason"`
	PolicyID  string `json:"policy_id"`
	Risk      string `json:"risk"`
	RequestID string `json:"request_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	UIURL     string `json:"ui_url,omitempty"`
}

// ApprovalResult is returned on a successful PIN approval.
type ApprovalResult struct {
	Status        string `json:"status"`
	ApprovalToken string `json:"approval_token"`
	RequestID     string `json:"request_id"`
}

// StatusSnapshot is the agent-facing view of one request's state.
type StatusSnapshot struct {
	RequestID  string  `json:"request_id"`
	Status     string  `json:"status"`
	Action     string  `json:"action"`
	Target     string  `json:"target"`
	ExpiresAt  string  `json:"expires_at"`
	ApprovedAt *string `json:"approved_at"`
}

// Service wires the policy engine, store, and notifier into the request
// lifecycle.
type Service struct {
	store    *store.Store
	policy   *policy.Engine
	notifier *notify.Notifier
	settings *config.Settings
	logger   *zap.Logger
}

// NewService builds the lifecycle service.
func NewService(st *store.Store, pe *policy.Engine, nt *notify.Notifier, settings *config.Settings, logger *zap.Logger) *Service {
	return &Service{store: st, policy: pe, notifier: nt, settings: settings, logger: logger}
}

// Decide runs keyword triage then the policy engine over one agent request.
// A require_pin outcome persists a pending record and notifies the human;
// notification failures never fail the decision.
func (s *Service) Decide(ctx context.Context, action, target string, metadata map[string]interface{}) (*Decision, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	var decision policy.Decision
	if kw := s.matchRiskKeyword(action, target, metadata); kw != "" {
		decision = policy.Decision{
			Decision: policy.DecisionRequirePIN,
			Risk:     policy.RiskHigh,
			Reason:   fmt.Sprintf("Risk keyword matched: '%s'", kw),
			PolicyID: "policy-risk-keyword",
		}
	} else {
		decision = s.policy.Evaluate(action, target, metadata)
	}

	details := map[string]interface{}{"reason": decision.Reason, "policy_id": decision.PolicyID}

	switch decision.Decision {
	case policy.DecisionDeny, policy.DecisionAllow:
		if err := s.store.AppendAudit("agent_request", decision.Decision, details, "", action, target); err != nil {
			return nil, err
		}
		return &Decision{
			Decision: decision.Decision,
			Reason:   decision.Reason,
			PolicyID: decision.PolicyID,
			Risk:     decision.Risk,
		}, nil
	}

	requestID := security.NewRequestID()
	expiresAt := time.Now().UTC().
		Add(time.Duration(s.settings.RequestTTLSeconds) * time.Second).
		Format(store.TimeLayout)

	if err := s.store.CreateRequest(requestID, action, target, metadata,
		decision.Risk, decision.Reason, decision.PolicyID, expiresAt); err != nil {
		return nil, err
	}
	if err := s.store.AppendAudit("agent_request", policy.DecisionRequirePIN, details, requestID, action, target); err != nil {
		return nil, err
	}

	uiURL := s.approvalUIURL(requestID, metadata)
	s.notifyPending(ctx, requestID, action, target, uiURL)

	return &Decision{
		Decision:  policy.DecisionRequirePIN,
		Reason:    decision.Reason,
		PolicyID:  decision.PolicyID,
		Risk:      decision.Risk,
		RequestID: requestID,
		ExpiresAt: expiresAt,
		UIURL:     uiURL,
	}, nil
}

// matchRiskKeyword scans the lowercased action/target/metadata haystack for
// the first configured keyword. Empty string means no match.
func (s *Service) matchRiskKeyword(action, target string, metadata map[string]interface{}) string {
	keywords := s.RiskKeywords()
	if len(keywords) == 0 {
		return ""
	}
	metadataJSON, err := canonical.String(metadata)
	if err != nil {
		s.logger.Error("Metadata canonicalization failed", zap.Error(err))
		metadataJSON = "{}"
	}
	haystack := strings.ToLower(action + "\n" + target + "\n" + metadataJSON)
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return kw
		}
	}
	return ""
}

// notifyPending fans the approval prompt out to the configured providers.
// Failures are swallowed into a notify/failed audit entry: the agent response
// must not block or break on notification problems.
func (s *Service) notifyPending(ctx context.Context, requestID, action, target, uiURL string) {
	message := fmt.Sprintf(
		"Glove approval needed.\nRequest: %s\nAction: %s\nTarget: %s\nApprove in Glove UI: %s\n",
		requestID, action, target, uiURL)

	err := s.notifier.Send(ctx, "Glove PIN Required", message,
		map[string]string{"request_id": requestID},
		&notify.Options{ClawhubExtensions: s.EnabledExtensions()})
	if err != nil {
		s.logger.Warn("Notification failed", zap.String("request_id", requestID), zap.Error(err))
		if auditErr := s.store.AppendAudit("notify", "failed",
			map[string]interface{}{"error": err.Error()}, requestID, action, target); auditErr != nil {
			s.logger.Error("Audit write failed", zap.Error(auditErr))
		}
	}
}

// Approve verifies the PIN for a pending request and settles it.
func (s *Service) Approve(ctx context.Context, requestID, pin string) (*ApprovalResult, error) {
	req, err := s.store.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, notFound("request_not_found")
	}
	if req.Status != store.StatusPending {
		return nil, conflict("request_" + req.Status)
	}
	if req.Expired(time.Now().UTC()) {
		if err := s.store.SetRequestStatus(requestID, store.StatusExpired); err != nil {
			return nil, err
		}
		if err := s.store.AppendAudit("approve_pin", "expired",
			map[string]interface{}{"reason": "request_expired"}, requestID, "", ""); err != nil {
			return nil, err
		}
		return nil, conflict("request_expired")
	}

	saltB64, haveSalt := s.store.GetSetting("pin_salt")
	digestB64, haveDigest := s.store.GetSetting("pin_hash")
	if !haveSalt || !haveDigest {
		return nil, conflict("pin_not_configured")
	}
	iterations := security.PBKDF2Iterations
	if raw, ok := s.store.GetSetting("pin_iterations"); ok {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			iterations = parsed
		}
	}

	if !security.VerifyPIN(pin, saltB64, digestB64, iterations) {
		attempts, err := s.store.IncrementAttempts(requestID)
		if err != nil {
			return nil, err
		}
		outcome := "failed"
		if attempts >= s.settings.MaxPINAttempts {
			if err := s.store.SetRequestStatus(requestID, store.StatusDenied); err != nil {
				return nil, err
			}
			outcome = "locked"
		}
		recordPINAttempt(outcome)
		if err := s.store.AppendAudit("approve_pin", outcome,
			map[string]interface{}{"attempts": attempts, "max_attempts": s.settings.MaxPINAttempts},
			requestID, req.Action, req.Target); err != nil {
			return nil, err
		}
		return nil, unauthorized("invalid_pin")
	}

	if err := s.store.SetRequestStatus(requestID, store.StatusApproved); err != nil {
		return nil, err
	}
	approvalToken := security.NewApprovalToken()
	recordPINAttempt("approved")
	if err := s.store.AppendAudit("approve_pin", "approved",
		map[string]interface{}{"approval_token_tail": security.KeyTail(approvalToken)},
		requestID, req.Action, req.Target); err != nil {
		return nil, err
	}

	s.logger.Info("Request approved",
		zap.String("request_id", requestID),
		zap.String("action", req.Action),
	)
	return &ApprovalResult{Status: store.StatusApproved, ApprovalToken: approvalToken, RequestID: requestID}, nil
}

// Deny settles a pending request without a PIN (operator declined).
func (s *Service) Deny(ctx context.Context, requestID, reason string) error {
	if reason == "" {
		reason = "declined_by_user"
	}
	req, err := s.store.GetRequest(requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return notFound("request_not_found")
	}
	if req.Status != store.StatusPending {
		return conflict("request_" + req.Status)
	}
	if req.Expired(time.Now().UTC()) {
		if err := s.store.SetRequestStatus(requestID, store.StatusExpired); err != nil {
			return err
		}
		if err := s.store.AppendAudit("deny_request", "expired",
			map[string]interface{}{"reason": "request_expired"}, requestID, "", ""); err != nil {
			return err
		}
		return conflict("request_expired")
	}

	if err := s.store.SetRequestStatus(requestID, store.StatusDenied); err != nil {
		return err
	}
	if err := s.store.AppendAudit("deny_request", "denied",
		map[string]interface{}{"reason": reason}, requestID, req.Action, req.Target); err != nil {
		return err
	}
	s.logger.Info("Request denied",
		zap.String("request_id", requestID),
		zap.String("reason", reason),
	)
	return nil
}

// ApproveFromMessage parses a "PIN <request_id> <pin>" reply body and
// delegates to Approve.
func (s *Service) ApproveFromMessage(ctx context.Context, body string) (*ApprovalResult, error) {
	parts := strings.Fields(strings.TrimSpace(body))
	if len(parts) != 3 || !strings.EqualFold(parts[0], "PIN") {
		return nil, badRequest("invalid_format")
	}
	return s.Approve(ctx, parts[1], parts[2])
}

// Status returns the current request snapshot, lazily expiring a pending
// record whose deadline has passed.
func (s *Service) Status(ctx context.Context, requestID string) (*StatusSnapshot, error) {
	req, err := s.store.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, notFound("request_not_found")
	}

	status := req.Status
	if status == store.StatusPending && req.Expired(time.Now().UTC()) {
		if err := s.store.SetRequestStatus(requestID, store.StatusExpired); err != nil {
			return nil, err
		}
		status = store.StatusExpired
	}

	return &StatusSnapshot{
		RequestID:  requestID,
		Status:     status,
		Action:     req.Action,
		Target:     req.Target,
		ExpiresAt:  req.ExpiresAt,
		ApprovedAt: req.ApprovedAt,
	}, nil
}

// EnabledExtensions resolves the enabled clawhub extension ids: the setting
// when present, else the environment default.
func (s *Service) EnabledExtensions() []string {
	raw, ok := s.store.GetSetting("clawhub_enabled_extensions")
	if !ok || raw == "" {
		raw = s.settings.ClawhubExtensions
	}
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// SetEnabledExtensions persists the enabled id list, filtered to installed.
func (s *Service) SetEnabledExtensions(ids []string) ([]string, error) {
	installed := map[string]struct{}{}
	for _, id := range s.notifier.DiscoverExtensions() {
		installed[id] = struct{}{}
	}
	enabled := []string{}
	for _, id := range ids {
		if _, ok := installed[id]; ok {
			enabled = append(enabled, id)
		}
	}
	if err := s.store.SetSetting("clawhub_enabled_extensions", strings.Join(enabled, ",")); err != nil {
		return nil, err
	}
	return enabled, nil
}

// approvalUIURL builds the deep link the human opens to approve. The agent
// may steer it through metadata ui_base_url, restricted to http(s) with a
// host; anything else falls back to the configured public URL.
func (s *Service) approvalUIURL(requestID string, metadata map[string]interface{}) string {
	base := strings.TrimRight(s.settings.PublicURL, "/")
	if raw, ok := metadata["ui_base_url"].(string); ok {
		raw = strings.TrimSpace(raw)
		if raw != "" {
			if parsed, err := url.Parse(raw); err == nil &&
				(parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != "" {
				base = strings.TrimRight(raw, "/")
			}
		}
	}
	return base + "/?request_id=" + requestID
}

// PINConfigured reports whether a PIN has been set up.
func (s *Service) PINConfigured() bool {
	_, haveSalt := s.store.GetSetting("pin_salt")
	_, haveDigest := s.store.GetSetting("pin_hash")
	return haveSalt && haveDigest
}

// SetupPIN hashes and stores a new PIN, replacing any existing one. The
// admin key is the capability; no old-PIN proof is required.
func (s *Service) SetupPIN(pin string) error {
	saltB64, digestB64, iterations, err := security.HashPIN(pin)
	if err != nil {
		return err
	}
	if err := s.store.SetSetting("pin_salt", saltB64); err != nil {
		return err
	}
	if err := s.store.SetSetting("pin_hash", digestB64); err != nil {
		return err
	}
	if err := s.store.SetSetting("pin_iterations", strconv.Itoa(iterations)); err != nil {
		return err
	}
	return s.store.AppendAudit("pin_setup", "success",
		map[string]interface{}{"source": "admin"}, "", "", "")
}
