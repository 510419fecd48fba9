// Package policy evaluates agent requests against the static policy
// document: blocked-target substrings, longest-prefix action rules, and a
// default risk.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Decisions returned by Evaluate.
const (
	DecisionAllow      = "allow"
	DecisionDeny       = "deny"
	DecisionRequirePIN = "require_pin"
)

// Risk levels. Anything that is not high maps to allow.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Rule matches actions by prefix. A rule with Decision "deny" denies
// outright; otherwise Risk (default: the document's default risk) decides.
type Rule struct {
	ID           string `json:"id"`
	ActionPrefix string `json:"action_prefix"`
	Decision     string `json:"decision,omitempty"`
	Risk         string `json:"risk,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Document is the policy file, loaded once at startup. Not hot-reloaded.
type Document struct {
	DefaultRisk    string   `json:"default_risk"`
	BlockedTargets []string `json:"blocked_targets"`
	Rules          []Rule   `json:"rules"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Decision string `json:"decision"`
	Risk     string `json:"risk"`
	Reason   string `json:"reason"`
	PolicyID string `json:"policy_id"`
}

// Engine evaluates (action, target, metadata) tuples against a Document.
// Evaluation is pure: same inputs, same output.
type Engine struct {
	doc    Document
	logger *zap.Logger
}

// Load reads the policy document from path and builds an engine. The file is
// required operator input; a missing or malformed document fails startup.
func Load(path string, logger *zap.Logger) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if doc.DefaultRisk == "" {
		doc.DefaultRisk = RiskMedium
	}
	logger.Info("Policy loaded",
		zap.String("path", path),
		zap.String("default_risk", doc.DefaultRisk),
		zap.Int("rules", len(doc.Rules)),
		zap.Int("blocked_targets", len(doc.BlockedTargets)),
	)
	return &Engine{doc: doc, logger: logger}, nil
}

// New builds an engine from an in-memory document.
func New(doc Document, logger *zap.Logger) *Engine {
	if doc.DefaultRisk == "" {
		doc.DefaultRisk = RiskMedium
	}
	return &Engine{doc: doc, logger: logger}
}

// Evaluate applies the document to one request. Metadata is opaque to the
// engine; only keyword triage upstream consults it.
func (e *Engine) Evaluate(action, target string, metadata map[string]interface{}) Decision {
	_ = metadata

	loweredTarget := strings.ToLower(target)
	for _, blocked := range e.doc.BlockedTargets {
		if blocked == "" {
			continue
		}
		if strings.Contains(loweredTarget, strings.ToLower(blocked)) {
			d := Decision{
				Decision: DecisionDeny,
				Risk:     RiskHigh,
				Reason:   fmt.Sprintf("Target is blocked by policy: %s", blocked),
				PolicyID: "policy-blocked-target",
			}
			recordDecision(d)
			return d
		}
	}

	rule := e.bestRule(action)
	if rule == nil {
		d := riskToDecision(e.doc.DefaultRisk, "default-policy", "Default policy applied.")
		recordDecision(d)
		return d
	}

	if rule.Decision == DecisionDeny {
		d := Decision{
			Decision: DecisionDeny,
			Risk:     defaultString(rule.Risk, RiskHigh),
			Reason:   defaultString(rule.Reason, "Denied by policy rule."),
			PolicyID: defaultString(rule.ID, "policy-unnamed"),
		}
		recordDecision(d)
		return d
	}

	risk := defaultString(rule.Risk, e.doc.DefaultRisk)
	reason := defaultString(rule.Reason, "Rule-based policy applied.")
	d := riskToDecision(risk, defaultString(rule.ID, "policy-unnamed"), reason)
	recordDecision(d)
	return d
}

// bestRule picks the longest non-empty action_prefix that prefixes action.
// Ties break on first occurrence.
func (e *Engine) bestRule(action string) *Rule {
	var best *Rule
	bestLen := 0
	for i := range e.doc.Rules {
		rule := &e.doc.Rules[i]
		prefix := rule.ActionPrefix
		if prefix == "" || !strings.HasPrefix(action, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best = rule
			bestLen = len(prefix)
		}
	}
	return best
}

func riskToDecision(risk, policyID, reason string) Decision {
	normalized := strings.ToLower(risk)
	if normalized == RiskHigh {
		return Decision{Decision: DecisionRequirePIN, Risk: RiskHigh, Reason: reason, PolicyID: policyID}
	}
	return Decision{Decision: DecisionAllow, Risk: normalized, Reason: reason, PolicyID: policyID}
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
