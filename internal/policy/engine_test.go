package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
        "default_risk": "low",
        "blocked_targets": ["/secrets"],
        "rules": [{"id": "r-write", "action_prefix": "fs.write", "risk": "high"}]
    }`), 0o644))

	engine, err := Load(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	d := engine.Evaluate("fs.write", "/tmp/x", nil)
	require.Equal(t, DecisionRequirePIN, d.Decision)
}

func TestLoadMissingPolicyFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestDefaultPolicy(t *testing.T) {
	engine := New(Document{DefaultRisk: "low"}, zaptest.NewLogger(t))
	d := engine.Evaluate("read", "notes", nil)
	require.Equal(t, DecisionAllow, d.Decision)
	require.Equal(t, "low", d.Risk)
	require.Equal(t, "default-policy", d.PolicyID)
	require.Equal(t, "Default policy applied.", d.Reason)
}

func TestBlockedTargetCaseInsensitive(t *testing.T) {
	engine := New(Document{
		DefaultRisk:    "low",
		BlockedTargets: []string{"/secrets"},
	}, zaptest.NewLogger(t))

	d := engine.Evaluate("fs.read", "/app/Secrets/db", nil)
	require.Equal(t, DecisionDeny, d.Decision)
	require.Equal(t, RiskHigh, d.Risk)
	require.Equal(t, "policy-blocked-target", d.PolicyID)
}

func TestBlockedTargetWinsOverRules(t *testing.T) {
	engine := New(Document{
		DefaultRisk:    "low",
		BlockedTargets: []string{"vault"},
		Rules:          []Rule{{ID: "r-read", ActionPrefix: "fs.read", Risk: "low"}},
	}, zaptest.NewLogger(t))

	d := engine.Evaluate("fs.read", "/data/VAULT/creds", nil)
	require.Equal(t, DecisionDeny, d.Decision)
	require.Equal(t, "policy-blocked-target", d.PolicyID)
}

func TestLongestPrefixWins(t *testing.T) {
	engine := New(Document{
		DefaultRisk: "low",
		Rules: []Rule{
			{ID: "r-fs", ActionPrefix: "fs.", Risk: "medium"},
			{ID: "r-write", ActionPrefix: "fs.write", Risk: "high"},
		},
	}, zaptest.NewLogger(t))

	d := engine.Evaluate("fs.write.append", "/tmp/x", nil)
	require.Equal(t, "r-write", d.PolicyID)
	require.Equal(t, DecisionRequirePIN, d.Decision)

	d = engine.Evaluate("fs.read", "/tmp/x", nil)
	require.Equal(t, "r-fs", d.PolicyID)
	require.Equal(t, DecisionAllow, d.Decision)
	require.Equal(t, "medium", d.Risk)
}

func TestPrefixTieBreaksOnFirstOccurrence(t *testing.T) {
	engine := New(Document{
		DefaultRisk: "low",
		Rules: []Rule{
			{ID: "first", ActionPrefix: "fs.", Risk: "medium"},
			{ID: "second", ActionPrefix: "fs.", Risk: "high"},
		},
	}, zaptest.NewLogger(t))

	d := engine.Evaluate("fs.read", "x", nil)
	require.Equal(t, "first", d.PolicyID)
}

func TestDenyRuleDefaults(t *testing.T) {
	engine := New(Document{
		DefaultRisk: "low",
		Rules:       []Rule{{ID: "r-rm", ActionPrefix: "fs.delete", Decision: "deny"}},
	}, zaptest.NewLogger(t))

	d := engine.Evaluate("fs.delete", "/etc", nil)
	require.Equal(t, DecisionDeny, d.Decision)
	require.Equal(t, RiskHigh, d.Risk)
	require.Equal(t, "Denied by policy rule.", d.Reason)
	require.Equal(t, "r-rm", d.PolicyID)
}

func TestRiskNormalization(t *testing.T) {
	engine := New(Document{
		DefaultRisk: "low",
		Rules:       []Rule{{ID: "r-x", ActionPrefix: "x", Risk: "MEDIUM"}},
	}, zaptest.NewLogger(t))

	d := engine.Evaluate("x.y", "t", nil)
	require.Equal(t, DecisionAllow, d.Decision)
	require.Equal(t, "medium", d.Risk)
}

func TestHighDefaultRequiresPIN(t *testing.T) {
	engine := New(Document{DefaultRisk: "high"}, zaptest.NewLogger(t))
	d := engine.Evaluate("anything", "t", nil)
	require.Equal(t, DecisionRequirePIN, d.Decision)
}

func TestEvaluationIsPure(t *testing.T) {
	engine := New(Document{
		DefaultRisk: "medium",
		Rules:       []Rule{{ID: "r", ActionPrefix: "fs.write", Risk: "high"}},
	}, zaptest.NewLogger(t))

	first := engine.Evaluate("fs.write", "/x", map[string]interface{}{"k": "v"})
	for i := 0; i < 5; i++ {
		require.Equal(t, first, engine.Evaluate("fs.write", "/x", map[string]interface{}{"k": "v"}))
	}
}

func TestMetadataIsOpaque(t *testing.T) {
	engine := New(Document{DefaultRisk: "low"}, zaptest.NewLogger(t))
	withMeta := engine.Evaluate("read", "t", map[string]interface{}{"danger": "rm -rf"})
	without := engine.Evaluate("read", "t", nil)
	require.Equal(t, without, withMeta)
}
