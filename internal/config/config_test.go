package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Load()
	require.Equal(t, "0.0.0.0", s.Host)
	require.Equal(t, 8088, s.Port)
	require.Equal(t, "./glove.db", s.DBPath)
	require.Equal(t, "./policy.json", s.PolicyPath)
	require.Equal(t, 300, s.RequestTTLSeconds)
	require.Equal(t, 5, s.MaxPINAttempts)
	require.Equal(t, "console", s.NotifierProvider)
	require.Equal(t, "./extensions", s.ClawhubExtensionsDir)
	require.Equal(t, 10, s.ClawhubTimeoutSeconds)
	require.Equal(t, "./trusted_publishers.json", s.ClawhubTrustStorePath)
	require.True(t, s.RequireExtensionSignatures)
	require.True(t, s.SMTPUseTLS)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GLOVE_PORT", "9000")
	t.Setenv("GLOVE_DB_PATH", "/tmp/test.db")
	t.Setenv("GLOVE_MAX_PIN_ATTEMPTS", "3")
	t.Setenv("GLOVE_NOTIFIER_PROVIDERS", "Webhook,Console")
	t.Setenv("GLOVE_REQUIRE_EXTENSION_SIGNATURES", "false")
	t.Setenv("GLOVE_AGENT_KEY", "  secret-with-spaces  ")

	s := Load()
	require.Equal(t, 9000, s.Port)
	require.Equal(t, "/tmp/test.db", s.DBPath)
	require.Equal(t, 3, s.MaxPINAttempts)
	require.Equal(t, "webhook,console", s.NotifierProviders)
	require.False(t, s.RequireExtensionSignatures)
	require.Equal(t, "secret-with-spaces", s.AgentKey)
}
