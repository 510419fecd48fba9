package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	saltB64, digestB64, iterations, err := HashPIN("123456")
	require.NoError(t, err)
	require.Equal(t, PBKDF2Iterations, iterations)
	require.NotEmpty(t, saltB64)
	require.NotEmpty(t, digestB64)

	require.True(t, VerifyPIN("123456", saltB64, digestB64, iterations))
	require.False(t, VerifyPIN("654321", saltB64, digestB64, iterations))
	require.False(t, VerifyPIN("", saltB64, digestB64, iterations))
}

func TestVerifyDefaultsIterations(t *testing.T) {
	saltB64, digestB64, _, err := HashPIN("7777")
	require.NoError(t, err)
	// Zero iteration count falls back to the default.
	require.True(t, VerifyPIN("7777", saltB64, digestB64, 0))
}

func TestVerifyRejectsBadEncoding(t *testing.T) {
	require.False(t, VerifyPIN("123456", "!!!not-base64", "also-not", 1000))
}

func TestHashIsSalted(t *testing.T) {
	_, first, _, err := HashPIN("123456")
	require.NoError(t, err)
	_, second, _, err := HashPIN("123456")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestRandomIdentifiers(t *testing.T) {
	id := NewRequestID()
	token := NewApprovalToken()
	key := NewBearerKey()
	// 18/24 bytes of entropy produce 24/32 base64url chars.
	require.Len(t, id, 24)
	require.Len(t, token, 32)
	require.Len(t, key, 32)
	require.NotEqual(t, NewRequestID(), id)
}

func TestConstantTimeEquals(t *testing.T) {
	require.True(t, ConstantTimeEquals("secret", "secret"))
	require.False(t, ConstantTimeEquals("secret", "secret2"))
	require.False(t, ConstantTimeEquals("", "secret"))
}

func TestKeyTail(t *testing.T) {
	require.Equal(t, "12345678", KeyTail("abcdef12345678"))
	require.Equal(t, "********", KeyTail("short"))
}
