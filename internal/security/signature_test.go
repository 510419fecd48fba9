package security

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func signZip(t *testing.T, priv ed25519.PrivateKey, zipBytes []byte) string {
	t.Helper()
	digest := sha256.Sum256(zipBytes)
	sig := ed25519.Sign(priv, []byte(hex.EncodeToString(digest[:])))
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifyExtensionZip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	store := &TrustStore{Publishers: map[string]string{
		"acme": base64.StdEncoding.EncodeToString(pub),
	}}
	zipBytes := []byte("pretend zip contents")

	require.NoError(t, VerifyExtensionZip(zipBytes, store, "acme", signZip(t, priv, zipBytes)))
}

func TestVerifyUnknownKeyID(t *testing.T) {
	store := &TrustStore{Publishers: map[string]string{}}
	err := VerifyExtensionZip([]byte("zip"), store, "nobody", "c2ln")
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
	require.Equal(t, "unknown_publisher_key_id", sigErr.Kind)
}

func TestVerifyBadPubkey(t *testing.T) {
	store := &TrustStore{Publishers: map[string]string{"acme": "%%%not-base64%%%"}}
	err := VerifyExtensionZip([]byte("zip"), store, "acme", "c2ln")
	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
	require.Equal(t, "invalid_trust_store_pubkey", sigErr.Kind)
}

func TestVerifyBadSignatureEncoding(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	store := &TrustStore{Publishers: map[string]string{
		"acme": base64.StdEncoding.EncodeToString(pub),
	}}
	verr := VerifyExtensionZip([]byte("zip"), store, "acme", "%%%")
	var sigErr *SignatureError
	require.ErrorAs(t, verr, &sigErr)
	require.Equal(t, "invalid_signature_b64", sigErr.Kind)
}

func TestVerifyTamperedPayload(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	store := &TrustStore{Publishers: map[string]string{
		"acme": base64.StdEncoding.EncodeToString(pub),
	}}
	sig := signZip(t, priv, []byte("original"))
	verr := VerifyExtensionZip([]byte("tampered"), store, "acme", sig)
	var sigErr *SignatureError
	require.ErrorAs(t, verr, &sigErr)
	require.Equal(t, "signature_verification_failed", sigErr.Kind)
}

func TestVerifySignsHexDigestNotRawBytes(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	store := &TrustStore{Publishers: map[string]string{
		"acme": base64.StdEncoding.EncodeToString(pub),
	}}
	zipBytes := []byte("zip contents")

	// A signature over the raw zip bytes must not verify.
	rawSig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, zipBytes))
	require.Error(t, VerifyExtensionZip(zipBytes, store, "acme", rawSig))

	// Nor one over the binary digest.
	digest := sha256.Sum256(zipBytes)
	binSig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, digest[:]))
	require.Error(t, VerifyExtensionZip(zipBytes, store, "acme", binSig))
}

func TestLoadTrustStoreMissingFile(t *testing.T) {
	store, err := LoadTrustStore(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Empty(t, store.Publishers)
}

func TestLoadTrustStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_publishers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"publishers":{"acme":"QUJD"}}`), 0o644))
	store, err := LoadTrustStore(path)
	require.NoError(t, err)
	require.Equal(t, "QUJD", store.Publishers["acme"])
}
