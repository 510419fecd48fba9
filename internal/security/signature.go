package security

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// TrustStore maps publisher key ids to base64-encoded Ed25519 verify keys.
type TrustStore struct {
	Publishers map[string]string `json:"publishers"`
}

// SignatureError is a classified signature-verification failure. Kind is a
// short machine-readable tag; Info optionally carries detail.
type SignatureError struct {
	Kind string
	Info string
}

func (e *SignatureError) Error() string {
	if e.Info == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Info
}

// LoadTrustStore reads the trust store file. A missing file yields an empty
// store; installs that require signatures will then fail on lookup.
func LoadTrustStore(path string) (*TrustStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &TrustStore{Publishers: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("read trust store %s: %w", path, err)
	}
	var store TrustStore
	if err := json.Unmarshal(raw, &store); err != nil {
		return nil, &SignatureError{Kind: "invalid_trust_store_format", Info: err.Error()}
	}
	if store.Publishers == nil {
		store.Publishers = map[string]string{}
	}
	return &store, nil
}

// VerifyExtensionZip checks the publisher's Ed25519 signature over the zip.
//
// The signed payload is the ASCII hex SHA-256 digest of the zip bytes, not
// the raw bytes or the binary digest.
func VerifyExtensionZip(zipBytes []byte, store *TrustStore, keyID, signatureB64 string) error {
	publicKeyB64, ok := store.Publishers[keyID]
	if !ok || publicKeyB64 == "" {
		return &SignatureError{Kind: "unknown_publisher_key_id"}
	}

	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return &SignatureError{Kind: "invalid_trust_store_pubkey", Info: err.Error()}
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return &SignatureError{Kind: "invalid_trust_store_pubkey", Info: "wrong key length"}
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return &SignatureError{Kind: "invalid_signature_b64", Info: err.Error()}
	}

	digest := sha256.Sum256(zipBytes)
	message := []byte(hex.EncodeToString(digest[:]))
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, signature) {
		return &SignatureError{Kind: "signature_verification_failed"}
	}
	return nil
}
