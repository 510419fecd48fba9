// Package security holds the secret primitives: PIN key stretching, random
// identifiers, and extension signature verification.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the default iteration count for newly hashed PINs.
// Stored alongside the digest so it can be raised without invalidating
// existing PINs.
const PBKDF2Iterations = 210_000

const (
	saltBytes   = 16
	digestBytes = 32
)

// HashPIN derives a salted digest for the given PIN. Returns the salt and
// digest base64-encoded plus the iteration count used.
func HashPIN(pin string) (saltB64, digestB64 string, iterations int, err error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", "", 0, fmt.Errorf("generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(pin), salt, PBKDF2Iterations, digestBytes, sha256.New)
	return base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(digest),
		PBKDF2Iterations, nil
}

// VerifyPIN re-derives the digest with the stored salt and iteration count
// and compares in constant time. The stored iteration count is authoritative.
func VerifyPIN(pin, saltB64, digestB64 string, iterations int) bool {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(digestB64)
	if err != nil {
		return false
	}
	if iterations <= 0 {
		iterations = PBKDF2Iterations
	}
	actual := pbkdf2.Key([]byte(pin), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
