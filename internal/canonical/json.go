// Package canonical produces deterministic JSON for hashing and matching.
//
// The audit chain hashes details payloads and the risk-keyword scan matches
// against serialized metadata; both must serialize identically on every call,
// so a single canonical routine (RFC 8785: sorted keys, compact separators,
// no HTML escaping) is used everywhere those bytes are produced.
package canonical

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// JSON returns the canonical JSON encoding of v.
func JSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// String is JSON with a string result.
func String(v interface{}) (string, error) {
	b, err := JSON(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
