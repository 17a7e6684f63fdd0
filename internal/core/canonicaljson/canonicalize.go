// Package canonicaljson implements RFC 8785 (JCS) JSON canonicalization and
// fingerprints canonical payloads.
package canonicaljson

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"golang.org/x/crypto/sha3"
)

// CanonicalizeRaw takes raw JSON bytes and returns RFC 8785 canonical form.
func CanonicalizeRaw(raw json.RawMessage) ([]byte, error) {
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: transform: %w", err)
	}
	return out, nil
}

// Fingerprint returns the hex SHA3-256 digest of the canonical form of raw.
// Payloads that differ only in key order or whitespace share a fingerprint.
func Fingerprint(raw json.RawMessage) (string, error) {
	canonical, err := CanonicalizeRaw(raw)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
