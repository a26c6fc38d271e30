// Package canonical provides RFC 8785 (JSON Canonicalization Scheme) compliant
// serialization and deterministic SHA3-256 content digests for ProofNest
// records.
//
// Every hash in the system is computed the same way: the value is marshaled to
// JSON, transformed to its JCS canonical form (keys sorted by UTF-8 bytes, no
// HTML escaping, shortest-form numbers), and digested with SHA3-256. The
// resulting digest is rendered as 64 lowercase hex characters. Independent
// implementations that follow RFC 8785 and FIPS 202 reproduce these digests
// bit-for-bit.
package canonical

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/sha3"
)

// DigestLen is the length of a rendered digest in hex characters.
const DigestLen = 64

// ErrBadDigest is returned when a digest string is not 64 lowercase hex chars.
var ErrBadDigest = errors.New("digest must be 64 lowercase hex characters")

// Marshal returns the RFC 8785 canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Digest returns the SHA3-256 hex digest of the canonical encoding of v.
func Digest(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// DigestBytes computes the SHA3-256 digest of raw bytes as lowercase hex.
func DigestBytes(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CheckDigest validates that s is a well-formed digest string.
func CheckDigest(s string) error {
	if len(s) != DigestLen {
		return fmt.Errorf("%w: got %d characters", ErrBadDigest, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: invalid character %q at index %d", ErrBadDigest, c, i)
		}
	}
	return nil
}
