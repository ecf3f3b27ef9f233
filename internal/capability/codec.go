// Package capability implements the capability-key codec (§4.B) and
// evaluator (§4.C): generation, hashing, format validation and the
// allow/deny decision that every capability-URL request flows through.
package capability

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// plainKeyPattern matches a bare capability key; scopedKeyPattern matches
// the "a_<prefix>" scoped form. Both require >=20-22 trailing characters
// per §6's grammar and §4.B's isFormatValid contract.
var (
	plainKeyPattern  = regexp.MustCompile(`^[A-Za-z0-9]{22,}$`)
	scopedKeyPattern = regexp.MustCompile(`^a_[A-Za-z0-9]{20,}$`)
)

// GenerateKey returns an n-character string drawn from the 62-char
// alphanumeric alphabet via a cryptographically secure RNG.
func GenerateKey(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("capability: key length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("capability: rng read failed: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}

// HashKey is the fixed deterministic hash of a plaintext key: SHA-256,
// hex-encoded. The output space is 256 bits and uniformly distributed
// over the hash's range; this is what gets persisted and compared on
// every request, never the plaintext.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// IsFormatValid reports whether s matches the bare or scoped capability
// key grammar from §6.
func IsFormatValid(s string) bool {
	return plainKeyPattern.MatchString(s) || scopedKeyPattern.MatchString(s)
}

// Prefix returns the identification-only prefix of a plaintext key: the
// first n characters, never used for authorization, only for logging.
func Prefix(plaintext string, n int) string {
	if n <= 0 || n > len(plaintext) {
		return plaintext
	}
	return plaintext[:n]
}
