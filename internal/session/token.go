package session

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// MaxTokenLength bounds client-supplied session tokens.
const MaxTokenLength = 64

// NewToken mints an opaque session token for a new session.
func NewToken() string {
	return uuid.NewString()
}

// HashToken returns the SHA-256 hex digest of a raw session token.
// Only this digest is ever persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
