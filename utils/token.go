package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// NewActionToken mints a capability token for a mailed action link. The raw
// secret goes into the link; only the hash is persisted. Possession of the raw
// secret is the sole authorization check for the action.
func NewActionToken() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate action token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashActionToken(raw), nil
}

// HashActionToken derives the stored form of a raw token. Raw secrets are
// never persisted or compared directly.
func HashActionToken(raw string) string {
	sum := sha256.Sum256([]byte("booking-action:" + raw))
	return hex.EncodeToString(sum[:])
}
