package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSessionToken hashes a raw session token for lookup.
func HashSessionToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
