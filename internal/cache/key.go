package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the hex SHA-256 of key.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Fingerprint identifies a credential in logs and spans without exposing
// it.
func Fingerprint(credential string) string {
	return HashKey(credential)[:12]
}
