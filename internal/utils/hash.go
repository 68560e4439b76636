package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintLength is the number of hex characters kept by Fingerprint.
const FingerprintLength = 12

func HashString(s string) string {
	hasher := sha256.New()
	hasher.Write([]byte(s))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Fingerprint returns a short, stable identifier for a secret so it can be
// logged and used as a cache or limiter key without exposing the secret.
func Fingerprint(secret string) string {
	return HashString(secret)[:FingerprintLength]
}
