package keypool

import (
	"time"

	"promptforge/internal/utils"
)

// Status is the validity of a credential as last observed.
type Status int

const (
	StatusUnknown Status = iota
	StatusValid
	StatusInvalid
	StatusRateLimited
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusRateLimited:
		return "rate_limited"
	case StatusErrored:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Credential is an API key with what is known about it this session.
type Credential struct {
	Key       string
	Status    Status
	Model     string // discovered model, empty until discovery ran
	LastUsed  time.Time
	LastError string
}

// NewCredential wraps a key with unknown status.
func NewCredential(key string) *Credential {
	return &Credential{Key: key}
}

// Fingerprint identifies the credential in logs without exposing the key.
func (c *Credential) Fingerprint() string {
	return utils.Fingerprint(c.Key)
}

// Usable reports whether the credential may still be tried.
// Only a definitive invalid-credential signal disqualifies it.
func (c *Credential) Usable() bool {
	return c.Status != StatusInvalid
}
