package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a provider failure. The dispatcher branches on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindInvalidCredential
	KindModelNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindModelNotFound:
		return "model_not_found"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int // 0 when the call never got an HTTP response
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status=%d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err. Anything that is not a *Error
// is KindUnknown.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

// IsRecoverable reports whether another credential may succeed where this one failed.
// Context cancellation is the only non-recoverable condition.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// transportError wraps a failure that happened before any HTTP response.
func transportError(provider string, err error) *Error {
	return &Error{Kind: KindUnknown, Provider: provider, Message: err.Error(), Err: err}
}

var (
	rateLimitMarkers   = []string{"resource_exhausted", "rate limit", "rate_limit", "quota", "too many requests"}
	invalidKeyMarkers  = []string{"api_key_invalid", "api key not valid", "invalid api key", "incorrect api key", "invalid_api_key", "permission_denied", "unauthenticated"}
	modelMissingMarker = []string{"model_not_found", "is not found", "not supported for generatecontent", "does not exist", "unknown model"}
)

// classify maps an HTTP status plus error body to a Kind.
func classify(status int, body string) Kind {
	lower := strings.ToLower(body)

	switch {
	case status == http.StatusTooManyRequests || containsAny(lower, rateLimitMarkers):
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(lower, invalidKeyMarkers):
		return KindInvalidCredential
	case status == http.StatusNotFound || containsAny(lower, modelMissingMarker):
		return KindModelNotFound
	default:
		return KindUnknown
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
