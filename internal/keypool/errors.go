package keypool

import "errors"

var (
	// ErrNoCredentials is returned when no candidate keys were supplied at all
	ErrNoCredentials = errors.New("no API keys provided")

	// ErrMalformedCredentials is returned when keys were supplied but none passed the shape check
	ErrMalformedCredentials = errors.New("no API key matched the expected format")
)
