package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Authenticator handles authentication for a provider request.
type Authenticator interface {
	// Authenticate prepares authentication for a request
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext holds authentication information for a request
type AuthContext interface {
	// ApplyToRequest applies authentication to an HTTP request
	ApplyToRequest(ctx context.Context, req any) error
}

// ErrMissingAPIKey is returned when a request is attempted without a credential.
var ErrMissingAPIKey = errors.New("API key is required")

// HeaderAPIKeyAuth places an API key in a request header, optionally prefixed.
type HeaderAPIKeyAuth struct {
	apiKey     string
	headerName string // e.g. "Authorization" or "x-goog-api-key"
	prefix     string // e.g. "Bearer ", may be empty
}

// NewHeaderAPIKeyAuth creates an authenticator writing prefix+apiKey into headerName.
func NewHeaderAPIKeyAuth(apiKey, headerName, prefix string) *HeaderAPIKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
	}
	return &HeaderAPIKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// Authenticate returns an auth context with the API key
func (a *HeaderAPIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	return &headerAuthContext{
		apiKey:     a.apiKey,
		headerName: a.headerName,
		prefix:     a.prefix,
	}, nil
}

type headerAuthContext struct {
	apiKey     string
	headerName string
	prefix     string
}

// ApplyToRequest adds the API key to the HTTP request
func (c *headerAuthContext) ApplyToRequest(ctx context.Context, req any) error {
	httpReq, ok := req.(*http.Request)
	if !ok {
		return fmt.Errorf("expected *http.Request, got %T", req)
	}

	httpReq.Header.Set(c.headerName, c.prefix+c.apiKey)
	return nil
}

// authorize applies auth to req, wrapping failures as classified errors.
func authorize(ctx context.Context, provider string, auth Authenticator, req *http.Request) error {
	authCtx, err := auth.Authenticate(ctx)
	if err != nil {
		return &Error{Kind: KindInvalidCredential, Provider: provider, Message: err.Error(), Err: err}
	}
	if err := authCtx.ApplyToRequest(ctx, req); err != nil {
		return transportError(provider, fmt.Errorf("failed to apply auth: %w", err))
	}
	return nil
}
