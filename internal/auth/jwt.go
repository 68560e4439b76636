package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"promptforge/internal/config"
	"promptforge/internal/utils"
)

const tokenIssuer = "promptforge"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessDisabled     = errors.New("token exchange is disabled")
	ErrInvalidRole        = errors.New("invalid role")
)

// SessionClaims are carried by tokens issued for the HTTP API
type SessionClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether any of the claimed roles grants required
func (c *SessionClaims) HasRole(required Role) bool {
	for _, r := range c.Roles {
		if Role(r).HasPermission(required) {
			return true
		}
	}
	return false
}

// GenerateJWT issues a session token for subject with the given roles
func GenerateJWT(subject string, roles []Role, cfg *config.Config) (string, int64, error) {
	if len(cfg.JWTSecret) == 0 {
		return "", 0, errors.New("JWT secret is not configured")
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.IsValid() {
			return "", 0, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
		names = append(names, r.String())
	}

	now := time.Now()
	expiresAt := now.Add(cfg.TokenTTL)
	claims := SessionClaims{
		Roles: names,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.JWTSecret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt.Unix(), nil
}

// ValidateJWT verifies signature, algorithm, issuer and expiry
func ValidateJWT(tokenString string, cfg *config.Config) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || !claims.VerifyIssuer(tokenIssuer, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken checks a presented access secret against the configured
// one, which may be stored plain or as an argon2id hash.
func VerifyAccessToken(presented string, cfg *config.Config) error {
	if cfg.AccessToken == "" {
		return ErrAccessDisabled
	}
	if presented == "" {
		return ErrInvalidAccessToken
	}

	if utils.IsArgon2Hash(cfg.AccessToken) {
		ok, err := utils.VerifyPasswordArgon2(presented, cfg.AccessToken)
		if err != nil {
			return fmt.Errorf("failed to verify access token: %w", err)
		}
		if !ok {
			return ErrInvalidAccessToken
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.AccessToken)) != 1 {
		return ErrInvalidAccessToken
	}
	return nil
}
