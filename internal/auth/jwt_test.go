package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"promptforge/internal/config"
	"promptforge/internal/utils"
)

func getTestConfig() *config.Config {
	return &config.Config{
		JWTSecret:   []byte("test-secret-key-for-testing"),
		AccessToken: "let-me-in",
		TokenTTL:    15 * time.Minute,
	}
}

func TestGenerateAndValidateJWT(t *testing.T) {
	cfg := getTestConfig()

	token, exp, err := GenerateJWT("operator", []Role{RoleGenerator}, cfg)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	if exp <= time.Now().Unix() {
		t.Error("GenerateJWT() expiration time is in the past")
	}

	claims, err := ValidateJWT(token, cfg)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if claims.Subject != "operator" {
		t.Errorf("claims.Subject = %v, want operator", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("claims.ID is empty")
	}
	if !claims.HasRole(RoleViewer) {
		t.Error("generator should satisfy viewer")
	}
}

func TestGenerateJWT_InvalidRole(t *testing.T) {
	_, _, err := GenerateJWT("x", []Role{"admin"}, getTestConfig())
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("GenerateJWT() error = %v, want ErrInvalidRole", err)
	}
}

func TestValidateJWT_Rejects(t *testing.T) {
	cfg := getTestConfig()

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := GenerateJWT("x", []Role{RoleViewer}, cfg)
		if err != nil {
			t.Fatalf("GenerateJWT() error = %v", err)
		}
		other := getTestConfig()
		other.JWTSecret = []byte("another-secret")
		if _, err := ValidateJWT(token, other); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateJWT() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired := getTestConfig()
		expired.TokenTTL = -time.Minute
		token, _, err := GenerateJWT("x", []Role{RoleViewer}, expired)
		if err != nil {
			t.Fatalf("GenerateJWT() error = %v", err)
		}
		if _, err := ValidateJWT(token, cfg); err == nil {
			t.Error("ValidateJWT() accepted an expired token")
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
			Roles:            []string{"generator"},
			RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		if _, err := ValidateJWT(signed, cfg); err == nil {
			t.Error("ValidateJWT() accepted an unsigned token")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ValidateJWT("not.a.token", cfg); err == nil {
			t.Error("ValidateJWT() accepted garbage")
		}
	})
}

func TestVerifyAccessToken(t *testing.T) {
	cfg := getTestConfig()

	if err := VerifyAccessToken("let-me-in", cfg); err != nil {
		t.Errorf("VerifyAccessToken() plain error = %v", err)
	}
	if err := VerifyAccessToken("nope", cfg); !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrInvalidAccessToken", err)
	}

	hash, err := utils.HashPasswordArgon2("let-me-in")
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}
	cfg.AccessToken = hash
	if err := VerifyAccessToken("let-me-in", cfg); err != nil {
		t.Errorf("VerifyAccessToken() hashed error = %v", err)
	}
	if err := VerifyAccessToken("nope", cfg); !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("VerifyAccessToken() hashed error = %v, want ErrInvalidAccessToken", err)
	}

	cfg.AccessToken = ""
	if err := VerifyAccessToken("anything", cfg); !errors.Is(err, ErrAccessDisabled) {
		t.Errorf("VerifyAccessToken() error = %v, want ErrAccessDisabled", err)
	}
}

func TestTokenHandler(t *testing.T) {
	cfg := getTestConfig()
	handler := TokenHandler(cfg)

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/token", nil)
		req.Header.Set("X-Access-Token", "let-me-in")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var body struct {
			Token string `json:"token"`
			Exp   int64  `json:"exp"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		claims, err := ValidateJWT(body.Token, cfg)
		if err != nil {
			t.Fatalf("ValidateJWT() error = %v", err)
		}
		if !claims.HasRole(RoleGenerator) {
			t.Error("Expected generator role")
		}
	})

	t.Run("body with viewer role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/token", strings.NewReader(`{"access_token": "let-me-in", "role": "viewer"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "wrong secret", body: `{"access_token": "nope"}`, want: http.StatusUnauthorized},
		{name: "unknown role", body: `{"access_token": "let-me-in", "role": "root"}`, want: http.StatusBadRequest},
		{name: "bad json", body: `{"access_token":`, want: http.StatusBadRequest},
		{name: "empty", body: ``, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/token", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}
