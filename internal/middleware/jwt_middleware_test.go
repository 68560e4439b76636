package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promptforge/internal/auth"
	"promptforge/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret: []byte("middleware-test-secret"),
		TokenTTL:  time.Minute,
	}
}

func TestJWTMiddleware(t *testing.T) {
	cfg := testConfig()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok {
			t.Error("claims not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if sub, _ := GetSubject(r.Context()); sub != claims.Subject {
			t.Errorf("subject %q does not match claims %q", sub, claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := JWTMiddleware(cfg, auth.RoleGenerator)(nextHandler)

	generator, _, err := auth.GenerateJWT("op", []auth.Role{auth.RoleGenerator}, cfg)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	viewer, _, err := auth.GenerateJWT("ro", []auth.Role{auth.RoleViewer}, cfg)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "bearer token", header: "Bearer " + generator, want: http.StatusOK},
		{name: "bare token", header: generator, want: http.StatusOK},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "insufficient role", header: "Bearer " + viewer, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/prompts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}
