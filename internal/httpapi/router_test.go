package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/auth"
	"promptforge/internal/config"
	"promptforge/internal/discovery"
	"promptforge/internal/dispatch"
	"promptforge/internal/keypool"
	"promptforge/internal/providers"
)

// stubProvider rejects keys starting with "bad" and answers everything else
// with a JSON envelope.
type stubProvider struct {
	mu          sync.Mutex
	calls       int
	keys        []string
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func (p *stubProvider) Type() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, apiKey string, req providers.GenerateRequest) (*providers.GenerateResponse, error) {
	p.mu.Lock()
	p.calls++
	p.keys = append(p.keys, apiKey)
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	if strings.HasPrefix(apiKey, "bad") {
		return nil, &providers.Error{Kind: providers.KindInvalidCredential, Provider: "stub", StatusCode: http.StatusUnauthorized, Message: "API key not valid"}
	}
	return &providers.GenerateResponse{Text: `{"prompt": "a paper lantern at dusk"}`, Model: req.Model}, nil
}

func (p *stubProvider) ListModels(ctx context.Context, apiKey string) ([]providers.ModelInfo, error) {
	return []providers.ModelInfo{{ID: "stub-flash", SupportsGeneration: true}}, nil
}

func (p *stubProvider) Catalog() providers.ModelCatalog {
	return providers.ModelCatalog{Default: "stub-flash", Preferred: []string{"flash"}}
}

func (p *stubProvider) Close() error { return nil }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*httptest.Server, *config.Config, *stubProvider) {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:   []byte("httpapi-test-secret"),
		AccessToken: "open-sesame",
		TokenTTL:    time.Minute,
		Provider:    config.ProviderConfig{Type: "gemini"},
		Dispatch:    config.DispatchConfig{RetryFactor: 2, MaxQuantity: 10, ExpectJSON: true, Lenient: true, ResponseField: "prompt"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	provider := &stubProvider{}
	disc := discovery.New(provider, 16, 0)
	rt := &dispatch.Runtime{
		Deps: dispatch.Dependencies{
			Provider:   provider,
			Discoverer: disc,
			Sleep:      noSleep,
		},
		Validator: keypool.NewValidator(provider, disc, 16, 0),
		Options:   dispatch.OptionsFromConfig(cfg.Dispatch),
	}

	server := httptest.NewServer(Handler(NewDependencies(cfg, rt)))
	t.Cleanup(server.Close)
	return server, cfg, provider
}

func bearer(t *testing.T, cfg *config.Config, role auth.Role) string {
	t.Helper()
	token, _, err := auth.GenerateJWT("tester", []auth.Role{role}, cfg)
	require.NoError(t, err)
	return "Bearer " + token
}

func postJSON(t *testing.T, url, authz string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthAndModes(t *testing.T) {
	server, _, _ := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/v1/modes")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Default string `json:"default"`
		Modes   []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AspectRatio string `json:"aspect_ratio"`
		} `json:"modes"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "1", body.Default)
	require.Len(t, body.Modes, 5)
	assert.Equal(t, "Isolated Object", body.Modes[0].Name)
}

func TestTokenExchange(t *testing.T) {
	server, cfg, _ := newTestServer(t, nil)

	resp := postJSON(t, server.URL+"/v1/token", "", map[string]string{"access_token": "open-sesame"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
		Exp   int64  `json:"exp"`
	}
	decode(t, resp, &body)
	claims, err := auth.ValidateJWT(body.Token, cfg)
	require.NoError(t, err)
	assert.True(t, claims.HasRole(auth.RoleGenerator))

	resp = postJSON(t, server.URL+"/v1/token", "", map[string]string{"access_token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGenerate(t *testing.T) {
	server, cfg, provider := newTestServer(t, nil)

	resp := postJSON(t, server.URL+"/v1/prompts", bearer(t, cfg, auth.RoleGenerator), map[string]interface{}{
		"api_keys": "key-one\nkey-two, key-one",
		"topic":    "red lantern",
		"mode":     "2",
		"trend":    "Cyberpunk",
		"quantity": 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body generateResponse
	decode(t, resp, &body)
	assert.Equal(t, keypool.SourceManual, body.Source)
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, 3, body.Attempts)
	assert.Equal(t, 2, body.Remaining)
	require.Len(t, body.Results, 3)
	for i, r := range body.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, "a paper lantern at dusk", r.Text)
		assert.Equal(t, "Copy Space + Cyberpunk", r.Label)
		assert.NotContains(t, r.Credential, "key-")
	}
	assert.Equal(t, 3, provider.calls)
}

func TestGenerate_Rejections(t *testing.T) {
	server, cfg, provider := newTestServer(t, func(cfg *config.Config) {
		cfg.Dispatch.MaxQuantity = 5
	})
	generator := bearer(t, cfg, auth.RoleGenerator)

	tests := []struct {
		name   string
		authz  string
		body   map[string]interface{}
		status int
	}{
		{
			name:   "no token",
			body:   map[string]interface{}{"api_keys": "k", "topic": "t", "quantity": 1},
			status: http.StatusUnauthorized,
		},
		{
			name:   "viewer cannot generate",
			authz:  bearer(t, cfg, auth.RoleViewer),
			body:   map[string]interface{}{"api_keys": "k", "topic": "t", "quantity": 1},
			status: http.StatusForbidden,
		},
		{
			name:   "empty topic",
			authz:  generator,
			body:   map[string]interface{}{"api_keys": "k", "topic": "  ", "quantity": 1},
			status: http.StatusBadRequest,
		},
		{
			name:   "quantity too large",
			authz:  generator,
			body:   map[string]interface{}{"api_keys": "k", "topic": "t", "quantity": 6},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown mode",
			authz:  generator,
			body:   map[string]interface{}{"api_keys": "k", "topic": "t", "mode": "9", "quantity": 1},
			status: http.StatusBadRequest,
		},
		{
			name:   "no keys",
			authz:  generator,
			body:   map[string]interface{}{"api_keys": " , \n", "topic": "t", "quantity": 1},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown format",
			authz:  generator,
			body:   map[string]interface{}{"api_keys": "k", "topic": "t", "quantity": 1, "format": "pdf"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown field",
			authz:  generator,
			body:   map[string]interface{}{"api_keys": "k", "topic": "t", "quantity": 1, "keys": "x"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/v1/prompts", tt.authz, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Zero(t, provider.calls, "rejected requests must not reach the provider")
}

func TestGenerate_ExhaustedReturnsPartialResults(t *testing.T) {
	server, cfg, _ := newTestServer(t, nil)

	resp := postJSON(t, server.URL+"/v1/prompts", bearer(t, cfg, auth.RoleGenerator), map[string]interface{}{
		"api_keys": "bad-one, bad-two",
		"topic":    "lantern",
		"quantity": 2,
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body generateResponse
	decode(t, resp, &body)
	assert.Empty(t, body.Results)
	assert.Zero(t, body.Remaining)
	assert.Contains(t, body.Error, "all credentials exhausted")
}

func TestGenerate_TextDownload(t *testing.T) {
	server, cfg, _ := newTestServer(t, nil)

	resp := postJSON(t, server.URL+"/v1/prompts", bearer(t, cfg, auth.RoleGenerator), map[string]interface{}{
		"api_keys": "key-one",
		"topic":    "red lantern",
		"quantity": 2,
		"format":   "txt",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="prompts_red_lantern.txt"`)
	assert.NotEmpty(t, resp.Header.Get("X-Run-Id"))

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "1. a paper lantern at dusk\n\n2. a paper lantern at dusk\n\n", buf.String())
}

func TestGenerate_SecretsTakePrecedence(t *testing.T) {
	server, cfg, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Provider.SecretKeys = "secret-key"
	})

	resp := postJSON(t, server.URL+"/v1/prompts", bearer(t, cfg, auth.RoleGenerator), map[string]interface{}{
		"api_keys": "bad-pasted",
		"topic":    "lantern",
		"quantity": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body generateResponse
	decode(t, resp, &body)
	assert.Equal(t, keypool.SourceSecrets, body.Source)
	assert.Len(t, body.Results, 1)
}

func TestValidateKeys(t *testing.T) {
	server, cfg, _ := newTestServer(t, nil)

	resp := postJSON(t, server.URL+"/v1/keys/validate", bearer(t, cfg, auth.RoleViewer), map[string]string{
		"api_keys": "good-key, bad-key",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Source      string `json:"source"`
		Valid       int    `json:"valid"`
		Credentials []struct {
			Credential string `json:"credential"`
			Status     string `json:"status"`
			Model      string `json:"model"`
		} `json:"credentials"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "manual", body.Source)
	assert.Equal(t, 1, body.Valid)
	require.Len(t, body.Credentials, 2)
	assert.Equal(t, "valid", body.Credentials[0].Status)
	assert.Equal(t, "stub-flash", body.Credentials[0].Model)
	assert.Equal(t, "invalid", body.Credentials[1].Status)
	assert.Empty(t, body.Credentials[1].Model)
	for _, c := range body.Credentials {
		assert.NotContains(t, c.Credential, "key")
	}
}

func TestGenerate_ConcurrentRequestsAreSerialised(t *testing.T) {
	server, cfg, provider := newTestServer(t, func(cfg *config.Config) {
		cfg.Provider.SecretKeys = "k1,k2"
	})
	provider.delay = 50 * time.Millisecond

	body, err := json.Marshal(map[string]interface{}{"topic": "lantern", "quantity": 2})
	require.NoError(t, err)
	authz := bearer(t, cfg, auth.RoleGenerator)

	const requests = 3
	statuses := make(chan int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/prompts", bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			req.Header.Set("Authorization", authz)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 1, provider.maxInFlight, "provider calls overlapped")
	assert.Equal(t, requests*2, provider.calls)
	// Each batch rotates k1, k2 in turn; batches never interleave.
	for i := 0; i < len(provider.keys); i += 2 {
		assert.Equal(t, []string{"k1", "k2"}, provider.keys[i:i+2])
	}
}
