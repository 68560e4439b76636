package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	TypeGemini = "gemini"

	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiTimeout        = 60 * time.Second
	geminiKeyHeader      = "x-goog-api-key"
	geminiModelPrefix    = "models/"
	geminiGenerateMethod = "generateContent"
	maxErrorBodyBytes    = 4096
)

// GeminiProvider implements Provider for the Google Generative Language REST API.
type GeminiProvider struct {
	client  *http.Client
	baseURL string
	catalog ModelCatalog
}

// NewGeminiProvider creates a new Gemini provider instance
func NewGeminiProvider(config Config) (Provider, error) {
	baseURL := geminiDefaultBaseURL
	if config.BaseURL != "" {
		baseURL = strings.TrimRight(config.BaseURL, "/")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	timeout := geminiTimeout
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	catalog := ModelCatalog{
		Default:   "gemini-1.5-flash",
		Preferred: []string{"flash", "pro"},
		Fallbacks: []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"},
	}
	if config.DefaultModel != "" {
		catalog.Default = config.DefaultModel
	}

	return &GeminiProvider{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
		catalog: catalog,
	}, nil
}

// Type returns the provider type
func (p *GeminiProvider) Type() string {
	return TypeGemini
}

// Catalog returns the Gemini model catalogue
func (p *GeminiProvider) Catalog() ModelCatalog {
	return p.catalog
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int    `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate calls models/{model}:generateContent
func (p *GeminiProvider) Generate(ctx context.Context, apiKey string, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()

	model := strings.TrimPrefix(req.Model, geminiModelPrefix)
	if model == "" {
		model = p.catalog.Default
	}

	payload := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.JSON || req.MaxOutputTokens > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxOutputTokens}
		if req.JSON {
			payload.GenerationConfig.ResponseMimeType = "application/json"
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s%s:%s", p.baseURL, geminiModelPrefix, url.PathEscape(model), geminiGenerateMethod)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := authorize(ctx, TypeGemini, NewHeaderAPIKeyAuth(apiKey, geminiKeyHeader, ""), httpReq); err != nil {
		return nil, err
	}

	respBody, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, transportError(TypeGemini, fmt.Errorf("failed to decode response: %w", err))
	}

	var text strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		reason := "no candidates"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + parsed.PromptFeedback.BlockReason
		} else if len(parsed.Candidates) > 0 && parsed.Candidates[0].FinishReason != "" {
			reason = "finish reason " + parsed.Candidates[0].FinishReason
		}
		return nil, &Error{Kind: KindUnknown, Provider: TypeGemini, StatusCode: http.StatusOK, Message: "empty response (" + reason + ")"}
	}

	return &GenerateResponse{
		Text:            text.String(),
		Model:           model,
		ProviderLatency: time.Since(start),
		InputTokens:     parsed.UsageMetadata.PromptTokenCount,
		OutputTokens:    parsed.UsageMetadata.CandidatesTokenCount,
	}, nil
}

type geminiModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	Description                string   `json:"description"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

type geminiListModelsResponse struct {
	Models        []geminiModel `json:"models"`
	NextPageToken string        `json:"nextPageToken"`
}

// ListModels pages through GET /models
func (p *GeminiProvider) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	var models []ModelInfo
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("pageSize", "1000")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if err := authorize(ctx, TypeGemini, NewHeaderAPIKeyAuth(apiKey, geminiKeyHeader, ""), httpReq); err != nil {
			return nil, err
		}

		respBody, err := p.do(httpReq)
		if err != nil {
			return nil, err
		}

		var page geminiListModelsResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, transportError(TypeGemini, fmt.Errorf("failed to decode model list: %w", err))
		}

		for _, m := range page.Models {
			models = append(models, ModelInfo{
				ID:                 strings.TrimPrefix(m.Name, geminiModelPrefix),
				DisplayName:        m.DisplayName,
				SupportsGeneration: containsString(m.SupportedGenerationMethods, geminiGenerateMethod),
				Experimental:       isExperimentalName(m.Name) || isExperimentalName(m.DisplayName),
			})
		}

		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

// do sends the request and returns the body of a 200 response, or a classified *Error.
func (p *GeminiProvider) do(httpReq *http.Request) ([]byte, error) {
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(TypeGemini, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &Error{
			Kind:       classify(resp.StatusCode, string(errBody)),
			Provider:   TypeGemini,
			StatusCode: resp.StatusCode,
			Message:    geminiErrorMessage(errBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(TypeGemini, fmt.Errorf("failed to read response: %w", err))
	}
	return respBody, nil
}

// geminiErrorMessage pulls error.message out of a Google API error envelope.
func geminiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Status != "" {
			return envelope.Error.Status + ": " + envelope.Error.Message
		}
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// Close cleans up resources
func (p *GeminiProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func isExperimentalName(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "experimental") || strings.Contains(lower, "preview") {
		return true
	}
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool { return r == '-' || r == '/' || r == ' ' || r == '_' }) {
		if token == "exp" || strings.HasPrefix(token, "exp0") || strings.HasPrefix(token, "exp1") {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
