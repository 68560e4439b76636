package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	TypeOpenAI = "openai"

	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAITimeout        = 60 * time.Second
)

// OpenAIProvider implements Provider for OpenAI-compatible chat completion APIs
// using the official SDK. SDK retries are disabled; rotation handles retries.
type OpenAIProvider struct {
	httpClient *http.Client
	baseURL    string
	catalog    ModelCatalog
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(config Config) (Provider, error) {
	baseURL := openAIDefaultBaseURL
	if config.BaseURL != "" {
		baseURL = strings.TrimRight(config.BaseURL, "/")
	}

	timeout := openAITimeout
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	catalog := ModelCatalog{
		Default:   "gpt-4o-mini",
		Preferred: []string{"mini", "gpt-4o"},
		Fallbacks: []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"},
	}
	if config.DefaultModel != "" {
		catalog.Default = config.DefaultModel
	}

	return &OpenAIProvider{
		httpClient: &http.Client{
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
func (p *OpenAIProvider) Type() string {
	return TypeOpenAI
}

// Catalog returns the OpenAI model catalogue
func (p *OpenAIProvider) Catalog() ModelCatalog {
	return p.catalog
}

func (p *OpenAIProvider) client(apiKey string) openai.Client {
	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(p.baseURL+"/"),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	)
}

// Generate sends one chat completion with the prompt as the user message
func (p *OpenAIProvider) Generate(ctx context.Context, apiKey string, req GenerateRequest) (*GenerateResponse, error) {
	if apiKey == "" {
		return nil, &Error{Kind: KindInvalidCredential, Provider: TypeOpenAI, Message: ErrMissingAPIKey.Error(), Err: ErrMissingAPIKey}
	}

	start := time.Now()
	model := req.Model
	if model == "" {
		model = p.catalog.Default
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	client := p.client(apiKey)
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &Error{Kind: KindUnknown, Provider: TypeOpenAI, StatusCode: http.StatusOK, Message: "empty choices"}
	}

	return &GenerateResponse{
		Text:            resp.Choices[0].Message.Content,
		Model:           model,
		ProviderLatency: time.Since(start),
		InputTokens:     int(resp.Usage.PromptTokens),
		OutputTokens:    int(resp.Usage.CompletionTokens),
	}, nil
}

// ListModels returns the models visible to apiKey
func (p *OpenAIProvider) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	if apiKey == "" {
		return nil, &Error{Kind: KindInvalidCredential, Provider: TypeOpenAI, Message: ErrMissingAPIKey.Error(), Err: ErrMissingAPIKey}
	}

	client := p.client(apiKey)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:                 m.ID,
			DisplayName:        m.ID,
			SupportsGeneration: isOpenAIChatModel(m.ID),
			Experimental:       isExperimentalName(m.ID),
		})
	}
	return models, nil
}

// Close cleans up resources
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       classify(apiErr.StatusCode, apiErr.Code+" "+apiErr.Message),
			Provider:   TypeOpenAI,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return transportError(TypeOpenAI, fmt.Errorf("request failed: %w", err))
}

// isOpenAIChatModel filters out embedding, audio, image and moderation models.
func isOpenAIChatModel(id string) bool {
	lower := strings.ToLower(id)
	if !strings.HasPrefix(lower, "gpt-") && !strings.HasPrefix(lower, "chatgpt-") && !strings.HasPrefix(lower, "o1") && !strings.HasPrefix(lower, "o3") && !strings.HasPrefix(lower, "o4") {
		return false
	}
	for _, excluded := range []string{"audio", "realtime", "transcribe", "tts", "image", "search"} {
		if strings.Contains(lower, excluded) {
			return false
		}
	}
	return true
}
