// Package openai implements enhancement.Provider against the OpenAI chat
// completions API. It is the default remote enhancement backend.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/longscribe/enhancement"
	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/provider"
)

const (
	// ProviderName is the registered name for the OpenAI enhancement provider.
	ProviderName = "openai"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Config holds configuration for the OpenAI enhancement provider.
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey  string        `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	Model   string        `json:"model" yaml:"model" mapstructure:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Provider implements enhancement.Provider using OpenAI's chat completions API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new OpenAI enhancement provider.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Factory returns a provider.Factory that creates OpenAI Provider instances
// from a generic config map.
func Factory() provider.Factory[enhancement.Provider] {
	return func(cfg map[string]any) (enhancement.Provider, error) {
		oc := Config{}
		if v, ok := cfg["base_url"].(string); ok {
			oc.BaseURL = v
		}
		if v, ok := cfg["api_key"].(string); ok {
			oc.APIKey = v
		}
		if v, ok := cfg["model"].(string); ok {
			oc.Model = v
		}
		if v, ok := cfg["timeout"].(time.Duration); ok {
			oc.Timeout = v
		}
		if oc.APIKey == "" {
			return nil, fmt.Errorf("openai enhancement: api_key is required")
		}
		return NewProvider(oc), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable reports whether the provider is configured with an API key.
func (p *Provider) IsAvailable(_ context.Context) bool {
	return p.cfg.APIKey != ""
}

// Enhance sends the combined text through the chat completions endpoint.
func (p *Provider) Enhance(ctx context.Context, req enhancement.EnhancementRequest) (string, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	chatReq := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: enhancement.SystemPrompt(req)},
			{Role: "user", Content: enhancement.UserPrompt(req)},
		},
	}
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", apperrors.EnhancementBackend(ProviderName, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.EnhancementBackend(ProviderName, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return "", apperrors.EnhancementBackend(ProviderName, fmt.Errorf("send request: %w", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", apperrors.EnhancementBackend(ProviderName,
			fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(respBody)))
	}

	var resp chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", apperrors.EnhancementBackend(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.EnhancementBackend(ProviderName, fmt.Errorf("response contained no choices"))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// --- internal OpenAI API types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
