package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
)

const (
	anthropicDefaultModel   = "claude-3-7-sonnet-latest"
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicMaxTokens      = 4096
	anthropicTemperature    = 0.2
)

// AnthropicProvider calls the messages API with the system prompt lifted
// into its own field
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic builds the Anthropic variant. The API key is required.
func NewAnthropic(cfg config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic: %w: missing ANTHROPIC_API_KEY", ErrConfiguration)
	}
	base := cfg.AnthropicBaseURL
	if base == "" {
		base = anthropicDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithBaseURL(base),
		option.WithHTTPClient(httpClient(cfg)),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens}, nil
}

// Name returns "anthropic"
func (p *AnthropicProvider) Name() string { return NameAnthropic }

// Model returns the model sent with each request
func (p *AnthropicProvider) Model() string { return p.model }

// Generate sends the system message separately and only user messages in
// the conversation. The first content block must be text.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	users := domain.UserMessages(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(anthropicTemperature),
		Messages:    make([]anthropic.MessageParam, 0, len(users)),
	}
	if system := domain.SystemContent(messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range users {
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", wrapSDKError(ctx, NameAnthropic, err, status)
	}
	if len(resp.Content) == 0 || resp.Content[0].Type != "text" {
		return "", fmt.Errorf("%w: anthropic: unexpected response", ErrProvider)
	}
	return resp.Content[0].Text, nil
}
