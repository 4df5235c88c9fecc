package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
)

const (
	openAIDefaultModel   = "gpt-5"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAITemperature    = 1.0
)

// OpenAIProvider calls the chat completions endpoint in JSON mode
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAI builds the OpenAI variant. The API key is required.
func NewOpenAI(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai: %w: missing OPENAI_API_KEY", ErrConfiguration)
	}
	base := cfg.OpenAIBaseURL
	if base == "" {
		base = openAIDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithBaseURL(base),
		option.WithHTTPClient(httpClient(cfg)),
		option.WithMaxRetries(0),
	)
	return &OpenAIProvider{client: client, model: model}, nil
}

// Name returns "openai"
func (p *OpenAIProvider) Name() string { return NameOpenAI }

// Model returns the model sent with each request
func (p *OpenAIProvider) Model() string { return p.model }

// Generate forwards the full message list and returns the first choice
func (p *OpenAIProvider) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(openAITemperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		} else {
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", wrapSDKError(ctx, NameOpenAI, err, status)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: openai: empty response", ErrProvider)
	}
	return resp.Choices[0].Message.Content, nil
}
