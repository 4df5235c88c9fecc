package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
)

// StaticProvider replays a fixed document regardless of the messages
type StaticProvider struct {
	text string
}

// NewStatic reads cfg.StaticResponsePath once at construction
func NewStatic(cfg config.LLMConfig) (*StaticProvider, error) {
	if cfg.StaticResponsePath == "" {
		return nil, fmt.Errorf("static: %w: static_response_path not set", ErrConfiguration)
	}
	data, err := os.ReadFile(cfg.StaticResponsePath)
	if err != nil {
		return nil, fmt.Errorf("static: %w: %v", ErrConfiguration, err)
	}
	return &StaticProvider{text: string(data)}, nil
}

// NewStaticText returns a provider that always answers text
func NewStaticText(text string) *StaticProvider {
	return &StaticProvider{text: text}
}

// Name returns "static"
func (p *StaticProvider) Name() string { return NameStatic }

// Generate returns the fixed document
func (p *StaticProvider) Generate(ctx context.Context, _ []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: static: %w", ErrProvider, err)
	}
	return p.text, nil
}
