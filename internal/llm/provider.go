// Package llm turns a system+user message list into raw model text.
//
// Two hosted variants are supported (OpenAI chat completions and the
// Anthropic messages API) plus a static variant that replays a fixed
// document for dry runs. Providers are immutable once constructed.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
)

var (
	// ErrConfiguration reports a provider that cannot be constructed,
	// typically a missing credential
	ErrConfiguration = errors.New("provider configuration error")
	// ErrProvider reports a failed or unusable upstream response
	ErrProvider = errors.New("provider error")
)

// Provider names accepted by New
const (
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
	NameStatic    = "static"
)

const defaultTimeout = 120 * time.Second

// Provider generates raw text from an ordered message list
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []domain.Message) (string, error)
}

// New selects a provider variant from cfg.Provider. Unknown or empty names
// fall back to OpenAI; the static variant must be named explicitly.
func New(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case NameAnthropic:
		return NewAnthropic(cfg)
	case NameStatic:
		return NewStatic(cfg)
	default:
		return NewOpenAI(cfg)
	}
}

func httpClient(cfg config.LLMConfig) *http.Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// wrapSDKError maps an SDK call failure onto ErrProvider. status is the
// HTTP status of an API error response, or 0 when no response arrived.
// A cancelled context stays visible to errors.Is.
func wrapSDKError(ctx context.Context, name string, err error, status int) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s request: %w", ErrProvider, name, ctxErr)
	}
	if status != 0 {
		return &UpstreamError{Provider: name, Status: status, Message: strings.TrimSpace(err.Error())}
	}
	return fmt.Errorf("%w: %s request: %w", ErrProvider, name, err)
}

// UpstreamError is a non-2xx response from a hosted provider
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s upstream %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return ErrProvider }
