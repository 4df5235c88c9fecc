package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
)

var testMessages = []domain.Message{
	domain.SystemMessage("return JSON"),
	domain.UserMessage("build a todo app"),
}

func TestNew_Selection(t *testing.T) {
	cfg := config.LLMConfig{OpenAIAPIKey: "o", AnthropicAPIKey: "a"}

	tests := []struct {
		provider string
		want     string
	}{
		{"", NameOpenAI},
		{"openai", NameOpenAI},
		{"unknown", NameOpenAI},
		{"anthropic", NameAnthropic},
		{"ANTHROPIC", NameAnthropic},
		{" anthropic ", NameAnthropic},
	}

	for _, tt := range tests {
		c := cfg
		c.Provider = tt.provider
		p, err := New(c)
		if err != nil {
			t.Fatalf("New(%q) error = %v", tt.provider, err)
		}
		if p.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.provider, p.Name(), tt.want)
		}
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	for _, name := range []string{"openai", "anthropic"} {
		_, err := New(config.LLMConfig{Provider: name})
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("New(%q) error = %v, want ErrConfiguration", name, err)
		}
	}
}

func TestNew_DefaultModels(t *testing.T) {
	o, err := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if o.Model() != "gpt-5" {
		t.Errorf("openai model = %q, want gpt-5", o.Model())
	}

	a, err := NewAnthropic(config.LLMConfig{AnthropicAPIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Model() != "claude-3-7-sonnet-latest" {
		t.Errorf("anthropic model = %q, want claude-3-7-sonnet-latest", a.Model())
	}

	o2, _ := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "k", Model: "override"})
	if o2.Model() != "override" {
		t.Errorf("openai model = %q, want override", o2.Model())
	}
}

func TestOpenAI_Generate(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"files\":[]}"}}]}`))
	}))
	defer server.Close()

	p, err := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "sk-test", OpenAIBaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatal(err)
	}

	text, err := p.Generate(context.Background(), testMessages)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != `{"files":[]}` {
		t.Errorf("text = %q", text)
	}

	if got["model"] != "gpt-5" {
		t.Errorf("model = %v, want gpt-5", got["model"])
	}
	if got["temperature"] != 1.0 {
		t.Errorf("temperature = %v, want 1", got["temperature"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", got["response_format"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("messages[0].role = %v, want system", first["role"])
	}
}

func TestOpenAI_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer server.Close()

	p, _ := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "k", OpenAIBaseURL: server.URL})
	_, err := p.Generate(context.Background(), testMessages)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestOpenAI_UpstreamStatus(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	p, _ := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "k", OpenAIBaseURL: server.URL})
	_, err := p.Generate(context.Background(), testMessages)
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %T, want *UpstreamError", err)
	}
	if upstream.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", upstream.Status)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", calls)
	}
}

func TestOpenAI_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p, _ := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "k", OpenAIBaseURL: server.URL})
	_, err := p.Generate(context.Background(), testMessages)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestAnthropic_Generate(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "sk-ant" {
			t.Errorf("x-api-key = %q", key)
		}
		if v := r.Header.Get("anthropic-version"); v != "2023-06-01" {
			t.Errorf("anthropic-version = %q", v)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"files\":[]}"}]}`))
	}))
	defer server.Close()

	p, err := NewAnthropic(config.LLMConfig{AnthropicAPIKey: "sk-ant", AnthropicBaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	text, err := p.Generate(context.Background(), testMessages)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != `{"files":[]}` {
		t.Errorf("text = %q", text)
	}

	system, _ := got["system"].([]any)
	if len(system) != 1 {
		t.Fatalf("system = %v, want one text block", got["system"])
	}
	if block, _ := system[0].(map[string]any); block["text"] != "return JSON" || block["type"] != "text" {
		t.Errorf("system[0] = %v, want text block \"return JSON\"", system[0])
	}
	if got["max_tokens"] != 4096.0 {
		t.Errorf("max_tokens = %v, want 4096", got["max_tokens"])
	}
	if got["temperature"] != 0.2 {
		t.Errorf("temperature = %v, want 0.2", got["temperature"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1 (user only)", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "user" {
		t.Errorf("messages[0].role = %v, want user", first["role"])
	}
}

func TestAnthropic_NoUserMessagesSendsEmptyList(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{}"}]}`))
	}))
	defer server.Close()

	p, _ := NewAnthropic(config.LLMConfig{AnthropicAPIKey: "k", AnthropicBaseURL: server.URL})
	if _, err := p.Generate(context.Background(), []domain.Message{domain.SystemMessage("only system")}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	msgs, ok := got["messages"].([]any)
	if !ok {
		t.Fatalf("messages = %#v, want a JSON array", got["messages"])
	}
	if len(msgs) != 0 {
		t.Errorf("messages = %d, want 0", len(msgs))
	}
}

func TestAnthropic_UpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
	}))
	defer server.Close()

	p, _ := NewAnthropic(config.LLMConfig{AnthropicAPIKey: "k", AnthropicBaseURL: server.URL})
	_, err := p.Generate(context.Background(), testMessages)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstream.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", upstream.Status)
	}
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestAnthropic_NonTextBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"tool_use"}]}`))
	}))
	defer server.Close()

	p, _ := NewAnthropic(config.LLMConfig{AnthropicAPIKey: "k", AnthropicBaseURL: server.URL})
	_, err := p.Generate(context.Background(), testMessages)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	p, _ := NewOpenAI(config.LLMConfig{OpenAIAPIKey: "k", OpenAIBaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, testMessages)
	if !errors.Is(err, ErrProvider) {
		t.Errorf("error = %v, want ErrProvider", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response.json")
	if err := os.WriteFile(path, []byte(`{"files":[]}`), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := New(config.LLMConfig{Provider: "static", StaticResponsePath: path})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != NameStatic {
		t.Errorf("Name() = %q, want static", p.Name())
	}
	text, err := p.Generate(context.Background(), testMessages)
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"files":[]}` {
		t.Errorf("text = %q", text)
	}
}

func TestStatic_MissingPath(t *testing.T) {
	_, err := NewStatic(config.LLMConfig{})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}
