package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.LLM.Provider != "openai" {
		t.Errorf("LLM.Provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.LLM.TimeoutSeconds != 120 {
		t.Errorf("LLM.TimeoutSeconds = %d, want 120", cfg.LLM.TimeoutSeconds)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("LLM.MaxTokens = %d, want 4096", cfg.LLM.MaxTokens)
	}
	if cfg.General.OutputDir != "output" {
		t.Errorf("General.OutputDir = %q, want output", cfg.General.OutputDir)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("Web.Port = %d, want 3000", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
	if cfg.Retention.Cron != "0 3 * * *" {
		t.Errorf("Retention.Cron = %q, want 0 3 * * *", cfg.Retention.Cron)
	}
}

func TestLoad_FromFile(t *testing.T) {
	content := `
[general]
output_dir = "/srv/generated"

[llm]
provider = "anthropic"
model = "claude-test"

[web]
port = 9000

[notify]
desktop = true
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.OutputDir != "/srv/generated" {
		t.Errorf("OutputDir = %q, want /srv/generated", cfg.General.OutputDir)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-test" {
		t.Errorf("Model = %q, want claude-test", cfg.LLM.Model)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	if !cfg.Notify.Desktop || !cfg.Notify.Enabled() {
		t.Error("Notify.Desktop should be enabled")
	}
	// Untouched sections keep defaults
	if cfg.LLM.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d, want 120", cfg.LLM.TimeoutSeconds)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("Web.Port = %d, want 3000", cfg.Web.Port)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeTempConfig(t, "[general\noutput_dir ="))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_APIKeysIgnoredInFile(t *testing.T) {
	content := `
[llm]
OpenAIAPIKey = "from-file"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		t.Errorf("OpenAIAPIKey = %q, want empty", cfg.LLM.OpenAIAPIKey)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LLM_PROVIDER":        "anthropic",
		"LLM_MODEL":           "m-1",
		"OPENAI_API_KEY":      "sk-o",
		"ANTHROPIC_API_KEY":   "sk-a",
		"PORT":                "4100",
		"EXECUTOR_OUTPUT_DIR": "/tmp/out",
		"SLACK_WEBHOOK_URL":   "https://hooks.example/x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "m-1" {
		t.Errorf("Model = %q, want m-1", cfg.LLM.Model)
	}
	if cfg.LLM.OpenAIAPIKey != "sk-o" || cfg.LLM.AnthropicAPIKey != "sk-a" {
		t.Errorf("keys = %q/%q", cfg.LLM.OpenAIAPIKey, cfg.LLM.AnthropicAPIKey)
	}
	if cfg.Web.Port != 4100 {
		t.Errorf("Web.Port = %d, want 4100", cfg.Web.Port)
	}
	if cfg.General.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir = %q, want /tmp/out", cfg.General.OutputDir)
	}
	if cfg.Notify.SlackWebhookURL != "https://hooks.example/x" {
		t.Errorf("SlackWebhookURL = %q", cfg.Notify.SlackWebhookURL)
	}
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "PORT" {
			return "eighty", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestApplyEnv_EmptyValuesKeepConfig(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) { return "", true })
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("Web.Port = %d, want 3000", cfg.Web.Port)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.LLM.Model = "gpt-test"
	cfg.LLM.OpenAIAPIKey = "secret"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("saved config must not contain API keys")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLM.Model != "gpt-test" {
		t.Errorf("Model = %q, want gpt-test", loaded.LLM.Model)
	}
}

func TestWebConfig_Addr(t *testing.T) {
	w := WebConfig{Host: "0.0.0.0", Port: 3000}
	if got := w.Addr(); got != "0.0.0.0:3000" {
		t.Errorf("Addr() = %q, want 0.0.0.0:3000", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
		{"", ""},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\noutput_dir = \"/local\""), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	// Should find config in parent
	found := FindLocalConfig()
	if found != localConfig {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}
}

func TestFindLocalConfig_NotFound(t *testing.T) {
	root := t.TempDir()

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	found := FindLocalConfig()
	if found != "" {
		t.Errorf("FindLocalConfig() = %q, want empty string", found)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	explicitPath := writeTempConfig(t, "[general]\noutput_dir = \"/explicit\"\n")

	cfg, err := LoadWithLocalFallback(explicitPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.OutputDir != "/explicit" {
		t.Errorf("OutputDir = %q, want /explicit", cfg.General.OutputDir)
	}
}

func TestLoadWithLocalFallback_LocalConfig(t *testing.T) {
	root := t.TempDir()
	localConfig := filepath.Join(root, LocalConfigName)

	if err := os.WriteFile(localConfig, []byte("[general]\noutput_dir = \"/from-local\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.OutputDir != "/from-local" {
		t.Errorf("OutputDir = %q, want /from-local", cfg.General.OutputDir)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
