package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is the project-local config file searched for upward
// from the working directory
const LocalConfigName = ".prompt-executor.toml"

// Config holds all application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	LLM       LLMConfig       `toml:"llm"`
	Contract  ContractConfig  `toml:"contract"`
	Prompts   PromptsConfig   `toml:"prompts"`
	Retention RetentionConfig `toml:"retention"`
	Web       WebConfig       `toml:"web"`
	Notify    NotifyConfig    `toml:"notify"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	OutputDir    string `toml:"output_dir"`
	DatabasePath string `toml:"database_path"`
	StaticDir    string `toml:"static_dir"`
}

// LLMConfig holds provider settings. API keys are never read from or
// written to the config file.
type LLMConfig struct {
	Provider           string `toml:"provider"`
	Model              string `toml:"model"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	MaxTokens          int    `toml:"max_tokens"`
	OpenAIBaseURL      string `toml:"openai_base_url"`
	AnthropicBaseURL   string `toml:"anthropic_base_url"`
	StaticResponsePath string `toml:"static_response_path"`

	OpenAIAPIKey    string `toml:"-"`
	AnthropicAPIKey string `toml:"-"`
}

// ContractConfig selects the output contract document
type ContractConfig struct {
	SchemaPath string `toml:"schema_path"` // empty uses the embedded contract
}

// PromptsConfig holds prompt template settings
type PromptsConfig struct {
	OverrideDir string `toml:"override_dir"`
}

// RetentionConfig controls pruning of the run history
type RetentionConfig struct {
	Cron       string `toml:"cron"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// WebConfig holds HTTP server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// NotifyConfig controls run completion notifications
type NotifyConfig struct {
	SlackWebhookURL string `toml:"slack_webhook_url"`
	Desktop         bool   `toml:"desktop"`
}

// Enabled reports whether any notification channel is configured
func (n NotifyConfig) Enabled() bool {
	return n.SlackWebhookURL != "" || n.Desktop
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			OutputDir:    "output",
			DatabasePath: filepath.Join(home, ".prompt-executor", "runs.db"),
		},
		LLM: LLMConfig{
			Provider:         "openai",
			TimeoutSeconds:   120,
			MaxTokens:        4096,
			OpenAIBaseURL:    "https://api.openai.com/v1",
			AnthropicBaseURL: "https://api.anthropic.com",
		},
		Retention: RetentionConfig{
			Cron:       "0 3 * * *",
			MaxAgeDays: 30,
		},
		Web: WebConfig{
			Port: 3000,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.StaticDir = ExpandPath(cfg.General.StaticDir)
	cfg.LLM.StaticResponsePath = ExpandPath(cfg.LLM.StaticResponsePath)
	cfg.Contract.SchemaPath = ExpandPath(cfg.Contract.SchemaPath)
	cfg.Prompts.OverrideDir = ExpandPath(cfg.Prompts.OverrideDir)

	return cfg, nil
}

// LoadWithLocalFallback loads the explicit path when given, otherwise the
// nearest project-local config, otherwise the user config
func LoadWithLocalFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// ApplyEnv overlays process-level settings. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LLM_PROVIDER"); ok && v != "" {
		c.LLM.Provider = v
	}
	if v, ok := lookup("LLM_MODEL"); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok {
		c.LLM.OpenAIAPIKey = v
	}
	if v, ok := lookup("ANTHROPIC_API_KEY"); ok {
		c.LLM.AnthropicAPIKey = v
	}
	if v, ok := lookup("SLACK_WEBHOOK_URL"); ok && v != "" {
		c.Notify.SlackWebhookURL = v
	}
	if v, ok := lookup("EXECUTOR_OUTPUT_DIR"); ok && v != "" {
		c.General.OutputDir = ExpandPath(v)
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Web.Port = port
	}
	return nil
}

// Save writes the configuration as TOML to path, creating parent dirs
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Addr returns host:port for the HTTP server
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "prompt-executor", "config.toml")
}

// FindLocalConfig walks up from the working directory looking for
// LocalConfigName. Returns "" when none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
