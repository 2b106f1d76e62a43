package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chat-relay/internal/integrations/paramstore"
)

const (
	defaultProvider = "gemini"
	defaultPort     = "3001"
	defaultTimeout  = 30 * time.Second
)

// ProviderConfig is one provider's slice of the configuration. Zero limits
// select the provider's own defaults.
type ProviderConfig struct {
	APIKey          string `yaml:"api_key"`
	AccountID       string `yaml:"account_id"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	MaxHistoryTurns int    `yaml:"max_history_turns"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Provider     string        `yaml:"provider"`
	SystemPrompt string        `yaml:"system_prompt"`
	ParamPrefix  string        `yaml:"param_prefix"`
	Timeout      time.Duration `yaml:"timeout"`
	Port         string        `yaml:"port"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	LogLevel     string        `yaml:"log_level"`

	Gemini     ProviderConfig `yaml:"gemini"`
	Cloudflare ProviderConfig `yaml:"cloudflare"`
	OpenAI     ProviderConfig `yaml:"openai"`
	Anthropic  ProviderConfig `yaml:"anthropic"`
}

// Source supplies the inputs Load reads from. Zero fields fall back to the
// process environment and filesystem.
type Source struct {
	Getenv   func(string) string
	ReadFile func(string) ([]byte, error)
	// Params resolves secrets when a parameter prefix is configured.
	Params paramstore.Getter
}

// envBinding maps one provider's fields to environment variable names.
type envBinding struct {
	cfg                                          *ProviderConfig
	apiKey, accountID, model, baseURL, hist, out string
}

// Load layers defaults, the optional YAML file named by CONFIG_FILE,
// environment variables and finally SSM parameters under the prefix.
func Load(ctx context.Context, src Source) (Config, error) {
	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	readFile := src.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	cfg := Config{
		Provider: defaultProvider,
		Timeout:  defaultTimeout,
		Port:     defaultPort,
		LogLevel: "info",
	}

	if path := strings.TrimSpace(getenv("CONFIG_FILE")); path != "" {
		raw, err := readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg, getenv)

	if cfg.ParamPrefix != "" && src.Params != nil {
		if err := applyParams(ctx, &cfg, src.Params); err != nil {
			return Config{}, err
		}
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings shared by every provider. Missing credentials are
// not an error here: that provider just stays unusable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return errors.New("config: provider must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	return nil
}

func (c *Config) bindings() []envBinding {
	return []envBinding{
		{&c.Gemini, "GOOGLE_API_KEY", "", "GEMINI_MODEL", "GEMINI_BASE_URL", "GEMINI_MAX_HISTORY_TURNS", "GEMINI_MAX_OUTPUT_TOKENS"},
		{&c.Cloudflare, "CF_API_TOKEN", "CF_ACCOUNT_ID", "CF_MODEL", "CF_BASE_URL", "CF_MAX_HISTORY_TURNS", "CF_MAX_OUTPUT_TOKENS"},
		{&c.OpenAI, "OPENAI_API_KEY", "", "OPENAI_MODEL", "OPENAI_BASE_URL", "OPENAI_MAX_HISTORY_TURNS", "OPENAI_MAX_OUTPUT_TOKENS"},
		{&c.Anthropic, "ANTHROPIC_API_KEY", "", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL", "ANTHROPIC_MAX_HISTORY_TURNS", "ANTHROPIC_MAX_OUTPUT_TOKENS"},
	}
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setString(&cfg.Provider, getenv("PROVIDER"))
	setString(&cfg.SystemPrompt, getenv("SYSTEM_PROMPT"))
	setString(&cfg.ParamPrefix, getenv("PARAM_PREFIX"))
	setString(&cfg.Port, getenv("PORT"))
	setString(&cfg.MetricsAddr, getenv("METRICS_ADDR"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	if v := getenv("PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")

	for _, b := range cfg.bindings() {
		setString(&b.cfg.APIKey, getenv(b.apiKey))
		if b.accountID != "" {
			setString(&b.cfg.AccountID, getenv(b.accountID))
		}
		setString(&b.cfg.Model, getenv(b.model))
		setString(&b.cfg.BaseURL, getenv(b.baseURL))
		setInt(&b.cfg.MaxHistoryTurns, getenv(b.hist))
		setInt(&b.cfg.MaxOutputTokens, getenv(b.out))
	}
}

// applyParams reads "{prefix}/{provider}-token" secrets and the
// "{prefix}/system_prompt" parameter. Absent parameters are skipped.
func applyParams(ctx context.Context, cfg *Config, params paramstore.Getter) error {
	providers := []struct {
		id  string
		cfg *ProviderConfig
	}{
		{"gemini", &cfg.Gemini},
		{"cloudflare", &cfg.Cloudflare},
		{"openai", &cfg.OpenAI},
		{"anthropic", &cfg.Anthropic},
	}
	for _, p := range providers {
		secret, err := paramstore.GetSecret(ctx, params, cfg.ParamPrefix+"/"+p.id+"-token")
		if errors.Is(err, paramstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: load %s credentials: %w", p.id, err)
		}
		p.cfg.APIKey = secret.Token
		if secret.AccountID != "" {
			p.cfg.AccountID = secret.AccountID
		}
	}

	prompt, err := params.GetParameter(ctx, cfg.ParamPrefix+"/system_prompt")
	switch {
	case errors.Is(err, paramstore.ErrNotFound):
	case err != nil:
		return fmt.Errorf("config: load system prompt: %w", err)
	default:
		cfg.SystemPrompt = prompt
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v string) {
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = n
}
