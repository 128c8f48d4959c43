package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

// Config holds sysrev configuration.
// Stored at: ~/.sysrev/config.yaml or ./config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string `mapstructure:"type" yaml:"type"`                   // "openai", "openrouter", "anthropic"
	Model     string `mapstructure:"model" yaml:"model"`                 // Default model for this provider
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`             // API key (supports ${ENV_VAR} syntax)
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"` // Optional endpoint override
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"`       // Requests per minute
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg holds the extraction settings used when a request leaves them unset.
type DefaultsCfg struct {
	LLMProvider     string  `mapstructure:"llm_provider" yaml:"llm_provider"`
	Model           string  `mapstructure:"model" yaml:"model"` // Empty uses the provider's model
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	MaxChars        int     `mapstructure:"max_chars" yaml:"max_chars"`
	ForceEnglish    bool    `mapstructure:"force_english" yaml:"force_english"`
	AllowUnknown    bool    `mapstructure:"allow_unknown" yaml:"allow_unknown"`
	DownloadFormat  string  `mapstructure:"download_format" yaml:"download_format"`
	Save            bool    `mapstructure:"save" yaml:"save"`
}

// ServerCfg configures `sysrev serve`.
type ServerCfg struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           string `mapstructure:"port" yaml:"port"`
	MaxUploadMB    int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// StorageCfg configures the extraction database.
type StorageCfg struct {
	// DBPath is the SQLite file. Empty means {home}/sysrev.db.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// Limits on user-tunable generation settings.
const (
	MinTemperature     = 0.0
	MaxTemperature     = 1.0
	MinMaxOutputTokens = 512
	MaxMaxOutputTokens = 200_000
)

const defaultModel = "gpt-4.1-mini"

// DefaultConfig returns configuration with sensible defaults.
// OPENAI_MODEL overrides the default OpenAI model.
func DefaultConfig() *Config {
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultModel
	}
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     model,
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 60,
				Enabled:   true,
			},
			"openrouter": {
				Type:      "openrouter",
				Model:     "openai/gpt-4.1-mini",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 60,
				Enabled:   true,
			},
			"anthropic": {
				Type:      "anthropic",
				Model:     "claude-sonnet-4-5",
				APIKey:    "${ANTHROPIC_API_KEY}",
				RateLimit: 50,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider:     "openai",
			Temperature:     0.2,
			MaxOutputTokens: 5000,
			MaxChars:        150_000,
			ForceEnglish:    true,
			AllowUnknown:    true,
			DownloadFormat:  "json",
			Save:            true,
		},
		Server: ServerCfg{
			Host:           "127.0.0.1",
			Port:           "8080",
			MaxUploadMB:    50,
			RequestTimeout: 300,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// DefaultModel returns the model used when a request names none: the
// configured default, or the default provider's model.
func (c *Config) DefaultModel() string {
	if c.Defaults.Model != "" {
		return c.Defaults.Model
	}
	if p, ok := c.LLMProviders[c.Defaults.LLMProvider]; ok {
		return p.Model
	}
	return ""
}

var validProviderTypes = map[string]bool{"openai": true, "openrouter": true, "anthropic": true}

// Validate checks ranges and cross references. All problems are reported.
func (c *Config) Validate() error {
	var errs []error

	d := c.Defaults
	if d.Temperature < MinTemperature || d.Temperature > MaxTemperature {
		errs = append(errs, fmt.Errorf("defaults.temperature must be between %.1f and %.1f, got %g",
			MinTemperature, MaxTemperature, d.Temperature))
	}
	if d.MaxOutputTokens < MinMaxOutputTokens || d.MaxOutputTokens > MaxMaxOutputTokens {
		errs = append(errs, fmt.Errorf("defaults.max_output_tokens must be between %d and %d, got %d",
			MinMaxOutputTokens, MaxMaxOutputTokens, d.MaxOutputTokens))
	}
	if d.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("defaults.max_chars must be positive, got %d", d.MaxChars))
	}
	switch d.DownloadFormat {
	case "json", "markdown":
	default:
		errs = append(errs, fmt.Errorf("defaults.download_format must be json or markdown, got %q", d.DownloadFormat))
	}
	if _, ok := c.LLMProviders[d.LLMProvider]; !ok {
		errs = append(errs, fmt.Errorf("defaults.llm_provider %q is not configured in llm_providers", d.LLMProvider))
	}

	names := make([]string, 0, len(c.LLMProviders))
	for name := range c.LLMProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.LLMProviders[name]
		if !validProviderTypes[p.Type] {
			errs = append(errs, fmt.Errorf("llm_providers.%s.type %q is not one of openai, openrouter, anthropic", name, p.Type))
		}
		if p.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("llm_providers.%s.rate_limit must not be negative", name))
		}
	}

	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}

	return errors.Join(errs...)
}
