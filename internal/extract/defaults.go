package extract

import (
	"fmt"

	"github.com/jackzampolin/sysrev/internal/config"
	promptx "github.com/jackzampolin/sysrev/internal/prompts/extraction"
)

// DefaultsFromConfig maps the configured defaults onto extractor defaults.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	d := cfg.Defaults
	temp := d.Temperature
	return Defaults{
		Provider:    d.LLMProvider,
		Model:       cfg.DefaultModel(),
		Temperature: &temp,
		MaxTokens:   d.MaxOutputTokens,
		MaxChars:    d.MaxChars,
		Prompt: promptx.Options{
			ForceEnglish: d.ForceEnglish,
			AllowUnknown: d.AllowUnknown,
		},
	}
}

// Validate checks the request overrides against the configured limits.
func (r Request) Validate() error {
	if t := r.Temperature; t != nil && (*t < config.MinTemperature || *t > config.MaxTemperature) {
		return fmt.Errorf("%w: temperature must be between %.1f and %.1f, got %g",
			ErrInvalidOptions, config.MinTemperature, config.MaxTemperature, *t)
	}
	if n := r.MaxTokens; n != 0 && (n < config.MinMaxOutputTokens || n > config.MaxMaxOutputTokens) {
		return fmt.Errorf("%w: max_output_tokens must be between %d and %d, got %d",
			ErrInvalidOptions, config.MinMaxOutputTokens, config.MaxMaxOutputTokens, n)
	}
	if r.MaxChars < 0 {
		return fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalidOptions, r.MaxChars)
	}
	return nil
}
