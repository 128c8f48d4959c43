package config

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// Entry is one scalar configuration key with its default and meaning.
type Entry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
}

// DefaultEntries returns the scalar configuration keys. Each is registered
// as a viper default so SYSREV_* environment variables can override it.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// ===================
		// Extraction defaults
		// ===================
		{
			Key:         "defaults.llm_provider",
			Value:       d.Defaults.LLMProvider,
			Description: "LLM provider used when a request names none",
		},
		{
			Key:         "defaults.model",
			Value:       d.Defaults.Model,
			Description: "Model override; empty uses the provider's model",
		},
		{
			Key:         "defaults.temperature",
			Value:       d.Defaults.Temperature,
			Description: "Sampling temperature (0-1)",
		},
		{
			Key:         "defaults.max_output_tokens",
			Value:       d.Defaults.MaxOutputTokens,
			Description: "Maximum completion tokens (512-200000)",
		},
		{
			Key:         "defaults.max_chars",
			Value:       d.Defaults.MaxChars,
			Description: "Article text is truncated to this many characters",
		},
		{
			Key:         "defaults.force_english",
			Value:       d.Defaults.ForceEnglish,
			Description: "Require English output regardless of article language",
		},
		{
			Key:         "defaults.allow_unknown",
			Value:       d.Defaults.AllowUnknown,
			Description: "Write 'unknown' for missing fields instead of leaving them blank",
		},
		{
			Key:         "defaults.download_format",
			Value:       d.Defaults.DownloadFormat,
			Description: "Download format when none is requested (json or markdown)",
		},
		{
			Key:         "defaults.save",
			Value:       d.Defaults.Save,
			Description: "Persist extractions made through the server",
		},

		// ===================
		// Server
		// ===================
		{
			Key:         "server.host",
			Value:       d.Server.Host,
			Description: "Address the server binds to",
		},
		{
			Key:         "server.port",
			Value:       d.Server.Port,
			Description: "Port the server listens on",
		},
		{
			Key:         "server.max_upload_mb",
			Value:       d.Server.MaxUploadMB,
			Description: "Maximum upload size in megabytes",
		},
		{
			Key:         "server.request_timeout_seconds",
			Value:       d.Server.RequestTimeout,
			Description: "Upper bound on one extraction request",
		},

		// ===================
		// Storage
		// ===================
		{
			Key:         "storage.db_path",
			Value:       d.Storage.DBPath,
			Description: "SQLite database file; empty uses the home directory",
		},
	}
}

// GetDefault returns the default entry for a config key, or nil.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}
