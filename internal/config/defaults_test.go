package config

import (
	"errors"
	"testing"
)

func TestDefaultEntries(t *testing.T) {
	entries := DefaultEntries()

	if len(entries) == 0 {
		t.Fatal("DefaultEntries() returned empty slice")
	}

	requiredKeys := []string{
		"defaults.llm_provider",
		"defaults.model",
		"defaults.temperature",
		"defaults.max_output_tokens",
		"defaults.max_chars",
		"defaults.force_english",
		"defaults.allow_unknown",
		"defaults.download_format",
		"defaults.save",
		"server.host",
		"server.port",
		"server.max_upload_mb",
		"server.request_timeout_seconds",
		"storage.db_path",
	}

	keys := make(map[string]bool)
	for _, e := range entries {
		if keys[e.Key] {
			t.Errorf("duplicate key %s", e.Key)
		}
		keys[e.Key] = true
		if e.Description == "" {
			t.Errorf("key %s has no description", e.Key)
		}
		if err := ValidateKey(e.Key); err != nil {
			t.Errorf("key %s is invalid: %v", e.Key, err)
		}
	}

	for _, key := range requiredKeys {
		if !keys[key] {
			t.Errorf("DefaultEntries() missing required key: %s", key)
		}
	}
}

func TestGetDefault(t *testing.T) {
	t.Run("existing_key", func(t *testing.T) {
		entry := GetDefault("defaults.max_chars")
		if entry == nil {
			t.Fatal("GetDefault() returned nil for existing key")
		}
		if entry.Value != 150_000 {
			t.Errorf("GetDefault() Value = %v, want 150000", entry.Value)
		}
	})

	t.Run("request_timeout_seconds", func(t *testing.T) {
		entry := GetDefault("server.request_timeout_seconds")
		if entry == nil {
			t.Fatal("GetDefault() returned nil for server.request_timeout_seconds")
		}
		if entry.Value != 300 {
			t.Errorf("GetDefault() Value = %v, want 300", entry.Value)
		}
	})

	t.Run("non_existent_key", func(t *testing.T) {
		entry := GetDefault("does.not.exist")
		if entry != nil {
			t.Errorf("GetDefault() = %v, want nil for non-existent key", entry)
		}
	})
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"defaults.model", false},
		{"llm_providers.open-router.model", false},
		{"", true},
		{".leading", true},
		{"trailing.", true},
		{"has space", true},
		{"semi;colon", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}
