package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackzampolin/sysrev/internal/providers"
)

// Schema returns the JSON Schema for one extraction record.
//
// Strict structured output requires additionalProperties false on every
// object and every property listed in required.
func Schema() map[string]any {
	props := make(map[string]any, len(sections)+1)
	required := make([]any, 0, len(sections)+1)

	for _, s := range sections {
		fieldProps := make(map[string]any, len(s.Fields))
		fieldReq := make([]any, 0, len(s.Fields))
		for _, fld := range s.Fields {
			fieldProps[fld.Key] = fieldSchema(fld)
			fieldReq = append(fieldReq, fld.Key)
		}
		props[s.Key] = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           fieldProps,
			"required":             fieldReq,
		}
		required = append(required, s.Key)
	}

	props[SummaryKey] = map[string]any{"type": "string"}
	required = append(required, SummaryKey)

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func fieldSchema(fld Field) map[string]any {
	out := map[string]any{"type": "string"}
	if fld.IntegerOrString {
		out["type"] = []any{"integer", "string"}
	}
	if fld.Description != "" {
		out["description"] = fld.Description
	}
	return out
}

// SchemaJSON returns the structured-output envelope:
// {"name": SchemaName, "strict": true, "schema": {...}}.
func SchemaJSON() (json.RawMessage, error) {
	b, err := json.Marshal(map[string]any{
		"name":   SchemaName,
		"strict": true,
		"schema": Schema(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extraction schema: %w", err)
	}
	return b, nil
}

// ResponseFormat returns the json_schema response format for providers.
func ResponseFormat() (*providers.ResponseFormat, error) {
	raw, err := SchemaJSON()
	if err != nil {
		return nil, err
	}
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: raw,
	}, nil
}

// Summary is the headline of an extraction used in listings.
type Summary struct {
	Study   string `json:"study"`
	Design  string `json:"design"`
	Country string `json:"country"`
}

// Summarize pulls the study, design and country out of a decoded record.
// Missing or non-string values yield empty strings.
func Summarize(data map[string]any) Summary {
	info, _ := data["study_information"].(map[string]any)
	return Summary{
		Study:   stringField(info, "study"),
		Design:  stringField(info, "design"),
		Country: stringField(info, "country"),
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
