package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrEmptyStructuredOutput is returned when the model produced no content.
var ErrEmptyStructuredOutput = errors.New("empty structured output")

// ParseStructuredJSON finds the single JSON value in model output. It tries
// the content as-is, then without a markdown code fence, then the span from
// the first opening brace or bracket to the last matching close. The value
// is returned re-encoded compactly with numbers kept as written.
func ParseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyStructuredOutput
	}

	tried := make(map[string]bool, 3)
	for _, candidate := range []string{content, unfence(content), outermostJSON(content)} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || tried[candidate] {
			continue
		}
		tried[candidate] = true

		v, err := decodeSingle([]byte(candidate))
		if err != nil {
			continue
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize structured output: %w", err)
		}
		return out, nil
	}
	return nil, errors.New("failed to parse structured JSON")
}

// decodeSingle decodes exactly one JSON value with json.Number for numbers.
func decodeSingle(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// unfence returns the body of a ```-fenced block, or "" when content is not fenced.
func unfence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	_, body, ok := strings.Cut(content, "\n")
	if !ok {
		return ""
	}
	body = strings.TrimSpace(body)
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}

// outermostJSON slices from the first '{' or '[' to the last matching closer.
func outermostJSON(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return ""
	}
	return content[start : end+1]
}

// SchemaValidator checks parsed output against a compiled JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles schemaRaw, which may be a bare schema, the
// {"name","strict","schema"} envelope, or a {"json_schema":{...}} wrapper.
func CompileSchema(schemaRaw json.RawMessage) (*SchemaValidator, error) {
	core, err := unwrapSchema(schemaRaw)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(core)); err != nil {
		return nil, fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile structured schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate reports whether parsed matches the schema. A failure wraps a
// *jsonschema.ValidationError.
func (v *SchemaValidator) Validate(parsed json.RawMessage) error {
	doc, err := decodeSingle(parsed)
	if err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

// ValidateStructuredJSON compiles schemaRaw and validates parsed against it.
// An empty schema or document skips validation.
func ValidateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}
	v, err := CompileSchema(schemaRaw)
	if err != nil {
		return err
	}
	return v.Validate(parsed)
}

func unwrapSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var wrapper struct {
		Schema     json.RawMessage `json:"schema"`
		JSONSchema *struct {
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(schemaRaw, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid structured schema JSON: %w", err)
	}
	switch {
	case len(wrapper.Schema) > 0:
		return wrapper.Schema, nil
	case wrapper.JSONSchema != nil && len(wrapper.JSONSchema.Schema) > 0:
		return wrapper.JSONSchema.Schema, nil
	}
	return schemaRaw, nil
}
