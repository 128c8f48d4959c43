package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/sysrev/internal/providers"
)

// ParseOutput decodes model output into a JSON object. If the content does
// not parse as-is, it is re-parsed once after stripping surrounding
// whitespace and backticks, with code-fence and brace recovery.
func ParseOutput(content string) (json.RawMessage, map[string]any, error) {
	if data, err := decodeObject([]byte(content)); err == nil {
		return json.RawMessage(content), data, nil
	}

	trimmed := strings.TrimFunc(content, func(r rune) bool {
		return r == '`' || unicode.IsSpace(r)
	})
	raw, err := providers.ParseStructuredJSON(trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	data, err := decodeObject(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return raw, data, nil
}

// decodeObject decodes exactly one JSON object, keeping numbers as written.
func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

// ValidationMessages flattens a schema validation error into one line per
// violated location.
func ValidationMessages(err error) []string {
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var out []string
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+v.Message)
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
