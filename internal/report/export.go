package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/sysrev/internal/extraction"
)

// Format is a download format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "json", "markdown" or "md".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported format: %q (want json or markdown)", s)
	}
}

// Download is a file ready to be written or served.
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Export builds the download for data in the given format. markdown is
// reused when non-empty; otherwise it is rendered from data.
func Export(format Format, data map[string]any, markdown string) (*Download, error) {
	switch format {
	case FormatJSON:
		body, err := JSON(data)
		if err != nil {
			return nil, err
		}
		return &Download{Filename: "extraction.json", ContentType: "application/json", Body: body}, nil
	case FormatMarkdown:
		if markdown == "" {
			markdown = Markdown(data)
		}
		return &Download{Filename: "extraction.md", ContentType: "text/markdown", Body: []byte(markdown)}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %q", format)
	}
}

// JSON encodes data with two-space indentation, keys in catalog order and
// non-ASCII text left unescaped. Keys outside the catalog follow, sorted.
func JSON(data map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ordered(data, extraction.TopLevelKeys(), true)); err != nil {
		return nil, fmt.Errorf("failed to encode extraction: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// orderedObject marshals its keys in a fixed order.
type orderedObject struct {
	keys   []string
	values map[string]any
}

func ordered(data map[string]any, order []string, top bool) orderedObject {
	sectionFields := make(map[string][]string)
	if top {
		for _, sec := range extraction.Sections() {
			keys := make([]string, len(sec.Fields))
			for i, fld := range sec.Fields {
				keys[i] = fld.Key
			}
			sectionFields[sec.Key] = keys
		}
	}

	obj := orderedObject{values: make(map[string]any, len(data))}
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		v, ok := data[k]
		if !ok {
			continue
		}
		seen[k] = true
		obj.keys = append(obj.keys, k)
		if nested, isMap := v.(map[string]any); isMap && sectionFields[k] != nil {
			obj.values[k] = ordered(nested, sectionFields[k], false)
		} else {
			obj.values[k] = v
		}
	}

	var extra []string
	for k := range data {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		obj.keys = append(obj.keys, k)
		obj.values[k] = data[k]
	}
	return obj
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
