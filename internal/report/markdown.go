// Package report renders extraction records as markdown and builds the
// JSON and Markdown downloads.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackzampolin/sysrev/internal/extraction"
)

// Placeholder stands in for missing, null or blank values.
const Placeholder = "—"

// Title heads every report.
const Title = "Study Extraction"

// Markdown renders a decoded extraction record. Every catalog field is
// rendered whether or not the model returned it.
func Markdown(data map[string]any) string {
	var b strings.Builder
	b.WriteString("# " + Title + "\n")

	for _, sec := range extraction.Sections() {
		values, _ := data[sec.Key].(map[string]any)
		fmt.Fprintf(&b, "\n## %s\n", sec.Title)
		for _, fld := range sec.Fields {
			fmt.Fprintf(&b, "- **%s:** %s\n", fld.Label, FormatValue(values[fld.Key]))
		}
	}

	fmt.Fprintf(&b, "\n## %s\n%s\n", extraction.SummaryTitle, FormatValue(data[extraction.SummaryKey]))
	return b.String()
}

// FormatValue renders one leaf value for the report.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return Placeholder
	case string:
		if strings.TrimSpace(val) == "" {
			return Placeholder
		}
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(buf.String())
	}
}
