package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/jackzampolin/sysrev/internal/extraction"
	"github.com/jackzampolin/sysrev/internal/providers"
)

// SampleRecord returns a complete extraction record: every field "unknown"
// except a Smith 2020 RCT headline, a numeric patient count and a summary.
func SampleRecord() map[string]any {
	record := map[string]any{}
	for _, sec := range extraction.Sections() {
		obj := map[string]any{}
		for _, fld := range sec.Fields {
			obj[fld.Key] = "unknown"
		}
		record[sec.Key] = obj
	}
	info := record["study_information"].(map[string]any)
	info["study"] = "Smith 2020"
	info["design"] = "RCT"
	info["country"] = "Spain"
	info["number_of_patients"] = 42
	record[extraction.SummaryKey] = "Small trial."
	return record
}

// SampleJSON is SampleRecord encoded as JSON.
func SampleJSON(t testing.TB) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(SampleRecord())
	if err != nil {
		t.Fatalf("marshal sample record: %v", err)
	}
	return b
}

// MockRegistry returns a provider registry holding a single mock client
// that answers with response.
func MockRegistry(response json.RawMessage) (*providers.Registry, *providers.MockClient) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = response
	reg := providers.NewRegistry()
	reg.RegisterLLM(providers.MockClientName, mock)
	return reg, mock
}

// BuildPDF writes a minimal PDF with one Helvetica text line per page.
func BuildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	fontID := 3 + 2*len(pages)
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>", 4+2*i, fontID))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
