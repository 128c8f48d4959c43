package extraction

import (
	"bytes"
	"encoding/json"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/sysrev/internal/providers"
)

func TestSchema_RoundTrip(t *testing.T) {
	first, err := json.Marshal(Schema())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(first, &decoded))

	second, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestSchema_Compiles(t *testing.T) {
	raw, err := json.Marshal(Schema())
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("extraction.json", bytes.NewReader(raw)))
	_, err = compiler.Compile("extraction.json")
	require.NoError(t, err)
}

// Every object must list exactly its properties as required and forbid extras.
func TestSchema_StrictObjects(t *testing.T) {
	var walk func(path string, node map[string]any)
	walk = func(path string, node map[string]any) {
		if node["type"] != "object" {
			return
		}
		assert.Equal(t, false, node["additionalProperties"], "%s: additionalProperties", path)

		props, ok := node["properties"].(map[string]any)
		require.True(t, ok, "%s: properties", path)

		propKeys := make([]string, 0, len(props))
		for k := range props {
			propKeys = append(propKeys, k)
		}
		sort.Strings(propKeys)

		var reqKeys []string
		for _, r := range node["required"].([]any) {
			reqKeys = append(reqKeys, r.(string))
		}
		sort.Strings(reqKeys)

		if diff := cmp.Diff(propKeys, reqKeys); diff != "" {
			t.Errorf("%s: required != properties (-props +required):\n%s", path, diff)
		}

		for k, v := range props {
			if child, ok := v.(map[string]any); ok {
				walk(path+"."+k, child)
			}
		}
	}
	walk("$", Schema())
}

func TestSchema_Shape(t *testing.T) {
	s := Schema()
	props := s["properties"].(map[string]any)

	assert.Len(t, props, 9)
	assert.Equal(t, map[string]any{"type": "string"}, props[SummaryKey])

	info := props["study_information"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, []any{"integer", "string"}, info["number_of_patients"].(map[string]any)["type"])
	assert.Equal(t, "Author(s) and year of publication", info["study"].(map[string]any)["description"])

	clinical := props["clinical_features"].(map[string]any)["properties"].(map[string]any)
	assert.Len(t, clinical, 27)
}

func TestSchema_ValidatesSampleRecord(t *testing.T) {
	record := map[string]any{}
	for _, sec := range Sections() {
		obj := map[string]any{}
		for _, fld := range sec.Fields {
			obj[fld.Key] = "unknown"
		}
		record[sec.Key] = obj
	}
	record[SummaryKey] = "A short summary."
	record["study_information"].(map[string]any)["number_of_patients"] = 12

	parsed, err := json.Marshal(record)
	require.NoError(t, err)

	envelope, err := SchemaJSON()
	require.NoError(t, err)
	require.NoError(t, providers.ValidateStructuredJSON(envelope, parsed))

	delete(record, "outcomes")
	missing, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Error(t, providers.ValidateStructuredJSON(envelope, missing))
}

func TestResponseFormat(t *testing.T) {
	rf, err := ResponseFormat()
	require.NoError(t, err)
	assert.Equal(t, "json_schema", rf.Type)

	var envelope struct {
		Name   string         `json:"name"`
		Strict bool           `json:"strict"`
		Schema map[string]any `json:"schema"`
	}
	require.NoError(t, json.Unmarshal(rf.JSONSchema, &envelope))
	assert.Equal(t, SchemaName, envelope.Name)
	assert.True(t, envelope.Strict)
	assert.Equal(t, "object", envelope.Schema["type"])
}

func TestTopLevelKeys(t *testing.T) {
	keys := TopLevelKeys()
	require.Len(t, keys, 9)
	assert.Equal(t, "study_information", keys[0])
	assert.Equal(t, SummaryKey, keys[len(keys)-1])
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want Summary
	}{
		{
			name: "full",
			data: map[string]any{"study_information": map[string]any{
				"study": " Smith 2020 ", "design": "RCT", "country": "Spain",
			}},
			want: Summary{Study: "Smith 2020", Design: "RCT", Country: "Spain"},
		},
		{name: "missing section", data: map[string]any{}, want: Summary{}},
		{
			name: "non-string values",
			data: map[string]any{"study_information": map[string]any{"study": 12}},
			want: Summary{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.data))
		})
	}
}
