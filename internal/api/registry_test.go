package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	method, path, use string
	needsInit         bool
}

func (e *fakeEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(e.use))
	}
}

func (e *fakeEndpoint) RequiresInit() bool { return e.needsInit }

func (e *fakeEndpoint) Command(func() string) *cobra.Command {
	if e.use == "" {
		return nil
	}
	return &cobra.Command{Use: e.use, RunE: func(*cobra.Command, []string) error { return nil }}
}

func TestRegistry_RegisterRoutes(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeEndpoint{method: "GET", path: "/health", use: "health"})
	r.Register(&fakeEndpoint{method: "GET", path: "/api/extractions", use: "extractions list", needsInit: true})

	mux := http.NewServeMux()
	r.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/extractions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegistry_BuildCommands(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeEndpoint{method: "GET", path: "/health", use: "health"})
	r.Register(&fakeEndpoint{method: "GET", path: "/metrics"})
	r.Register(&fakeEndpoint{method: "POST", path: "/api/extractions", use: "extractions create"})
	r.Register(&fakeEndpoint{method: "GET", path: "/api/extractions/{id}", use: "extractions get <id>"})
	r.Register(&fakeEndpoint{method: "GET", path: "/api/prompts/{key}", use: "prompt <key>"})

	root := r.BuildCommands(func() string { return "http://localhost:8080" })

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{"health": true, "extractions": true, "prompt": true}, names)

	cmd, _, err := root.Find([]string{"extractions", "get", "abc"})
	require.NoError(t, err)
	assert.Equal(t, "get <id>", cmd.Use)

	cmd, _, err = root.Find([]string{"extractions", "create"})
	require.NoError(t, err)
	assert.Equal(t, "create", cmd.Use)
	assert.Equal(t, "extractions", cmd.Parent().Name())
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"study": "Smith 2020", "patients": 42}

	var buf bytes.Buffer
	require.NoError(t, OutputTo(&buf, OutputFormatJSON, data))
	assert.JSONEq(t, `{"study":"Smith 2020","patients":42}`, buf.String())

	buf.Reset()
	require.NoError(t, OutputTo(&buf, OutputFormatYAML, data))
	assert.Equal(t, "patients: 42\nstudy: Smith 2020\n", buf.String())

	assert.Error(t, OutputTo(&buf, OutputFormat("xml"), data))
}

func TestSetOutputFormat(t *testing.T) {
	t.Cleanup(func() { globalOutputFormat = OutputFormatYAML })

	require.NoError(t, SetOutputFormat("json"))
	assert.Equal(t, OutputFormatJSON, GetOutputFormat())
	assert.Error(t, SetOutputFormat("xml"))
	assert.Equal(t, OutputFormatJSON, GetOutputFormat())
}
