package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/extract"
	"github.com/jackzampolin/sysrev/internal/extraction"
	"github.com/jackzampolin/sysrev/internal/llmcall"
	"github.com/jackzampolin/sysrev/internal/metrics"
	"github.com/jackzampolin/sysrev/internal/prompts"
	promptx "github.com/jackzampolin/sysrev/internal/prompts/extraction"
	"github.com/jackzampolin/sysrev/internal/providers"
	"github.com/jackzampolin/sysrev/internal/store"
	"github.com/jackzampolin/sysrev/internal/svcctx"
	"github.com/jackzampolin/sysrev/internal/testutil"
)

type harness struct {
	url      string
	client   *api.Client
	mock     *providers.MockClient
	db       *store.DB
	services *svcctx.Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	reg, mock := testutil.MockRegistry(testutil.SampleJSON(t))

	db, err := store.Open(filepath.Join(t.TempDir(), "sysrev.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	calls := llmcall.NewStore(db)
	collectors := metrics.New()
	extractor, err := extract.New(extract.Config{
		Clients:  reg,
		Store:    db,
		Recorder: llmcall.NewRecorder(calls, nil),
		Metrics:  collectors,
		Defaults: extract.Defaults{
			Provider:  providers.MockClientName,
			Model:     "mock-model",
			MaxTokens: 5000,
			Prompt:    promptx.DefaultOptions(),
		},
	})
	if err != nil {
		t.Fatalf("extract.New() error = %v", err)
	}

	promptRegistry := prompts.NewRegistry(nil)
	promptx.RegisterPrompts(promptRegistry)

	services := &svcctx.Services{
		Registry:     reg,
		Extractor:    extractor,
		Store:        db,
		LLMCallStore: calls,
		MetricsQuery: metrics.NewQuery(db),
		Metrics:      collectors,
		Prompts:      promptRegistry,
	}

	endpointRegistry := api.NewRegistry()
	for _, ep := range All() {
		endpointRegistry.Register(ep)
	}
	mux := http.NewServeMux()
	endpointRegistry.RegisterRoutes(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	}))
	t.Cleanup(srv.Close)

	return &harness{
		url:      srv.URL,
		client:   api.NewClient(srv.URL),
		mock:     mock,
		db:       db,
		services: services,
	}
}

func (h *harness) create(t *testing.T, body CreateExtractionRequest) *extract.Result {
	t.Helper()
	var res extract.Result
	if err := h.client.Post(context.Background(), "/api/extractions", body, &res); err != nil {
		t.Fatalf("create extraction: %v", err)
	}
	return &res
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	var resp HealthResponse
	if err := h.client.Get(context.Background(), "/health", &resp); err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var resp HealthResponse
	if err := h.client.Get(ctx, "/ready", &resp); err != nil {
		t.Fatalf("GET /ready error = %v", err)
	}
	if resp.Status != "ok" || resp.Store != "ok" || resp.Providers != "ok" {
		t.Errorf("ready = %+v, want all ok", resp)
	}

	h.services.Registry.UnregisterLLM(providers.MockClientName)
	err := h.client.Get(ctx, "/ready", &resp)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("GET /ready without providers error = %v, want 503", err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.create(t, CreateExtractionRequest{Text: "article"})

	var resp StatusResponse
	if err := h.client.Get(context.Background(), "/status", &resp); err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != providers.MockClientName {
		t.Errorf("Providers = %v, want [mock]", resp.Providers)
	}
	if resp.Defaults.Model != "mock-model" {
		t.Errorf("Defaults.Model = %q, want mock-model", resp.Defaults.Model)
	}
	if resp.Store.Extractions != 1 || resp.Store.Health != "healthy" {
		t.Errorf("Store = %+v, want 1 healthy extraction", resp.Store)
	}
	if resp.PromptCount != 2 {
		t.Errorf("PromptCount = %d, want 2", resp.PromptCount)
	}
}

func TestSchema(t *testing.T) {
	h := newHarness(t)
	var resp SchemaResponse
	if err := h.client.Get(context.Background(), "/api/schema", &resp); err != nil {
		t.Fatalf("GET /api/schema error = %v", err)
	}
	if resp.Name != extraction.SchemaName || !resp.Strict {
		t.Errorf("envelope = %q strict=%v", resp.Name, resp.Strict)
	}
	if len(resp.Sections) != len(extraction.Sections()) {
		t.Errorf("len(Sections) = %d, want %d", len(resp.Sections), len(extraction.Sections()))
	}
	if resp.Schema["additionalProperties"] != false {
		t.Errorf("root additionalProperties = %v, want false", resp.Schema["additionalProperties"])
	}
}

func TestPrompts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var list PromptsListResponse
	if err := h.client.Get(ctx, "/api/prompts", &list); err != nil {
		t.Fatalf("GET /api/prompts error = %v", err)
	}
	if len(list.Prompts) != 2 {
		t.Fatalf("len(Prompts) = %d, want 2", len(list.Prompts))
	}
	for _, p := range list.Prompts {
		if p.Hash == "" {
			t.Errorf("prompt %s has no hash", p.Key)
		}
	}

	var p prompts.EmbeddedPrompt
	if err := h.client.Get(ctx, "/api/prompts/"+promptx.UserPromptKey, &p); err != nil {
		t.Fatalf("GET prompt error = %v", err)
	}
	if len(p.Variables) != 1 || p.Variables[0] != "ArticleText" {
		t.Errorf("Variables = %v, want [ArticleText]", p.Variables)
	}

	err := h.client.Get(ctx, "/api/prompts/nope", &p)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("missing prompt error = %v, want 404", err)
	}
}

func TestCreateExtraction_JSONText(t *testing.T) {
	h := newHarness(t)
	temp := 0.5
	res := h.create(t, CreateExtractionRequest{
		Text: "A randomized trial.",
		Name: "smith-2020.txt",
		Options: ExtractionOptions{
			Temperature:     &temp,
			MaxOutputTokens: 1024,
		},
	})

	if res.ID == "" || !res.Saved {
		t.Errorf("ID = %q Saved = %v, want saved extraction", res.ID, res.Saved)
	}
	if res.Source != "text" || res.Title != "smith-2020" {
		t.Errorf("Source = %q Title = %q", res.Source, res.Title)
	}
	if !strings.HasPrefix(res.Markdown, "# Study Extraction") {
		t.Errorf("Markdown = %q", res.Markdown)
	}

	req := h.mock.LastRequest()
	if req.Temperature == nil || *req.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", req.Temperature)
	}
	if req.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", req.MaxTokens)
	}
}

func TestCreateExtraction_Multipart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pdf := testutil.BuildPDF("Enzyme replacement in five patients")
	var res extract.Result
	fields := map[string]string{"force_english": "false", "save": "false"}
	if err := h.client.PostMultipart(ctx, "/api/extractions", fields, "file", "trial-1.pdf", bytes.NewReader(pdf), &res); err != nil {
		t.Fatalf("multipart create error = %v", err)
	}
	if res.Source != "pdf" || res.SourceName != "trial-1.pdf" {
		t.Errorf("Source = %q SourceName = %q", res.Source, res.SourceName)
	}
	if res.Saved {
		t.Error("Saved = true, want false when save=false")
	}

	req := h.mock.LastRequest()
	if !strings.Contains(req.Messages[1].Content, "Enzyme replacement") {
		t.Errorf("user prompt missing PDF text: %q", req.Messages[1].Content)
	}
	if !strings.Contains(req.Messages[0].Content, "Output language should follow the input.") {
		t.Errorf("system prompt ignored force_english=false: %q", req.Messages[0].Content)
	}

	// Pasted text wins over the file.
	if err := h.client.PostMultipart(ctx, "/api/extractions", map[string]string{"text": "pasted body"}, "file", "trial-1.pdf", bytes.NewReader(pdf), &res); err != nil {
		t.Fatalf("multipart create error = %v", err)
	}
	if res.Source != "text" {
		t.Errorf("Source = %q, want text", res.Source)
	}
}

func TestCreateExtraction_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        func(t *testing.T) []byte
		setup       func(h *harness)
		wantStatus  int
		wantError   string
	}{
		{
			name:        "empty json",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{"text":"   "}`) },
			wantStatus:  http.StatusBadRequest,
			wantError:   "no article text provided",
		},
		{
			name:        "invalid json",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{`) },
			wantStatus:  http.StatusBadRequest,
			wantError:   "invalid request body",
		},
		{
			name:        "temperature out of range",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{"text":"x","options":{"temperature":1.5}}`) },
			wantStatus:  http.StatusBadRequest,
			wantError:   "temperature must be between",
		},
		{
			name:        "max tokens out of range",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{"text":"x","options":{"max_output_tokens":10}}`) },
			wantStatus:  http.StatusBadRequest,
			wantError:   "max_output_tokens must be between",
		},
		{
			name:        "unknown provider",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{"text":"x","options":{"provider":"nope"}}`) },
			wantStatus:  http.StatusBadRequest,
			wantError:   "unknown LLM provider",
		},
		{
			name:        "provider failure",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{"text":"x"}`) },
			setup:       func(h *harness) { h.mock.ShouldFail = true },
			wantStatus:  http.StatusBadGateway,
			wantError:   "model call failed",
		},
		{
			name:        "no structured output",
			contentType: "application/json",
			body:        func(t *testing.T) []byte { return []byte(`{"text":"x"}`) },
			setup: func(h *harness) {
				h.mock.ResponseJSON = nil
				h.mock.ResponseText = "  "
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "No structured output returned from the model.",
		},
		{
			name: "upload is not a pdf",
			body: func(t *testing.T) []byte {
				return multipartBody(t, "file", "notes.pdf", []byte("plain text"))
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "input is not a PDF file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			contentType := tt.contentType
			if contentType == "" {
				contentType = multipartContentType
			}

			resp, err := http.Post(h.url+"/api/extractions", contentType, bytes.NewReader(tt.body(t)))
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if !strings.Contains(errResp.Error, tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", errResp.Error, tt.wantError)
			}
		})
	}
}

const multipartBoundary = "sysrev-test-boundary"

var multipartContentType = "multipart/form-data; boundary=" + multipartBoundary

func multipartBody(t *testing.T, field, filename string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(multipartBoundary); err != nil {
		t.Fatal(err)
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return buf.Bytes()
}

func TestInputStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too large", fmt.Errorf("read: %w", &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{"fetch deadline", fmt.Errorf("HTTP request failed: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"bad input", errors.New("unsupported URL scheme"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inputStatus(tt.err); got != tt.want {
				t.Errorf("inputStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtractions_ListGetDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.create(t, CreateExtractionRequest{Text: "one"})
	second := h.create(t, CreateExtractionRequest{Text: "two"})

	var list ListExtractionsResponse
	if err := h.client.Get(ctx, "/api/extractions", &list); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if list.Total != 2 || len(list.Extractions) != 2 {
		t.Fatalf("list = %+v, want 2 extractions", list)
	}
	if list.Extractions[0].Study != "Smith 2020" {
		t.Errorf("Study = %q, want Smith 2020", list.Extractions[0].Study)
	}

	if err := h.client.Get(ctx, "/api/extractions?limit=1", &list); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if len(list.Extractions) != 1 || list.Total != 2 {
		t.Errorf("limited list = %d of %d, want 1 of 2", len(list.Extractions), list.Total)
	}

	var got extract.Result
	if err := h.client.Get(ctx, "/api/extractions/"+first.ID, &got); err != nil {
		t.Fatalf("get error = %v", err)
	}
	if got.ID != first.ID || got.Markdown != first.Markdown {
		t.Errorf("get returned %q, want %q with the same markdown", got.ID, first.ID)
	}

	if err := h.client.Delete(ctx, "/api/extractions/"+second.ID); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	err := h.client.Get(ctx, "/api/extractions/"+second.ID, &got)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("get deleted error = %v, want 404", err)
	}
	err = h.client.Delete(ctx, "/api/extractions/"+second.ID)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("delete twice error = %v, want 404", err)
	}
}

func TestDownload(t *testing.T) {
	h := newHarness(t)
	res := h.create(t, CreateExtractionRequest{Text: "article"})

	tests := []struct {
		query       string
		contentType string
		filename    string
		prefix      string
	}{
		{query: "", contentType: "application/json", filename: "extraction.json", prefix: "{\n  \"study_information\": {"},
		{query: "?format=json", contentType: "application/json", filename: "extraction.json", prefix: "{"},
		{query: "?format=markdown", contentType: "text/markdown", filename: "extraction.md", prefix: "# Study Extraction"},
	}
	for _, tt := range tests {
		t.Run("format"+tt.query, func(t *testing.T) {
			body, header, err := h.client.GetRaw(context.Background(), "/api/extractions/"+res.ID+"/download"+tt.query)
			if err != nil {
				t.Fatalf("download error = %v", err)
			}
			if got := header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			if got := header.Get("Content-Disposition"); !strings.Contains(got, tt.filename) {
				t.Errorf("Content-Disposition = %q, want %s", got, tt.filename)
			}
			if !strings.HasPrefix(string(body), tt.prefix) {
				t.Errorf("body starts %q, want prefix %q", string(body[:min(len(body), 40)]), tt.prefix)
			}
		})
	}

	_, _, err := h.client.GetRaw(context.Background(), "/api/extractions/"+res.ID+"/download?format=pdf")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("bad format error = %v, want 400", err)
	}
}

func TestLLMCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.create(t, CreateExtractionRequest{Text: "article"})

	var list LLMCallsResponse
	if err := h.client.Get(ctx, "/api/llmcalls?extraction_id="+res.ID, &list); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("Total = %d, want 1", list.Total)
	}
	call := list.Calls[0]
	if call.ID != res.LLMCallID || call.PromptKey != promptx.SystemPromptKey || !call.Success {
		t.Errorf("call = %+v", call)
	}

	var one LLMCallResponse
	if err := h.client.Get(ctx, "/api/llmcalls/"+call.ID, &one); err != nil {
		t.Fatalf("get error = %v", err)
	}
	if one.Call == nil || one.Call.ExtractionID != res.ID {
		t.Errorf("get call = %+v", one.Call)
	}

	for _, path := range []string{"/api/llmcalls?success=maybe", "/api/llmcalls?after=yesterday", "/api/llmcalls?limit=x"} {
		if err := h.client.Get(ctx, path, &list); err == nil || !strings.Contains(err.Error(), "400") {
			t.Errorf("GET %s error = %v, want 400", path, err)
		}
	}
	if err := h.client.Get(ctx, "/api/llmcalls/missing", &one); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("missing call error = %v, want 404", err)
	}
}

func TestUsage(t *testing.T) {
	h := newHarness(t)
	h.create(t, CreateExtractionRequest{Text: "one"})
	h.create(t, CreateExtractionRequest{Text: "two"})

	var summary metrics.Summary
	if err := h.client.Get(context.Background(), "/api/usage", &summary); err != nil {
		t.Fatalf("usage error = %v", err)
	}
	if summary.Count != 2 {
		t.Errorf("Count = %d, want 2", summary.Count)
	}
	if summary.TotalCostUSD <= 0 {
		t.Errorf("TotalCostUSD = %v, want > 0", summary.TotalCostUSD)
	}
	if _, ok := summary.CostByProvider[providers.MockClientName]; !ok {
		t.Errorf("CostByProvider = %v, want mock entry", summary.CostByProvider)
	}
}

func TestCommands(t *testing.T) {
	reg := api.NewRegistry()
	for _, ep := range All() {
		reg.Register(ep)
	}
	root := reg.BuildCommands(func() string { return "http://localhost" })

	for _, path := range [][]string{
		{"health"},
		{"ready"},
		{"status"},
		{"schema"},
		{"usage"},
		{"prompts", "list"},
		{"prompts", "get"},
		{"extractions", "create"},
		{"extractions", "list"},
		{"extractions", "get"},
		{"extractions", "download"},
		{"extractions", "delete"},
		{"llmcalls", "list"},
		{"llmcalls", "get"},
		{"swagger"},
	} {
		cmd, rest, err := root.Find(path)
		if err != nil || len(rest) != 0 || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found (got %v, rest %v, err %v)", path, cmd.Name(), rest, err)
		}
	}
}

func TestSwagger(t *testing.T) {
	t.Run("not generated", func(t *testing.T) {
		ep := &SwaggerEndpoint{SpecPath: filepath.Join(t.TempDir(), "missing.json")}
		rec := httptest.NewRecorder()
		ep.handler(rec, httptest.NewRequest(http.MethodGet, "/swagger.json", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("serves file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "swagger.json")
		if err := os.WriteFile(path, []byte(`{"swagger":"2.0","info":{"title":"Sysrev API"}}`), 0o644); err != nil {
			t.Fatal(err)
		}
		ep := &SwaggerEndpoint{SpecPath: path}
		rec := httptest.NewRecorder()
		ep.handler(rec, httptest.NewRequest(http.MethodGet, "/swagger.json", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.Contains(rec.Body.String(), "Sysrev API") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}
