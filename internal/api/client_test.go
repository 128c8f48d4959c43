package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		case "/json-error":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"extraction not found"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	var resp struct{ Status string }
	require.NoError(t, c.Get(ctx, "/ok", &resp))
	assert.Equal(t, "ok", resp.Status)

	err := c.Get(ctx, "/json-error", &resp)
	require.Error(t, err)
	assert.Equal(t, "server error (404): extraction not found", err.Error())

	err = c.Get(ctx, "/plain", &resp)
	require.Error(t, err)
	assert.Equal(t, "server error (502): upstream down", err.Error())
}

func TestClient_GetRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		w.Header().Set("Content-Disposition", `attachment; filename="extraction.md"`)
		w.Write([]byte("# Study Extraction\n"))
	}))
	defer srv.Close()

	body, header, err := NewClient(srv.URL).GetRaw(context.Background(), "/download")
	require.NoError(t, err)
	assert.Equal(t, "# Study Extraction\n", string(body))
	assert.Equal(t, "text/markdown", header.Get("Content-Type"))
}

func TestClient_PostAndMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := map[string]string{"content_type": r.Header.Get("Content-Type")}
		if strings.HasPrefix(out["content_type"], "multipart/form-data") {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			out["model"] = r.FormValue("model")
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			out["filename"] = hdr.Filename
			out["file"] = string(data)
		} else {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			out["text"] = body["text"]
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	var got map[string]string
	require.NoError(t, c.Post(ctx, "/api/extractions", map[string]string{"text": "hello"}, &got))
	assert.Equal(t, "application/json", got["content_type"])
	assert.Equal(t, "hello", got["text"])

	got = nil
	require.NoError(t, c.PostMultipart(ctx, "/api/extractions", map[string]string{"model": "gpt-x"},
		"file", "paper.pdf", strings.NewReader("%PDF-1.4"), &got))
	assert.Equal(t, "gpt-x", got["model"])
	assert.Equal(t, "paper.pdf", got["filename"])
	assert.Equal(t, "%PDF-1.4", got["file"])
}

func TestClient_WaitReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.WaitReady(context.Background(), 5, time.Millisecond))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-100)
	err := c.WaitReady(context.Background(), 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
