package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAnthropicClient_Chat(t *testing.T) {
	t.Run("forced tool carries the schema", func(t *testing.T) {
		var body map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/messages" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if key := r.Header.Get("X-Api-Key"); key != "test-key" {
				t.Errorf("unexpected api key: %s", key)
			}
			raw, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Errorf("decode request: %v", err)
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "msg_1",
				"type": "message",
				"role": "assistant",
				"model": "claude-sonnet-4-5",
				"content": [
					{"type": "tool_use", "id": "toolu_1", "name": "test_extraction", "input": {"ok": true}}
				],
				"stop_reason": "tool_use",
				"usage": {"input_tokens": 40, "output_tokens": 10}
			}`))
		}))
		defer server.Close()

		client := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
		temp := 0.2
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{
				{Role: "system", Content: "You are an expert."},
				{Role: "user", Content: "Analyze."},
			},
			Temperature: &temp,
			MaxTokens:   5000,
			ResponseFormat: &ResponseFormat{
				Type:       "json_schema",
				JSONSchema: json.RawMessage(testSchemaEnvelope),
			},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		if body["max_tokens"] != float64(5000) {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}
		system, _ := body["system"].([]any)
		if len(system) != 1 {
			t.Errorf("system = %v", body["system"])
		}
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Fatalf("tools = %v", body["tools"])
		}
		tool, _ := tools[0].(map[string]any)
		if tool["name"] != "test_extraction" {
			t.Errorf("tool name = %v", tool["name"])
		}
		schema, _ := tool["input_schema"].(map[string]any)
		if diff := cmp.Diff([]any{"ok"}, schema["required"]); diff != "" {
			t.Errorf("input_schema.required mismatch (-want +got):\n%s", diff)
		}
		choice, _ := body["tool_choice"].(map[string]any)
		if choice["type"] != "tool" || choice["name"] != "test_extraction" {
			t.Errorf("tool_choice = %v", body["tool_choice"])
		}

		var parsed map[string]any
		if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
			t.Fatalf("ParsedJSON invalid: %v", err)
		}
		if diff := cmp.Diff(map[string]any{"ok": true}, parsed); diff != "" {
			t.Errorf("ParsedJSON mismatch (-want +got):\n%s", diff)
		}
		if result.TotalTokens != 50 {
			t.Errorf("TotalTokens = %d, want 50", result.TotalTokens)
		}
		if result.FinishReason != "tool_use" {
			t.Errorf("FinishReason = %q", result.FinishReason)
		}
	})

	t.Run("plain text without schema", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
				"content": [{"type": "text", "text": "hello"}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 3, "output_tokens": 1}
			}`))
		}))
		defer server.Close()

		client := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Content != "hello" {
			t.Errorf("Content = %q", result.Content)
		}
		if result.ParsedJSON != nil {
			t.Errorf("ParsedJSON = %s, want nil", result.ParsedJSON)
		}
	})
}
