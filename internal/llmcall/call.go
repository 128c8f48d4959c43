// Package llmcall records every model call an extraction makes so a stored
// result can be traced to the prompt, model and raw response behind it.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/sysrev/internal/providers"
)

// Call is one recorded model request.
type Call struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	LatencyMs    int       `json:"latency_ms"`
	ExtractionID string    `json:"extraction_id,omitempty"`

	// PromptKey names the registered prompt; PromptCID hashes the rendered
	// system prompt, which varies with the extraction options.
	PromptKey string `json:"prompt_key"`
	PromptCID string `json:"prompt_cid,omitempty"`

	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature,omitempty"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	CostUSD      float64  `json:"cost_usd"`
	FinishReason string   `json:"finish_reason,omitempty"`

	Response  string `json:"response"`
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RecordOptions carries what the provider result does not know.
type RecordOptions struct {
	ExtractionID string
	PromptKey    string
	PromptCID    string
	Temperature  *float64
}

// FromChatResult builds a Call from a provider result, or nil for a nil result.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}
	call := &Call{
		ID:           uuid.New().String(),
		RequestID:    result.RequestID,
		Timestamp:    time.Now().UTC(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		ExtractionID: opts.ExtractionID,
		PromptKey:    opts.PromptKey,
		PromptCID:    opts.PromptCID,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		Temperature:  opts.Temperature,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		CostUSD:      result.CostUSD,
		FinishReason: result.FinishReason,
		Response:     result.Content,
		Success:      result.Success,
	}
	if !result.Success {
		call.ErrorType = result.ErrorType
		call.Error = result.ErrorMessage
	}
	return call
}
