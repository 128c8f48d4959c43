package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/sysrev/internal/report"
	"github.com/jackzampolin/sysrev/internal/store"
)

// Record converts the result into its stored form.
func (r *Result) Record() *store.Extraction {
	summary := r.Summary()
	data := r.Raw
	if len(data) == 0 {
		data, _ = report.JSON(r.Data)
	}
	return &store.Extraction{
		ID:               r.ID,
		CreatedAt:        r.CreatedAt,
		Source:           r.Source,
		SourceName:       r.SourceName,
		Title:            r.Title,
		Study:            summary.Study,
		Design:           summary.Design,
		Country:          summary.Country,
		Provider:         r.Provider,
		Model:            r.Model,
		Temperature:      r.Temperature,
		InputChars:       r.InputChars,
		Truncated:        r.Truncated,
		Data:             data,
		Markdown:         r.Markdown,
		Validation:       r.Validation,
		PromptTokens:     r.Usage.PromptTokens,
		CompletionTokens: r.Usage.CompletionTokens,
		CostUSD:          r.Usage.CostUSD,
		LLMCallID:        r.LLMCallID,
	}
}

// FromRecord rebuilds a result from its stored form.
func FromRecord(e *store.Extraction) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("stored extraction %s has invalid data: %w", e.ID, err)
	}
	return &Result{
		ID:          e.ID,
		Source:      e.Source,
		SourceName:  e.SourceName,
		Title:       e.Title,
		Provider:    e.Provider,
		Model:       e.Model,
		Temperature: e.Temperature,
		Data:        data,
		Raw:         e.Data,
		Markdown:    e.Markdown,
		InputChars:  e.InputChars,
		Truncated:   e.Truncated,
		Validation:  e.Validation,
		Usage: Usage{
			PromptTokens:     e.PromptTokens,
			CompletionTokens: e.CompletionTokens,
			TotalTokens:      e.PromptTokens + e.CompletionTokens,
			CostUSD:          e.CostUSD,
		},
		LLMCallID: e.LLMCallID,
		Saved:     true,
		CreatedAt: e.CreatedAt,
	}, nil
}
