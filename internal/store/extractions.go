package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Extraction is a persisted extraction result.
type Extraction struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source"`
	SourceName string    `json:"source_name,omitempty"`
	Title      string    `json:"title,omitempty"`

	// Headline fields copied out of Data for listings.
	Study   string `json:"study,omitempty"`
	Design  string `json:"design,omitempty"`
	Country string `json:"country,omitempty"`

	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	InputChars  int      `json:"input_chars"`
	Truncated   bool     `json:"truncated"`

	Data       json.RawMessage `json:"data"`
	Markdown   string          `json:"markdown"`
	Validation []string        `json:"validation,omitempty"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	LLMCallID        string  `json:"llm_call_id,omitempty"`
}

// ListOptions pages through extractions, newest first.
type ListOptions struct {
	Limit  int
	Offset int
}

// SaveExtraction inserts or replaces an extraction.
func (s *DB) SaveExtraction(ctx context.Context, e *Extraction) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("extraction id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var validation sql.NullString
	if len(e.Validation) > 0 {
		b, err := json.Marshal(e.Validation)
		if err != nil {
			return fmt.Errorf("failed to encode validation: %w", err)
		}
		validation = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO extractions (
			id, created_at, source, source_name, title, study, design, country,
			provider, model, temperature, input_chars, truncated, data_json, markdown,
			validation_json, prompt_tokens, completion_tokens, cost_usd, llm_call_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC(), e.Source, nullString(e.SourceName), nullString(e.Title),
		nullString(e.Study), nullString(e.Design), nullString(e.Country),
		e.Provider, e.Model, nullFloat(e.Temperature), e.InputChars, e.Truncated,
		string(e.Data), e.Markdown, validation,
		e.PromptTokens, e.CompletionTokens, e.CostUSD, nullString(e.LLMCallID),
	)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	return nil
}

const extractionColumns = `id, created_at, source, source_name, title, study, design, country,
	provider, model, temperature, input_chars, truncated, data_json, markdown,
	validation_json, prompt_tokens, completion_tokens, cost_usd, llm_call_id`

// GetExtraction returns one extraction or ErrNotFound.
func (s *DB) GetExtraction(ctx context.Context, id string) (*Extraction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+extractionColumns+` FROM extractions WHERE id = ?`, id)
	e, err := scanExtraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction: %w", err)
	}
	return e, nil
}

// ListExtractions returns extractions newest first.
func (s *DB) ListExtractions(ctx context.Context, opts ListOptions) ([]Extraction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+extractionColumns+` FROM extractions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// DeleteExtraction removes an extraction or returns ErrNotFound.
func (s *DB) DeleteExtraction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM extractions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete extraction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete extraction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountExtractions returns the number of stored extractions.
func (s *DB) CountExtractions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extractions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count extractions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExtraction(row scanner) (*Extraction, error) {
	var (
		e                                         Extraction
		sourceName, title, study, design, country sql.NullString
		validation, llmCallID                     sql.NullString
		temperature                               sql.NullFloat64
		data                                      string
	)
	err := row.Scan(
		&e.ID, &e.CreatedAt, &e.Source, &sourceName, &title, &study, &design, &country,
		&e.Provider, &e.Model, &temperature, &e.InputChars, &e.Truncated, &data, &e.Markdown,
		&validation, &e.PromptTokens, &e.CompletionTokens, &e.CostUSD, &llmCallID,
	)
	if err != nil {
		return nil, err
	}

	e.SourceName = sourceName.String
	e.Title = title.String
	e.Study = study.String
	e.Design = design.String
	e.Country = country.String
	e.LLMCallID = llmCallID.String
	e.Data = json.RawMessage(data)
	if temperature.Valid {
		t := temperature.Float64
		e.Temperature = &t
	}
	if validation.Valid && validation.String != "" {
		if err := json.Unmarshal([]byte(validation.String), &e.Validation); err != nil {
			return nil, fmt.Errorf("invalid validation_json: %w", err)
		}
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
