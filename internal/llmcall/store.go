package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/sysrev/internal/store"
)

// Store provides access to LLM call records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new LLMCall store on an open database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db.SQL()}
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	ExtractionID string
	PromptKey    string
	Provider     string
	Model        string
	After        *time.Time
	Before       *time.Time
	Success      *bool
	Limit        int
	Offset       int
}

const callColumns = `id, timestamp, latency_ms, extraction_id, prompt_key, prompt_cid, request_id,
	provider, model, temperature, input_tokens, output_tokens, cost_usd, finish_reason,
	response, success, error_type, error`

// Save inserts a call record.
func (s *Store) Save(ctx context.Context, c *Call) error {
	var temp sql.NullFloat64
	if c.Temperature != nil {
		temp = sql.NullFloat64{Float64: *c.Temperature, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO llm_calls (`+callColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Timestamp.UTC(), c.LatencyMs, nullable(c.ExtractionID), c.PromptKey, nullable(c.PromptCID),
		nullable(c.RequestID), c.Provider, c.Model, temp, c.InputTokens, c.OutputTokens, c.CostUSD,
		nullable(c.FinishReason), c.Response, c.Success, nullable(c.ErrorType), nullable(c.Error),
	)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// Get retrieves a single LLM call by ID. Returns nil, nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM llm_calls WHERE id = ?`, id)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return c, nil
}

// List retrieves LLM calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, v any) {
		conditions = append(conditions, cond)
		args = append(args, v)
	}

	if filter.ExtractionID != "" {
		add("extraction_id = ?", filter.ExtractionID)
	}
	if filter.PromptKey != "" {
		add("prompt_key = ?", filter.PromptKey)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}
	if filter.After != nil {
		add("timestamp > ?", filter.After.UTC())
	}
	if filter.Before != nil {
		add("timestamp < ?", filter.Before.UTC())
	}

	query := `SELECT ` + callColumns + ` FROM llm_calls`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

// CountByPromptKey returns call counts grouped by prompt key, optionally
// restricted to one extraction.
func (s *Store) CountByPromptKey(ctx context.Context, extractionID string) (map[string]int, error) {
	query := `SELECT prompt_key, COUNT(*) FROM llm_calls`
	var args []any
	if extractionID != "" {
		query += ` WHERE extraction_id = ?`
		args = append(args, extractionID)
	}
	query += ` GROUP BY prompt_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var (
		c                                  Call
		extractionID, promptCID, requestID sql.NullString
		finishReason, errType, errString   sql.NullString
		response                           sql.NullString
		temp                               sql.NullFloat64
	)
	err := row.Scan(&c.ID, &c.Timestamp, &c.LatencyMs, &extractionID, &c.PromptKey, &promptCID, &requestID,
		&c.Provider, &c.Model, &temp, &c.InputTokens, &c.OutputTokens, &c.CostUSD, &finishReason,
		&response, &c.Success, &errType, &errString)
	if err != nil {
		return nil, err
	}
	c.ExtractionID = extractionID.String
	c.PromptCID = promptCID.String
	c.RequestID = requestID.String
	c.FinishReason = finishReason.String
	c.Response = response.String
	c.ErrorType = errType.String
	c.Error = errString.String
	if temp.Valid {
		t := temp.Float64
		c.Temperature = &t
	}
	return &c, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
