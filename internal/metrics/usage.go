package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/sysrev/internal/store"
)

// Query aggregates usage from stored extractions.
type Query struct {
	db *sql.DB
}

// NewQuery creates a usage query helper.
func NewQuery(db *store.DB) *Query {
	return &Query{db: db.SQL()}
}

// Filter specifies query filters.
type Filter struct {
	Provider string
	Model    string
	After    time.Time
	Before   time.Time
}

func (f Filter) where() (string, []any) {
	var (
		parts []string
		args  []any
	)
	if f.Provider != "" {
		parts = append(parts, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Model != "" {
		parts = append(parts, "model = ?")
		args = append(args, f.Model)
	}
	if !f.After.IsZero() {
		parts = append(parts, "created_at > ?")
		args = append(args, f.After.UTC())
	}
	if !f.Before.IsZero() {
		parts = append(parts, "created_at < ?")
		args = append(args, f.Before.UTC())
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// Summary provides a summary of usage for a filter.
type Summary struct {
	Count            int     `json:"count"`
	TruncatedCount   int     `json:"truncated_count"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	AvgCostUSD       float64 `json:"avg_cost_usd"`
	AvgTokens        float64 `json:"avg_tokens"`
	AvgInputChars    float64 `json:"avg_input_chars"`

	CostByProvider map[string]float64 `json:"cost_by_provider,omitempty"`
	CostByModel    map[string]float64 `json:"cost_by_model,omitempty"`
}

// GetSummary returns a summary of stored extractions matching the filter.
func (q *Query) GetSummary(ctx context.Context, f Filter) (*Summary, error) {
	where, args := f.where()
	row := q.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(truncated), 0),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(AVG(input_chars), 0)
		FROM extractions`+where, args...)

	s := &Summary{}
	if err := row.Scan(&s.Count, &s.TruncatedCount, &s.TotalCostUSD,
		&s.PromptTokens, &s.CompletionTokens, &s.AvgInputChars); err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	if s.Count > 0 {
		s.AvgCostUSD = s.TotalCostUSD / float64(s.Count)
		s.AvgTokens = float64(s.TotalTokens) / float64(s.Count)
	}

	var err error
	if s.CostByProvider, err = q.CostByProvider(ctx, f); err != nil {
		return nil, err
	}
	if s.CostByModel, err = q.CostByModel(ctx, f); err != nil {
		return nil, err
	}
	return s, nil
}

// CostByProvider returns cost breakdown by provider.
func (q *Query) CostByProvider(ctx context.Context, f Filter) (map[string]float64, error) {
	return q.costBy(ctx, "provider", f)
}

// CostByModel returns cost breakdown by model.
func (q *Query) CostByModel(ctx context.Context, f Filter) (map[string]float64, error) {
	return q.costBy(ctx, "model", f)
}

// costBy groups on a fixed column name; never pass user input as column.
func (q *Query) costBy(ctx context.Context, column string, f Filter) (map[string]float64, error) {
	where, args := f.where()
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+column+`, COALESCE(SUM(cost_usd), 0) FROM extractions`+where+` GROUP BY `+column, args...)
	if err != nil {
		return nil, fmt.Errorf("cost by %s: %w", column, err)
	}
	defer rows.Close()

	breakdown := make(map[string]float64)
	for rows.Next() {
		var (
			key  string
			cost float64
		)
		if err := rows.Scan(&key, &cost); err != nil {
			return nil, err
		}
		breakdown[key] = cost
	}
	return breakdown, rows.Err()
}
