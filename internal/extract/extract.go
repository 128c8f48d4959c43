// Package extract runs the single-shot extraction pipeline: truncate the
// article, build the prompts, make one structured-output LLM call, parse and
// validate the JSON, and render the report.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/sysrev/internal/extraction"
	"github.com/jackzampolin/sysrev/internal/ingest"
	"github.com/jackzampolin/sysrev/internal/llmcall"
	"github.com/jackzampolin/sysrev/internal/metrics"
	"github.com/jackzampolin/sysrev/internal/prompts"
	promptx "github.com/jackzampolin/sysrev/internal/prompts/extraction"
	"github.com/jackzampolin/sysrev/internal/providers"
	"github.com/jackzampolin/sysrev/internal/report"
	"github.com/jackzampolin/sysrev/internal/store"
)

var (
	// ErrEmptyInput is returned when there is no article text to send.
	ErrEmptyInput = errors.New("no article text provided")

	// ErrNoStructuredOutput is returned when the model returns no content.
	ErrNoStructuredOutput = errors.New("No structured output returned from the model.")

	// ErrMalformedOutput is returned when the model output is not a JSON object.
	ErrMalformedOutput = errors.New("model returned malformed JSON")

	// ErrUnknownProvider is returned when the requested provider is not loaded.
	ErrUnknownProvider = errors.New("unknown LLM provider")

	// ErrInvalidOptions is returned when an override is out of range.
	ErrInvalidOptions = errors.New("invalid extraction options")
)

// ClientSource resolves provider names to clients. *providers.Registry
// satisfies it.
type ClientSource interface {
	GetLLM(name string) (providers.LLMClient, error)
}

// Defaults are the settings used when a Request leaves them unset.
type Defaults struct {
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
	MaxChars    int
	Prompt      promptx.Options
}

// Request is one extraction.
type Request struct {
	Document *ingest.Document

	// Overrides; zero values fall back to Defaults.
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
	MaxChars    int
	Prompt      *promptx.Options

	// Save persists the result when a store is configured.
	Save bool
}

// Usage is the token and cost accounting of the LLM call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	LatencyMs        int64   `json:"latency_ms"`
}

// Result is a completed extraction.
type Result struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	SourceName  string          `json:"source_name,omitempty"`
	Title       string          `json:"title,omitempty"`
	Provider    string          `json:"provider"`
	Model       string          `json:"model"`
	Temperature *float64        `json:"temperature,omitempty"`
	Data        map[string]any  `json:"data"`
	Raw         json.RawMessage `json:"-"`
	Markdown    string          `json:"markdown"`
	InputChars  int             `json:"input_chars"`
	Truncated   bool            `json:"truncated"`
	Validation  []string        `json:"validation,omitempty"`
	Usage       Usage           `json:"usage"`
	LLMCallID   string          `json:"llm_call_id,omitempty"`
	Saved       bool            `json:"saved"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Summary returns the study headline of the result.
func (r *Result) Summary() extraction.Summary {
	return extraction.Summarize(r.Data)
}

// Config wires an Extractor. Only Clients is required.
type Config struct {
	Clients  ClientSource
	Store    *store.DB
	Recorder *llmcall.Recorder
	Metrics  *metrics.Collectors
	Logger   *slog.Logger
	Defaults Defaults
}

// Extractor runs extractions. Safe for concurrent use.
type Extractor struct {
	clients  ClientSource
	store    *store.DB
	recorder *llmcall.Recorder
	metrics  *metrics.Collectors
	logger   *slog.Logger

	format    *providers.ResponseFormat
	validator *providers.SchemaValidator

	mu       sync.RWMutex
	defaults Defaults
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Clients == nil {
		return nil, fmt.Errorf("extract: client source is required")
	}
	format, err := extraction.ResponseFormat()
	if err != nil {
		return nil, err
	}
	validator, err := providers.CompileSchema(format.JSONSchema)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		clients:   cfg.Clients,
		store:     cfg.Store,
		recorder:  cfg.Recorder,
		metrics:   cfg.Metrics,
		logger:    logger,
		format:    format,
		validator: validator,
		defaults:  cfg.Defaults,
	}, nil
}

// Defaults returns the current defaults.
func (e *Extractor) Defaults() Defaults {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults
}

// SetDefaults replaces the defaults, e.g. after a config reload.
func (e *Extractor) SetDefaults(d Defaults) {
	e.mu.Lock()
	e.defaults = d
	e.mu.Unlock()
}

// Run executes one extraction. The LLM is called at most once.
func (e *Extractor) Run(ctx context.Context, req Request) (*Result, error) {
	res, status, err := e.run(ctx, req)
	e.metrics.RecordExtraction(status)
	return res, err
}

func (e *Extractor) run(ctx context.Context, req Request) (*Result, string, error) {
	doc := req.Document
	if doc == nil || doc.Text == "" {
		return nil, metrics.StatusInvalidInput, ErrEmptyInput
	}
	if err := req.Validate(); err != nil {
		return nil, metrics.StatusInvalidInput, err
	}

	settings := e.resolve(req)
	client, err := e.clients.GetLLM(settings.Provider)
	if err != nil {
		return nil, metrics.StatusInvalidInput, fmt.Errorf("%w: %q", ErrUnknownProvider, settings.Provider)
	}

	text, truncated := ingest.Truncate(doc.Text, settings.MaxChars)
	inputChars := ingest.RuneCount(text)
	e.metrics.RecordInput(inputChars, truncated)
	if truncated {
		e.logger.Info("article truncated",
			"source", doc.Source,
			"chars", doc.Chars,
			"max_chars", settings.MaxChars)
	}

	systemPrompt := promptx.SystemPrompt(settings.Prompt)
	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: promptx.UserPrompt(text)},
		},
		Model:          settings.Model,
		Temperature:    settings.Temperature,
		MaxTokens:      settings.MaxTokens,
		ResponseFormat: e.format,
	}

	res := &Result{
		ID:          uuid.New().String(),
		Source:      doc.Source,
		SourceName:  doc.Name,
		Title:       doc.Title,
		Provider:    client.Name(),
		Model:       settings.Model,
		Temperature: settings.Temperature,
		InputChars:  inputChars,
		Truncated:   truncated,
		CreatedAt:   time.Now().UTC(),
	}
	chatReq.RequestID = res.ID

	e.logger.Info("calling model",
		"extraction_id", res.ID,
		"provider", client.Name(),
		"model", settings.Model,
		"chars", inputChars)

	start := time.Now()
	chat, chatErr := client.Chat(ctx, chatReq)
	elapsed := time.Since(start)
	e.metrics.RecordLLMCall(client.Name(), elapsed, chat)

	if call := e.recorder.Record(ctx, chat, llmcall.RecordOptions{
		ExtractionID: res.ID,
		PromptKey:    promptx.SystemPromptKey,
		PromptCID:    prompts.HashText(systemPrompt),
		Temperature:  settings.Temperature,
	}); call != nil {
		res.LLMCallID = call.ID
	}

	if chat != nil {
		if chat.ModelUsed != "" {
			res.Model = chat.ModelUsed
		}
		res.Usage = Usage{
			PromptTokens:     chat.PromptTokens,
			CompletionTokens: chat.CompletionTokens,
			TotalTokens:      chat.TotalTokens,
			CostUSD:          chat.CostUSD,
			LatencyMs:        elapsed.Milliseconds(),
		}
	}
	if chatErr != nil {
		e.logger.Error("model call failed", "extraction_id", res.ID, "error", chatErr)
		return nil, metrics.StatusProviderError, fmt.Errorf("model call failed: %w", chatErr)
	}
	if chat == nil || !chat.Success {
		return nil, metrics.StatusProviderError, fmt.Errorf("model call failed")
	}

	content := chat.Content
	if isBlank(content) && len(chat.ParsedJSON) > 0 {
		content = string(chat.ParsedJSON)
	}
	if isBlank(content) {
		return nil, metrics.StatusNoOutput, ErrNoStructuredOutput
	}

	raw, data, err := ParseOutput(content)
	if err != nil {
		e.logger.Warn("malformed model output", "extraction_id", res.ID, "error", err)
		return nil, metrics.StatusMalformed, err
	}
	res.Raw = raw
	res.Data = data

	if err := e.validator.Validate(raw); err != nil {
		res.Validation = ValidationMessages(err)
		e.logger.Warn("model output does not match schema",
			"extraction_id", res.ID,
			"violations", len(res.Validation))
	}

	res.Markdown = report.Markdown(data)

	if req.Save && e.store != nil {
		if err := e.store.SaveExtraction(ctx, res.Record()); err != nil {
			e.logger.Error("failed to save extraction", "extraction_id", res.ID, "error", err)
		} else {
			res.Saved = true
		}
	}

	e.logger.Info("extraction complete",
		"extraction_id", res.ID,
		"model", res.Model,
		"tokens", res.Usage.TotalTokens,
		"latency_ms", res.Usage.LatencyMs)
	return res, metrics.StatusSuccess, nil
}

// resolve merges request overrides over the current defaults.
func (e *Extractor) resolve(req Request) Defaults {
	d := e.Defaults()
	if req.Provider != "" {
		d.Provider = req.Provider
	}
	if req.Model != "" {
		d.Model = req.Model
	}
	if req.Temperature != nil {
		d.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		d.MaxTokens = req.MaxTokens
	}
	if req.MaxChars > 0 {
		d.MaxChars = req.MaxChars
	}
	if d.MaxChars <= 0 {
		d.MaxChars = ingest.DefaultMaxChars
	}
	if req.Prompt != nil {
		d.Prompt = *req.Prompt
	}
	return d
}
