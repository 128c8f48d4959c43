package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

const (
	AnthropicName         = "anthropic"
	anthropicDefaultModel = "claude-sonnet-4-5"
	anthropicDefaultMax   = 5000
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey       string
	DefaultModel string
	RPM          int
	Timeout      time.Duration
	BaseURL      string       // Optional (tests)
	HTTPClient   *http.Client // Optional (tests)
}

// AnthropicClient implements LLMClient using the Anthropic Messages API.
//
// Messages has no json_schema response format, so structured requests are
// sent with a single tool whose input schema is the requested schema and
// tool_choice forcing that tool. The tool input becomes the result content.
type AnthropicClient struct {
	apiKey       string
	defaultModel string
	rpm          int
	limiter      *RateLimiter
	client       anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = anthropicDefaultModel
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 50
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		rpm:          cfg.RPM,
		limiter:      NewRateLimiter(cfg.RPM),
		client:       anthropic.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *AnthropicClient) Name() string {
	return AnthropicName
}

// Model returns the configured default model.
func (c *AnthropicClient) Model() string {
	return c.defaultModel
}

// RateLimiterStatus reports the client's limiter state.
func (c *AnthropicClient) RateLimiterStatus() RateLimiterStatus {
	return c.limiter.Status()
}

// Chat sends a Messages request.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  AnthropicName,
		ModelUsed: model,
	}

	params, toolName, err := buildAnthropicParams(model, req)
	if err != nil {
		return result.fail(start, "invalid_request", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result.fail(start, "context_cancelled", err)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		err = mapAnthropicError(err)
		var rle *RateLimitError
		if errors.As(err, &rle) {
			c.limiter.Record429(rle.RetryAfter)
			return result.fail(start, "rate_limited", err)
		}
		return result.fail(start, "http_error", err)
	}

	result.ExecutionTime = time.Since(start)
	if message.Model != "" {
		result.ModelUsed = string(message.Model)
	}
	result.FinishReason = string(message.StopReason)
	result.PromptTokens = int(message.Usage.InputTokens)
	result.CompletionTokens = int(message.Usage.OutputTokens)
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if toolName != "" && b.Name == toolName {
				result.ParsedJSON = json.RawMessage(b.Input)
				result.Content = string(b.Input)
			}
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		}
	}
	if result.Content == "" {
		result.Content = text.String()
		if toolName != "" && strings.TrimSpace(result.Content) != "" {
			if parsed, err := ParseStructuredJSON(result.Content); err == nil {
				result.ParsedJSON = parsed
			}
		}
	}

	result.Success = true
	result.TotalTime = time.Since(start)
	return result, nil
}

func buildAnthropicParams(model string, req *ChatRequest) (anthropic.MessageNewParams, string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMax
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "user":
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return params, "", fmt.Errorf("unsupported message role: %q", m.Role)
		}
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	if req.ResponseFormat == nil || len(req.ResponseFormat.JSONSchema) == 0 {
		return params, "", nil
	}

	wrapper, err := decodeSchemaWrapper(req.ResponseFormat.JSONSchema)
	if err != nil {
		return params, "", err
	}
	properties, _ := wrapper.Schema["properties"].(map[string]any)
	if len(properties) == 0 {
		return params, "", fmt.Errorf("response format schema has no properties")
	}

	tool := anthropic.ToolParam{
		Name:        wrapper.Name,
		Description: anthropic.String("Record the structured result. Always call this tool exactly once."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   requiredKeys(wrapper.Schema),
		},
	}
	params.Tools = []anthropic.ToolUnionParam{{OfTool: &tool}}
	params.ToolChoice = anthropic.ToolChoiceParamOfTool(wrapper.Name)
	return params, wrapper.Name, nil
}

func requiredKeys(schema map[string]any) []string {
	raw, _ := schema["required"].([]any)
	keys := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    "Anthropic rate limited",
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return fmt.Errorf("Anthropic error (status %d): %w", apiErr.StatusCode, err)
	}
	return err
}

var _ LLMClient = (*AnthropicClient)(nil)
