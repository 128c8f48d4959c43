package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const MockClientName = "mock"

// ErrMockFailure is returned when a MockClient is configured to fail.
var ErrMockFailure = errors.New("mock client configured to fail")

// MockClient is an LLMClient for tests. With ResponseJSON set, requests that
// carry a response format get it back as their content.
type MockClient struct {
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // fail every request after the first N; 0 never
	ResponseText string
	ResponseJSON json.RawMessage
	FinishReason string
	CostUSD      float64

	requestCount atomic.Int64
	mu           sync.Mutex
	lastRequest  *ChatRequest
}

// NewMockClient returns a mock that answers "mock response" after 1ms.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
		FinishReason: "stop",
		CostUSD:      0.001,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat records the request and returns the configured response.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	n := c.requestCount.Add(1)

	c.mu.Lock()
	copied := *req
	c.lastRequest = &copied
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: req.RequestID,
		Provider:  MockClientName,
		ModelUsed: req.Model,
	}
	if result.RequestID == "" {
		result.RequestID = fmt.Sprintf("mock-%d", n)
	}

	switch {
	case c.ShouldFail:
		return result.fail(start, "mock_failure", ErrMockFailure)
	case c.FailAfter > 0 && int(n) > c.FailAfter:
		return result.fail(start, "mock_failure", fmt.Errorf("%w after %d requests", ErrMockFailure, c.FailAfter))
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return result.fail(start, "context_cancelled", ctx.Err())
	}

	result.Content = c.ResponseText
	if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
		result.ParsedJSON = c.ResponseJSON
		result.Content = string(c.ResponseJSON)
	}

	for _, m := range req.Messages {
		result.PromptTokens += estimateTokens(m.Content)
	}
	result.CompletionTokens = estimateTokens(result.Content)
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.CostUSD = c.CostUSD
	result.FinishReason = c.FinishReason
	result.Success = true
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime
	return result, nil
}

// estimateTokens approximates four characters per token.
func estimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// LastRequest returns a copy of the most recent request, or nil.
func (c *MockClient) LastRequest() *ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

// Reset clears the request count and the last request.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.lastRequest = nil
	c.mu.Unlock()
}

var _ LLMClient = (*MockClient)(nil)
