// Package metrics tracks extraction throughput, LLM latency, token usage and
// cost. Live counters are exported to Prometheus; historical usage is
// aggregated from the extraction store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jackzampolin/sysrev/internal/providers"
)

// Extraction outcome labels.
const (
	StatusSuccess       = "success"
	StatusInvalidInput  = "invalid_input"
	StatusProviderError = "provider_error"
	StatusNoOutput      = "no_output"
	StatusMalformed     = "malformed"
)

// Collectors holds the Prometheus metrics for one process. Each instance owns
// its registry so tests can build as many as they like.
//
// Exposed metrics:
//   - sysrev_extractions_total: extractions by status
//   - sysrev_llm_request_duration_seconds: LLM call latency by provider
//   - sysrev_llm_tokens_total: tokens by provider and kind (prompt/completion)
//   - sysrev_llm_cost_usd_total: reported cost by provider
//   - sysrev_input_chars: article length after truncation
//   - sysrev_truncations_total: inputs cut to the character bound
type Collectors struct {
	registry *prometheus.Registry

	ExtractionsTotal *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec
	CostUSDTotal     *prometheus.CounterVec
	InputChars       prometheus.Histogram
	TruncationsTotal prometheus.Counter
}

// New creates collectors registered on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,

		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sysrev_extractions_total",
			Help: "Total number of extraction runs by status",
		}, []string{"status"}),

		LLMDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sysrev_llm_request_duration_seconds",
			Help:    "Duration of LLM extraction calls in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"provider"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sysrev_llm_tokens_total",
			Help: "Total LLM tokens by provider and kind",
		}, []string{"provider", "kind"}),

		CostUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sysrev_llm_cost_usd_total",
			Help: "Total provider-reported LLM cost in USD",
		}, []string{"provider"}),

		InputChars: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sysrev_input_chars",
			Help:    "Characters of article text sent to the model",
			Buckets: []float64{1_000, 5_000, 10_000, 25_000, 50_000, 100_000, 150_000},
		}),

		TruncationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sysrev_truncations_total",
			Help: "Total inputs truncated to the character bound",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordExtraction counts one run by status. Nil-safe.
func (c *Collectors) RecordExtraction(status string) {
	if c == nil {
		return
	}
	c.ExtractionsTotal.WithLabelValues(status).Inc()
}

// RecordInput observes the prepared input size.
func (c *Collectors) RecordInput(chars int, truncated bool) {
	if c == nil {
		return
	}
	c.InputChars.Observe(float64(chars))
	if truncated {
		c.TruncationsTotal.Inc()
	}
}

// RecordLLMCall observes latency, tokens and cost from a chat result.
func (c *Collectors) RecordLLMCall(provider string, elapsed time.Duration, result *providers.ChatResult) {
	if c == nil {
		return
	}
	c.LLMDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if result == nil {
		return
	}
	c.TokensTotal.WithLabelValues(provider, "prompt").Add(float64(result.PromptTokens))
	c.TokensTotal.WithLabelValues(provider, "completion").Add(float64(result.CompletionTokens))
	if result.CostUSD > 0 {
		c.CostUSDTotal.WithLabelValues(provider).Add(result.CostUSD)
	}
}
