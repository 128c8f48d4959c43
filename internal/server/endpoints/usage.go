package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/metrics"
	"github.com/jackzampolin/sysrev/internal/svcctx"
)

// UsageEndpoint handles GET /api/usage.
type UsageEndpoint struct{}

func (e *UsageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/usage", e.handler
}

func (e *UsageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Usage summary
//	@Description	Token and cost totals over stored extractions
//	@Tags			usage
//	@Produce		json
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			after		query		string	false	"Only extractions after this RFC3339 timestamp"
//	@Param			before		query		string	false	"Only extractions before this RFC3339 timestamp"
//	@Success		200			{object}	metrics.Summary
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/api/usage [get]
func (e *UsageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := svcctx.MetricsQueryFrom(r.Context())
	if query == nil {
		writeError(w, http.StatusServiceUnavailable, "usage query not initialized")
		return
	}

	q := r.URL.Query()
	f := metrics.Filter{
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
	}
	after, err := parseTimeParam(q.Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid after time: %v", err))
		return
	}
	if after != nil {
		f.After = *after
	}
	before, err := parseTimeParam(q.Get("before"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid before time: %v", err))
		return
	}
	if before != nil {
		f.Before = *before
	}

	summary, err := query.GetSummary(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (e *UsageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider, model string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token and cost totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			params := url.Values{}
			if provider != "" {
				params.Set("provider", provider)
			}
			if model != "" {
				params.Set("model", model)
			}
			path := "/api/usage"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp metrics.Summary
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(resp)
			}

			fmt.Printf("Usage Summary\n")
			fmt.Printf("=============\n")
			fmt.Printf("  Extractions:  %d (%d truncated)\n", resp.Count, resp.TruncatedCount)
			fmt.Printf("  Total Cost:   $%.4f\n", resp.TotalCostUSD)
			fmt.Printf("  Avg Cost:     $%.6f\n", resp.AvgCostUSD)
			fmt.Printf("  Total Tokens: %d\n", resp.TotalTokens)
			fmt.Printf("  Avg Tokens:   %.0f\n", resp.AvgTokens)
			if len(resp.CostByModel) > 0 {
				fmt.Println()
				fmt.Printf("  By model:\n")
				models := make([]string, 0, len(resp.CostByModel))
				for m := range resp.CostByModel {
					models = append(models, m)
				}
				sort.Strings(models)
				for _, m := range models {
					fmt.Printf("    %-32s $%.4f\n", m, resp.CostByModel[m])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")
	return cmd
}
