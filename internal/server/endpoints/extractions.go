package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/extract"
	"github.com/jackzampolin/sysrev/internal/report"
	"github.com/jackzampolin/sysrev/internal/store"
	"github.com/jackzampolin/sysrev/internal/svcctx"
)

// ExtractionSummary is one row of the extraction listing.
type ExtractionSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source"`
	SourceName string    `json:"source_name,omitempty"`
	Title      string    `json:"title,omitempty"`
	Study      string    `json:"study,omitempty"`
	Design     string    `json:"design,omitempty"`
	Country    string    `json:"country,omitempty"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Truncated  bool      `json:"truncated"`
	CostUSD    float64   `json:"cost_usd"`
}

// ListExtractionsResponse contains a page of extractions.
type ListExtractionsResponse struct {
	Extractions []ExtractionSummary `json:"extractions"`
	Total       int                 `json:"total"`
}

func summarize(e store.Extraction) ExtractionSummary {
	return ExtractionSummary{
		ID:         e.ID,
		CreatedAt:  e.CreatedAt,
		Source:     e.Source,
		SourceName: e.SourceName,
		Title:      e.Title,
		Study:      e.Study,
		Design:     e.Design,
		Country:    e.Country,
		Provider:   e.Provider,
		Model:      e.Model,
		Truncated:  e.Truncated,
		CostUSD:    e.CostUSD,
	}
}

// ListExtractionsEndpoint handles GET /api/extractions.
type ListExtractionsEndpoint struct{}

func (e *ListExtractionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/extractions", e.handler
}

func (e *ListExtractionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List extractions
//	@Tags		extractions
//	@Produce	json
//	@Param		limit	query		int	false	"Max results (default 50)"
//	@Param		offset	query		int	false	"Result offset"
//	@Success	200		{object}	ListExtractionsResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	500		{object}	ErrorResponse
//	@Router		/api/extractions [get]
func (e *ListExtractionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	db := svcctx.StoreFrom(r.Context())
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	var opts store.ListOptions
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q must be an integer", v))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid offset: %q must be an integer", v))
			return
		}
		opts.Offset = n
	}

	rows, err := db.ListExtractions(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := db.CountExtractions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ListExtractionsResponse{Extractions: make([]ExtractionSummary, 0, len(rows)), Total: total}
	for _, row := range rows {
		resp.Extractions = append(resp.Extractions, summarize(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListExtractionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "extractions list",
		Short: "List stored extractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/extractions"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}
			var resp ListExtractionsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results (default 50)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetExtractionEndpoint handles GET /api/extractions/{id}.
type GetExtractionEndpoint struct{}

func (e *GetExtractionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/extractions/{id}", e.handler
}

func (e *GetExtractionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get an extraction
//	@Tags		extractions
//	@Produce	json
//	@Param		id	path		string	true	"Extraction ID"
//	@Success	200	{object}	extract.Result
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/extractions/{id} [get]
func (e *GetExtractionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	res, status, err := loadResult(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// loadResult fetches the extraction named by the {id} path value.
func loadResult(r *http.Request) (*extract.Result, int, error) {
	db := svcctx.StoreFrom(r.Context())
	if db == nil {
		return nil, http.StatusServiceUnavailable, errors.New("store not initialized")
	}
	row, err := db.GetExtraction(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, http.StatusNotFound, errors.New("extraction not found")
		}
		return nil, http.StatusInternalServerError, err
	}
	res, err := extract.FromRecord(row)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return res, http.StatusOK, nil
}

func (e *GetExtractionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "extractions get <id>",
		Short: "Get a stored extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var res extract.Result
			if err := client.Get(cmd.Context(), "/api/extractions/"+url.PathEscape(args[0]), &res); err != nil {
				return err
			}
			if markdown {
				_, err := fmt.Fprint(cmd.OutOrStdout(), res.Markdown)
				return err
			}
			return api.Output(res)
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the markdown report instead of the record")
	return cmd
}

// DownloadExtractionEndpoint handles GET /api/extractions/{id}/download.
type DownloadExtractionEndpoint struct{}

func (e *DownloadExtractionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/extractions/{id}/download", e.handler
}

func (e *DownloadExtractionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Download an extraction
//	@Description	The record as JSON (keys in catalog order) or the markdown report
//	@Tags			extractions
//	@Produce		json,text/markdown
//	@Param			id		path		string	true	"Extraction ID"
//	@Param			format	query		string	false	"json or markdown (default from config)"
//	@Success		200		{file}		file
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/extractions/{id}/download [get]
func (e *DownloadExtractionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		if cm := svcctx.ConfigManagerFrom(r.Context()); cm != nil {
			name = cm.Get().Defaults.DownloadFormat
		}
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, status, err := loadResult(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	dl, err := report.Export(format, res.Data, res.Markdown)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(dl.Body)
}

func (e *DownloadExtractionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "extractions download <id>",
		Short: "Download an extraction as JSON or Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/extractions/" + url.PathEscape(args[0]) + "/download"
			if format != "" {
				path += "?format=" + url.QueryEscape(format)
			}
			body, _, err := client.GetRaw(cmd.Context(), path)
			if err != nil {
				return err
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or markdown (default from server config)")
	cmd.Flags().StringVar(&out, "out", "", "Write to this file instead of stdout")
	return cmd
}

// DeleteExtractionEndpoint handles DELETE /api/extractions/{id}.
type DeleteExtractionEndpoint struct{}

func (e *DeleteExtractionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/extractions/{id}", e.handler
}

func (e *DeleteExtractionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Delete an extraction
//	@Tags		extractions
//	@Param		id	path	string	true	"Extraction ID"
//	@Success	204
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/extractions/{id} [delete]
func (e *DeleteExtractionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	db := svcctx.StoreFrom(r.Context())
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}
	if err := db.DeleteExtraction(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "extraction not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteExtractionEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "extractions delete <id>",
		Short: "Delete a stored extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/extractions/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Println("Extraction deleted")
			return nil
		},
	}
}
