package endpoints

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
)

// DefaultSpecPath is where `go generate ./docs` writes the OpenAPI document.
const DefaultSpecPath = "docs/swagger/swagger.json"

// SwaggerEndpoint serves the generated OpenAPI document.
type SwaggerEndpoint struct {
	// SpecPath overrides DefaultSpecPath.
	SpecPath string
}

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	OpenAPI document
//	@Tags		docs
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	404	{object}	ErrorResponse
//	@Router		/swagger.json [get]
func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	path := e.SpecPath
	if path == "" {
		path = DefaultSpecPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "swagger.json not found; run go generate ./docs")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(data)
}

func (e *SwaggerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch the OpenAPI document from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var doc map[string]any
			if err := client.Get(cmd.Context(), "/swagger.json", &doc); err != nil {
				return err
			}
			if out == "" {
				return api.Output(doc)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()
			return api.OutputTo(f, api.OutputFormatJSON, doc)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write the document to this file as JSON")
	return cmd
}
