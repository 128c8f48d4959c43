package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/extraction"
)

// SchemaResponse carries the extraction schema and its catalog.
type SchemaResponse struct {
	Name     string               `json:"name"`
	Strict   bool                 `json:"strict"`
	Schema   map[string]any       `json:"schema"`
	Sections []extraction.Section `json:"sections"`
}

// SchemaEndpoint handles GET /api/schema.
type SchemaEndpoint struct{}

func (e *SchemaEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/schema", e.handler
}

func (e *SchemaEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Extraction schema
//	@Description	The strict JSON Schema sent to the model, plus the section and field catalog
//	@Tags			schema
//	@Produce		json
//	@Success		200	{object}	SchemaResponse
//	@Router			/api/schema [get]
func (e *SchemaEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SchemaResponse{
		Name:     extraction.SchemaName,
		Strict:   true,
		Schema:   extraction.Schema(),
		Sections: extraction.Sections(),
	})
}

func (e *SchemaEndpoint) Command(getServerURL func() string) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the extraction schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SchemaResponse
			if err := client.Get(cmd.Context(), "/api/schema", &resp); err != nil {
				return err
			}
			if full {
				return api.Output(resp)
			}
			return api.Output(resp.Sections)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print the JSON Schema as well as the catalog")
	return cmd
}
