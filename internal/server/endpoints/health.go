package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store,omitempty"`
	Providers string `json:"providers,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Liveness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Ready when the store answers and at least one LLM provider is loaded
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok", Providers: "ok"}
	ctx := r.Context()

	if db := svcctx.StoreFrom(ctx); db == nil {
		resp.Store = "not_initialized"
	} else if err := db.Ping(ctx); err != nil {
		resp.Store = "unhealthy"
	}

	if reg := svcctx.RegistryFrom(ctx); reg == nil || len(reg.ListLLM()) == 0 {
		resp.Providers = "none"
	}

	if resp.Store != "ok" || resp.Providers != "ok" {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (store and providers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:    %s\n", resp.Status)
			fmt.Printf("Store:     %s\n", resp.Store)
			fmt.Printf("Providers: %s\n", resp.Providers)
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server      string         `json:"server"`
	Providers   []string       `json:"providers"`
	Defaults    DefaultsStatus `json:"defaults"`
	Store       StoreStatus    `json:"store"`
	ConfigFile  string         `json:"config_file,omitempty"`
	PromptCount int            `json:"prompt_count"`
}

// DefaultsStatus shows the settings used when a request leaves them unset.
type DefaultsStatus struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_output_tokens"`
	MaxChars     int      `json:"max_chars"`
	ForceEnglish bool     `json:"force_english"`
	AllowUnknown bool     `json:"allow_unknown"`
}

// StoreStatus shows where extractions are kept.
type StoreStatus struct {
	Path        string `json:"path,omitempty"`
	Extractions int    `json:"extractions"`
	Health      string `json:"health"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Server status
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Server: "running", Providers: []string{}}

	if reg := svcctx.RegistryFrom(ctx); reg != nil {
		resp.Providers = reg.ListLLM()
	}

	if ex := svcctx.ExtractorFrom(ctx); ex != nil {
		d := ex.Defaults()
		resp.Defaults = DefaultsStatus{
			Provider:     d.Provider,
			Model:        d.Model,
			Temperature:  d.Temperature,
			MaxTokens:    d.MaxTokens,
			MaxChars:     d.MaxChars,
			ForceEnglish: d.Prompt.ForceEnglish,
			AllowUnknown: d.Prompt.AllowUnknown,
		}
	}

	resp.Store.Health = "not_initialized"
	if db := svcctx.StoreFrom(ctx); db != nil {
		resp.Store.Path = db.Path()
		n, err := db.CountExtractions(ctx)
		if err != nil {
			resp.Store.Health = "unhealthy"
		} else {
			resp.Store.Health = "healthy"
			resp.Store.Extractions = n
		}
	}

	if cm := svcctx.ConfigManagerFrom(ctx); cm != nil {
		resp.ConfigFile = cm.ConfigFile()
	}
	if pr := svcctx.PromptsFrom(ctx); pr != nil {
		resp.PromptCount = len(pr.List())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(resp)
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Providers: %v\n", resp.Providers)
			fmt.Printf("Defaults:\n")
			fmt.Printf("  Provider:    %s\n", resp.Defaults.Provider)
			fmt.Printf("  Model:       %s\n", resp.Defaults.Model)
			if resp.Defaults.Temperature != nil {
				fmt.Printf("  Temperature: %g\n", *resp.Defaults.Temperature)
			}
			fmt.Printf("  Max tokens:  %d\n", resp.Defaults.MaxTokens)
			fmt.Printf("  Max chars:   %d\n", resp.Defaults.MaxChars)
			fmt.Printf("Store:\n")
			fmt.Printf("  Path:        %s\n", resp.Store.Path)
			fmt.Printf("  Health:      %s\n", resp.Store.Health)
			fmt.Printf("  Extractions: %d\n", resp.Store.Extractions)
			if resp.ConfigFile != "" {
				fmt.Printf("Config: %s\n", resp.ConfigFile)
			}
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
