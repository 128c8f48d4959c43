package api

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// Endpoint is one server operation: an HTTP route and the "sysrev api"
// command that calls it.
type Endpoint interface {
	// Route returns the method, path pattern and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the store and
	// extractor, which only exist after Server.Init.
	RequiresInit() bool

	// Command builds the CLI command. getServerURL is read when the
	// command runs, after --server has been parsed. A nil command
	// keeps the endpoint HTTP-only.
	Command(getServerURL func() string) *cobra.Command
}

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// Commands are organized by their URL path structure.
// getServerURL is called at runtime to get the server URL.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running sysrev server via HTTP.

These commands require a running server (sysrev serve).
Use --server to specify a custom server URL.

Examples:
  sysrev api health                                # Check server health
  sysrev api extractions create --file paper.pdf   # Extract from a PDF
  sysrev api extractions list                      # List stored extractions
  sysrev api extractions download <id> -f markdown # Download a report`,
	}

	for _, ep := range r.endpoints {
		cmd := ep.Command(getServerURL)
		if cmd == nil {
			continue
		}
		attach(apiCmd, cmd)
	}

	return apiCmd
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}

// attach adds cmd under parent. Commands whose Use starts with a group name
// ("extractions create") are nested under a shared group command.
func attach(parent, cmd *cobra.Command) {
	group, rest, ok := strings.Cut(cmd.Use, " ")
	if !ok || strings.HasPrefix(rest, "<") || strings.HasPrefix(rest, "[") {
		parent.AddCommand(cmd)
		return
	}

	var groupCmd *cobra.Command
	for _, c := range parent.Commands() {
		if c.Name() == group {
			groupCmd = c
			break
		}
	}
	if groupCmd == nil {
		groupCmd = &cobra.Command{
			Use:   group,
			Short: "Manage " + group,
		}
		parent.AddCommand(groupCmd)
	}
	cmd.Use = rest
	attach(groupCmd, cmd)
}
