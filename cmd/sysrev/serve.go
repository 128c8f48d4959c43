package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/server"
)

var (
	serveHost  string
	servePort  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sysrev server",
	Long: `Start the sysrev HTTP server.

The server opens the extraction database in the home directory and
closes it when the server shuts down (via Ctrl+C or SIGTERM).

The server provides:
  - /health          - Basic server health check
  - /ready           - Readiness check (store and LLM providers)
  - /api/extractions - Create, list, fetch and download extractions
  - /metrics         - Prometheus metrics

Host and port default to server.host and server.port from the config.

Examples:
  sysrev serve                    # Start on the configured port
  sysrev serve --port 3000        # Start on custom port
  sysrev serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(os.Stdout)
		if err != nil {
			return err
		}

		h, mgr, err := loadConfig(logger)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if serveWatch && mgr.ConfigFile() != "" {
			mgr.WatchConfig()
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config, then 127.0.0.1)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config, then 8080)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload providers and defaults when the config file changes")

	rootCmd.AddCommand(serveCmd)
}
