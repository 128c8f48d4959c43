package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/config"
	"github.com/jackzampolin/sysrev/internal/home"
	"github.com/jackzampolin/sysrev/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "sysrev",
	Short: "Structured data extraction from clinical study reports",
	Long: `Sysrev extracts a fixed catalog of systematic review fields from a
clinical study report using a single structured LLM call.

A document can be a PDF, pasted text or a web page. The result is a JSON
record with one value per catalog field and a markdown report grouped by
section, both available for download.

  sysrev extract --pdf paper.pdf            # One-shot extraction, no server
  sysrev serve                              # HTTP API on 127.0.0.1:8080
  sysrev api extractions create --file x.pdf # Extract through the server`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.sysrev/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "sysrev home directory (default: $SYSREV_HOME or ~/.sysrev)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the text logger for --log-level.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig resolves the home directory and loads --config, ./config.yaml
// or {home}/config.yaml, falling back to defaults when none exists.
func loadConfig(logger *slog.Logger) (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	mgr.SetLogger(logger)
	if f := mgr.ConfigFile(); f != "" {
		logger.Debug("loaded config", "file", f)
	}
	return h, mgr, nil
}
