package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/config"
	"github.com/jackzampolin/sysrev/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Long: `Write the default configuration to --config or {home}/config.yaml.

API keys are written as ${ENV_VAR} references and resolved at load time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				h, err := home.New(homeDir)
				if err != nil {
					return err
				}
				path = h.ConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mgr, err := loadConfig(discardLogger())
			if err != nil {
				return err
			}
			if f := mgr.ConfigFile(); f != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "# %s\n", f)
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "# no config file found, showing defaults")
			}
			return api.Output(mgr.Get())
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	var showDefault bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if showDefault {
				if err := config.ValidateKey(key); err != nil {
					return err
				}
				entry := config.GetDefault(key)
				if entry == nil {
					return fmt.Errorf("%w for %q", config.ErrNoDefault, key)
				}
				return api.Output(entry)
			}

			_, mgr, err := loadConfig(discardLogger())
			if err != nil {
				return err
			}
			v, err := mgr.Lookup(key)
			if err != nil {
				if errors.Is(err, config.ErrInvalidKey) {
					return err
				}
				return fmt.Errorf("%w (see 'sysrev config keys')", err)
			}
			return api.Output(v)
		},
	}
	cmd.Flags().BoolVar(&showDefault, "default", false, "Print the built-in default instead")
	return cmd
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List scalar keys with their defaults",
		Long: `List the scalar configuration keys.

Each key can be overridden with an environment variable, e.g.
defaults.model becomes SYSREV_DEFAULTS_MODEL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.Output(config.DefaultEntries())
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func init() {
	configCmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigGetCmd(), newConfigKeysCmd())
	rootCmd.AddCommand(configCmd)
}
