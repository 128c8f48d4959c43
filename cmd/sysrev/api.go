package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func newAPICmd() *cobra.Command {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All() {
		registry.Register(ep)
	}

	apiCmd := registry.BuildCommands(getServerURL)
	apiCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "sysrev server URL")
	apiCmd.AddCommand(newWaitCmd())
	return apiCmd
}

func newWaitCmd() *cobra.Command {
	var (
		attempts uint
		delay    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the server reports ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.WaitReady(cmd.Context(), attempts, delay); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Server ready")
			return nil
		},
	}
	cmd.Flags().UintVar(&attempts, "attempts", 30, "Number of readiness checks")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "Delay between checks")
	return cmd
}

func init() {
	rootCmd.AddCommand(newAPICmd())
}
