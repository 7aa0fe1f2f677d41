package main

import (
	"github.com/spf13/cobra"

	"github.com/pagegate/pagegate/internal/api"
	"github.com/pagegate/pagegate/internal/config"
	"github.com/pagegate/pagegate/internal/server/endpoints"
	"github.com/pagegate/pagegate/version"
)

var (
	cfgFile      string
	serverURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pagegate",
	Short: "Gateway for a multi-model document inference backend",
	Long: `Pagegate fronts a multi-model document inference backend.

It bounds concurrent inference work under a global admission budget,
translates backend failures into a uniform response envelope, and
merges per-page parsing results into one document - splicing tables
that span page breaks and recomputing heading levels against the
whole document.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pagegate/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://127.0.0.1:8080", "URL of the running gateway",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "json", "output format: json or yaml",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(buildAPICommands())
}

// buildAPICommands mounts one CLI command per HTTP endpoint. Commands
// are built from the default operation set; flags have not been parsed
// when init runs.
func buildAPICommands() *cobra.Command {
	cfg := config.DefaultConfig()

	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{Operations: cfg.Operations}) {
		registry.Register(ep)
	}
	return registry.BuildCommands(func() string { return serverURL })
}
