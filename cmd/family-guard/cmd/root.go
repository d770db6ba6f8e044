package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/family-guard/internal/config"
	"github.com/oshokin/family-guard/internal/service/guard"
	"github.com/oshokin/family-guard/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// routePath optionally overrides the replay route file from config.
	routePath string

	// rootCmd represents the base command for running the guard daemon.
	rootCmd = &cobra.Command{
		Use:   "family-guard",
		Short: "Track family members and raise safety alerts.",
		Long: `Background daemon that tracks configured family members against the family's
safe zones and raises alerts.

Samples each tracked member's position on a fixed interval plus a continuous
watch, records zone entries and exits exactly once per transition, watches
battery levels, and fans alerts out to subscribed family members. Safety
checks with a duress PIN and explicit emergencies flow through the same
store. Members to track, zone data, and all tunables come from the
configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return guard.Run(ctx, &guard.RunOptions{
				ConfigPath: configPath,
				RoutePath:  routePath,
			})
		},
	}
)

// Execute runs the family-guard CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&routePath, "route", "r", "", "path to replay route file (overrides config)")
}
