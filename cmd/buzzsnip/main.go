package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buzzsnip/buzzsnip/cmd/buzzsnip/commands"
	"github.com/buzzsnip/buzzsnip/logger"
)

var rootCmd = &cobra.Command{
	Use:   "buzzsnip",
	Short: "BuzzSnip - scheduled short-video generation backend",
	Long: `BuzzSnip - scheduling and job orchestration for AI short-video generation.

BuzzSnip keeps recurring content schedules, turns due schedules into
generation jobs, and dispatches those jobs to the AI generation service
under a global concurrency ceiling.

Available commands:
  server    - Start the HTTP API, worker pool and scheduler
  schedule  - Manage content schedules
  job       - Inspect generation jobs
  next-run  - Compute the next run of a cadence
  config    - Show and edit configuration
  db        - Migrate, seed and clean the database

Examples:
  buzzsnip server                  # Start on the configured port
  buzzsnip schedule ls             # List schedules
  buzzsnip job ls --status failed  # List failed jobs
  buzzsnip config show             # Show current configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if cmd.Name() == commands.ServerCmd.Name() && verbosity == 0 {
			verbosity = logger.VerbosityInfo
		}
		if err := logger.InitializeWithVerbosity(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.NextRunCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
