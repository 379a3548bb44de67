package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/buzzsnip/buzzsnip/db"
	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: logger.SymDB + " Manage the BuzzSnip database",
	Long: logger.SymDB + ` db - Manage BuzzSnip database operations

Examples:
  buzzsnip db migrate          # Apply pending migrations
  buzzsnip db seed             # Insert the default schedules
  buzzsnip db cleanup          # Remove finished jobs past retention
  buzzsnip db cleanup --days 7 # Remove finished jobs older than a week`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// openServices migrates on open
		return withServices(func(svc *services) error {
			versions, err := db.AppliedVersions(svc.db)
			if err != nil {
				return errors.Wrap(err, "failed to read applied migrations")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is at schema version %s (%d migrations)\n",
				logger.SymDB, svc.dbPath, latest(versions), len(versions))
			return nil
		})
	},
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default schedules",
	Long:  "Insert the default schedules. Schedules whose id already exists are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			n, err := svc.schedules.SeedDefaults(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to seed default schedules")
			}
			pterm.Success.Printf("Seeded %d default schedules\n", n)
			return nil
		})
	},
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove finished jobs past retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			days := svc.cfg.Jobs.CleanupDays
			if cmd.Flags().Changed("days") {
				days, _ = cmd.Flags().GetInt("days")
			}
			if days <= 0 {
				return errors.NewFieldError("days", "must be positive, got %d", days)
			}

			removed, err := svc.jobs.Cleanup(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Removed %d jobs finished more than %d days ago\n", removed, days)
			return nil
		})
	},
}

func init() {
	dbCleanupCmd.Flags().Int("days", 0, "Retention in days (default: jobs.cleanup_days)")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbSeedCmd)
	DbCmd.AddCommand(dbCleanupCmd)
}

func latest(versions []string) string {
	if len(versions) == 0 {
		return "none"
	}
	return versions[len(versions)-1]
}
