package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

// NextRunCmd computes when a cadence next fires, without touching the database
var NextRunCmd = &cobra.Command{
	Use:   "next-run",
	Short: "Compute the next run of a cadence",
	Long: `Compute the next UTC run time for a cadence and time of day.

Examples:
  buzzsnip next-run --cadence daily --time 14:00
  buzzsnip next-run --cadence weekly --time 08:00 --days monday,friday
  buzzsnip next-run --cadence monthly --time 09:00 --now 2024-01-31T10:00:00Z`,
	RunE: runNextRun,
}

func init() {
	NextRunCmd.Flags().String("cadence", string(cadence.Daily), "daily, weekly or monthly")
	NextRunCmd.Flags().String("time", "", "UTC time of day, HH:MM")
	NextRunCmd.Flags().StringSlice("days", nil, "Weekdays for weekly cadences")
	NextRunCmd.Flags().String("now", "", "Reference time in RFC3339 (default: current time)")
	NextRunCmd.MarkFlagRequired("time")
}

func runNextRun(cmd *cobra.Command, args []string) error {
	c, _ := cmd.Flags().GetString("cadence")
	tod, _ := cmd.Flags().GetString("time")
	days, _ := cmd.Flags().GetStringSlice("days")
	nowFlag, _ := cmd.Flags().GetString("now")

	if _, _, ok := cadence.ParseTimeOfDay(tod); !ok {
		return errors.NewFieldError("time", "must be HH:MM in 24-hour time, got %q", tod)
	}
	for _, d := range days {
		if _, ok := cadence.WeekdayIndex(d); !ok {
			return errors.NewFieldError("days", "unknown weekday %q", d)
		}
	}

	var clock cadence.Clock = cadence.SystemClock{}
	if nowFlag != "" {
		now, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return errors.NewFieldError("now", "must be RFC3339, got %q", nowFlag)
		}
		clock = cadence.NewFixedClock(now)
	}

	next := cadence.NextRun(cadence.Cadence(c), tod, days, clock.Now())
	fmt.Fprintln(cmd.OutOrStdout(), next.UTC().Format(time.RFC3339))
	return nil
}
