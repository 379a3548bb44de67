package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/buzzsnip/buzzsnip/am"
	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/internal/util"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
	"github.com/buzzsnip/buzzsnip/pulse/schedule"
)

// ScheduleCmd manages content schedules
var ScheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"sched"},
	Short:   logger.SymPulse + " Manage content schedules",
	Long: logger.SymPulse + ` Manage recurring content schedules.

A schedule names a persona, a cadence (daily, weekly or monthly) and a UTC
time of day. The server's ticker turns due schedules into generation jobs.

Examples:
  buzzsnip schedule ls
  buzzsnip schedule add --name "Daily Tips" --persona tech_guru --cadence daily --time 14:00 --platforms youtube
  buzzsnip schedule pause schedule_001
  buzzsnip schedule run schedule_001`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scheduleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			list, err := svc.schedules.List(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to list schedules")
			}
			return renderSchedules(cmd.OutOrStdout(), list)
		})
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show <schedule-id>",
	Short: "Show one schedule as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			s, err := svc.schedules.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		})
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a schedule",
	Long: `Create a schedule. Times are UTC in 24-hour HH:MM form.

Weekly schedules run on the listed --days; without days they repeat every
seven days. Monthly schedules repeat on the day of the month they were created,
clamped to the last day of shorter months.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := scheduleSpecFromFlags(cmd)
		if err != nil {
			return err
		}
		return withServices(func(svc *services) error {
			s, err := svc.schedules.Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Created %s, next run %s\n", s.ID, formatTime(&s.NextRun))
			return nil
		})
	},
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause <schedule-id>",
	Short: "Pause a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleStatus(cmd.Context(), args[0], schedule.StatusPaused)
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume <schedule-id>",
	Short: "Resume a paused schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleStatus(cmd.Context(), args[0], schedule.StatusActive)
	},
}

var scheduleRmCmd = &cobra.Command{
	Use:     "rm <schedule-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a schedule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			if err := svc.schedules.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			pterm.Success.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <schedule-id>",
	Short: "Queue a job for a schedule now",
	Long: `Queue a generation job for the schedule immediately. The schedule's
next run is left unchanged. A running server picks the job up on its next poll.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			job, err := svc.schedules.RunNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pterm.Success.Printf("Queued job %s for %s\n", job.ID, args[0])
			return nil
		})
	},
}

func init() {
	f := scheduleAddCmd.Flags()
	f.String("name", "", "Schedule name")
	f.String("persona", "", "Persona id")
	f.String("cadence", string(cadence.Daily), "daily, weekly or monthly")
	f.String("time", "", "UTC time of day, HH:MM")
	f.StringSlice("days", nil, "Weekdays for weekly schedules (e.g. monday,friday)")
	f.StringSlice("platforms", nil, "Target platforms (e.g. youtube,instagram)")
	f.String("theme", "", "Content theme")
	f.Int("duration", schedule.DefaultDuration, "Video length in seconds")
	f.Bool("no-auto-post", false, "Generate without posting")
	f.Bool("paused", false, "Create the schedule paused")

	ScheduleCmd.AddCommand(scheduleLsCmd)
	ScheduleCmd.AddCommand(scheduleShowCmd)
	ScheduleCmd.AddCommand(scheduleAddCmd)
	ScheduleCmd.AddCommand(schedulePauseCmd)
	ScheduleCmd.AddCommand(scheduleResumeCmd)
	ScheduleCmd.AddCommand(scheduleRmCmd)
	ScheduleCmd.AddCommand(scheduleRunCmd)
}

func scheduleSpecFromFlags(cmd *cobra.Command) (schedule.Spec, error) {
	f := cmd.Flags()
	name, _ := f.GetString("name")
	persona, _ := f.GetString("persona")
	c, _ := f.GetString("cadence")
	tod, _ := f.GetString("time")
	days, _ := f.GetStringSlice("days")
	platforms, _ := f.GetStringSlice("platforms")
	theme, _ := f.GetString("theme")
	duration, _ := f.GetInt("duration")
	noAutoPost, _ := f.GetBool("no-auto-post")
	paused, _ := f.GetBool("paused")

	spec := schedule.Spec{
		Name:      name,
		PersonaID: persona,
		Cadence:   cadence.Cadence(strings.ToLower(c)),
		TimeOfDay: tod,
		Weekdays:  days,
		Platforms: platforms,
		Theme:     theme,
		Duration:  util.Ptr(duration),
		AutoPost:  util.Ptr(!noAutoPost),
	}
	if paused {
		spec.Status = schedule.StatusPaused
	}
	return spec, spec.Validate()
}

func setScheduleStatus(ctx context.Context, id string, status schedule.Status) error {
	return withServices(func(svc *services) error {
		s, err := svc.schedules.SetStatus(ctx, id, status)
		if err != nil {
			return err
		}
		pterm.Success.Printf("%s is %s, next run %s\n", s.ID, s.Status, formatTime(&s.NextRun))
		return nil
	})
}

// withServices loads config, opens the database and runs fn against it
func withServices(fn func(*services) error) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func renderSchedules(w io.Writer, list []*schedule.Schedule) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No schedules")
		return nil
	}

	data := pterm.TableData{{"ID", "NAME", "PERSONA", "CADENCE", "TIME", "STATUS", "NEXT RUN", "RUNS", "SUCCESS"}}
	for _, s := range list {
		when := s.TimeOfDay
		if len(s.Weekdays) > 0 {
			when += " " + strings.Join(s.Weekdays, ",")
		}
		data = append(data, []string{
			s.ID,
			s.Name,
			s.PersonaID,
			string(s.Cadence),
			when,
			string(s.Status),
			formatTime(&s.NextRun),
			strconv.Itoa(s.TotalRuns),
			strconv.FormatFloat(s.SuccessRate, 'f', 1, 64) + "%",
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(w).Render()
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	fmt.Fprintln(w, string(data))
	return nil
}
