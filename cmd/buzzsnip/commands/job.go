package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/pulse/async"
)

// JobCmd inspects generation jobs
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect generation jobs",
	Long: `Inspect generation jobs.

Job statuses:
  queued     - Admitted, waiting for a worker
  processing - Dispatched to the generation service
  completed  - Finished with a result
  failed     - Finished with an error

Examples:
  buzzsnip job ls                    # Most recent jobs first
  buzzsnip job ls --status failed    # Only failed jobs
  buzzsnip job show <job-id>         # Full job as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		scheduleID, _ := cmd.Flags().GetString("schedule")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := async.ListOptions{ScheduleID: scheduleID, Limit: limit}
		if statusFilter != "" {
			status := async.JobStatus(statusFilter)
			if !async.IsValidStatus(statusFilter) {
				return errors.NewFieldError("status", "must be queued, processing, completed or failed, got %q", statusFilter)
			}
			opts.Status = &status
		}

		return withServices(func(svc *services) error {
			jobs, err := svc.jobs.List(cmd.Context(), opts)
			if err != nil {
				return errors.Wrap(err, "failed to list jobs")
			}
			return renderJobs(cmd.OutOrStdout(), jobs)
		})
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *services) error {
			job, err := svc.jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		})
	},
}

func init() {
	jobLsCmd.Flags().String("status", "", "Filter by status")
	jobLsCmd.Flags().String("schedule", "", "Filter by schedule id")
	jobLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")

	JobCmd.AddCommand(jobLsCmd)
	JobCmd.AddCommand(jobShowCmd)
}

func renderJobs(w io.Writer, jobs []*async.Job) error {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs")
		return nil
	}

	data := pterm.TableData{{"ID", "KIND", "STATUS", "PROGRESS", "SCHEDULE", "CREATED", "ERROR"}}
	for _, j := range jobs {
		scheduleID := j.ScheduleID
		if scheduleID == "" {
			scheduleID = "-"
		}
		data = append(data, []string{
			j.ID,
			string(j.Kind),
			string(j.Status),
			strconv.Itoa(j.Progress) + "%",
			scheduleID,
			formatTime(&j.CreatedAt),
			j.Error,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(w).Render()
}
