package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/monitoring"
	"github.com/sells-group/property-research/internal/research"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect research job history",
	Long:  "Commands for listing research jobs and reading their status, output and dossier.",
}

// openReader opens the store behind an orchestrator that only serves reads.
func openReader(ctx context.Context) (*research.Orchestrator, func(), error) {
	if err := cfg.Validate("migrate"); err != nil {
		return nil, nil, err
	}
	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	o := research.New(st, worker.NewRegistry(), research.Config{})
	return o, func() { st.Close() }, nil //nolint:errcheck
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List research jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		o, closeFn, err := openReader(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := store.JobFilter{Limit: limit, Offset: offset}
		if status != "" {
			if filter.Status, err = model.ParseJobStatus(status); err != nil {
				return err
			}
		}

		jobs, err := o.ListJobs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}
		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs status --

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and worker runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, closeFn, err := openReader(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		job, err := o.GetStatus(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs status")
		}
		runs, err := o.WorkerRuns(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "jobs status")
		}
		formatJobStatus(os.Stdout, job, runs)
		return nil
	},
}

// -- jobs output --

var jobsOutputCmd = &cobra.Command{
	Use:   "output <job-id>",
	Short: "Print a completed job's output as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, closeFn, err := openReader(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		out, err := o.GetOutput(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs output")
		}
		return writeResult(os.Stdout, out, false)
	},
}

// -- jobs dossier --

var jobsDossierCmd = &cobra.Command{
	Use:   "dossier [job-id]",
	Short: "Print a dossier by job id, or the latest one for --address",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		addr, _ := cmd.Flags().GetString("address")
		if (len(args) == 0) == (addr == "") {
			return eris.New("jobs dossier: pass exactly one of <job-id> or --address")
		}

		o, closeFn, err := openReader(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		var dossier string
		if addr != "" {
			dossier, err = o.GetDossierByAddress(ctx, research.Request{Address: addr})
		} else {
			dossier, err = o.GetDossier(ctx, args[0])
		}
		if err != nil {
			return eris.Wrap(err, "jobs dossier")
		}
		_, err = io.WriteString(os.Stdout, dossier)
		return err
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		o, closeFn, err := openReader(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		since, _ := cmd.Flags().GetDuration("since")
		// high limit for stats
		jobs, err := o.ListJobs(ctx, store.JobFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		now := time.Now().UTC()
		var cutoff time.Time
		if since > 0 {
			cutoff = now.Add(-since)
		}
		formatJobStats(os.Stdout, monitoring.Summarize(jobs, cutoff, now, cfg.Monitoring.StuckAfter()))
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (pending, in_progress, completed, failed)")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")
	jobsListCmd.Flags().Int("offset", 0, "number of jobs to skip")

	jobsDossierCmd.Flags().String("address", "", "look up the latest completed job for this address")

	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsOutputCmd)
	jobsCmd.AddCommand(jobsDossierCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tADDRESS\tSTRATEGY\tSTATUS\tPROGRESS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t--------\t------\t--------\t-------\t--------")

	for _, j := range jobs {
		dur := ""
		if j.StartedAt != nil && j.CompletedAt != nil {
			dur = j.CompletedAt.Sub(*j.StartedAt).Round(time.Second).String()
		}

		addr := j.Subject.NormalizedAddress
		if len(addr) > 30 {
			addr = addr[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			truncateID(j.ID),
			addr,
			j.Strategy,
			j.Status,
			j.Progress,
			j.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatJobStatus writes a job summary followed by its worker runs.
func formatJobStatus(out io.Writer, job *model.Job, runs []model.WorkerRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	_, _ = fmt.Fprintf(w, "Address:\t%s\n", job.Subject.NormalizedAddress)
	_, _ = fmt.Fprintf(w, "Strategy:\t%s (%s rehab)\n", job.Strategy, job.RehabTier)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", job.Status)
	_, _ = fmt.Fprintf(w, "Progress:\t%d%%\n", job.Progress)
	if job.CurrentStep != "" {
		_, _ = fmt.Fprintf(w, "Step:\t%s\n", job.CurrentStep)
	}
	if job.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", job.Error)
	}
	_ = w.Flush()

	if len(runs) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKER\tCATEGORY\tSTATUS\tDURATION\tDETAIL")
	for _, r := range runs {
		detail := r.Error
		if r.Cached {
			detail = "cached"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n", r.Worker, r.Category, r.Status, r.DurationMS, detail)
	}
	_ = w.Flush()
}

// formatJobStats writes aggregate stats to w.
func formatJobStats(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total jobs:\t%d\n", s.JobsTotal)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.JobsCompleted)
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.JobsFailed, s.FailRate*100)
	_, _ = fmt.Fprintf(w, "  Insufficient data:\t%d\n", s.JobsInsufficient)
	_, _ = fmt.Fprintf(w, "  Interrupted:\t%d\n", s.JobsInterrupted)
	_, _ = fmt.Fprintf(w, "  Other:\t%d\n", s.JobsFailed-s.JobsInsufficient-s.JobsInterrupted)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.JobsRunning)
	if s.JobsStuck > 0 {
		_, _ = fmt.Fprintf(w, "  Stuck:\t%d\n", s.JobsStuck)
	}
	if s.AvgDurationSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurationSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
