package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/rqlens/internal/observability"
	"github.com/3leaps/rqlens/pkg/introspect"
	"github.com/3leaps/rqlens/pkg/output"
	"github.com/3leaps/rqlens/pkg/payload"
	"github.com/3leaps/rqlens/pkg/rq"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "List, show and delete jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of jobs",
	Long: `List one page of jobs from a queue's registry.

--queue all pages across every known queue in name order. --state all lists
the queued registry. Ids whose record has expired are still listed and
flagged as missing.

Examples:
  rqlens jobs list
  rqlens jobs list --queue default --state failed
  rqlens jobs list --queue all --page 3 --page-size 50`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job in full",
	Long: `Show every field of one job: its decoded function reference, arguments,
metadata, timestamps, TTLs, dependencies, and its result or exception when
the job has finished or failed.

Examples:
  rqlens jobs show 5a1c6e9e-1d2f-4c55-9b8e-2a2f0c7d9e11
  rqlens jobs show 5a1c6e9e -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsShow,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one job",
	Long: `Delete a job record, remove it from every registry of its queue, and drop
its dependency links and results. Deleting a job that no longer exists is
not an error.

Examples:
  rqlens jobs delete 5a1c6e9e-1d2f-4c55-9b8e-2a2f0c7d9e11`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsDelete,
}

var (
	jobsQueue    string
	jobsState    string
	jobsPage     int
	jobsPageSize int
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsDeleteCmd)

	jobsListCmd.Flags().StringVar(&jobsQueue, "queue", rq.FilterAll, "queue name, or all")
	jobsListCmd.Flags().StringVar(&jobsState, "state", rq.FilterAll, "queued, started, finished, failed, deferred, scheduled, or all")
	jobsListCmd.Flags().IntVar(&jobsPage, "page", 1, "page number, starting at 1")
	jobsListCmd.Flags().IntVar(&jobsPageSize, "page-size", 0, "jobs per page (default from config)")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	svc, cfg, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	page, err := svc.ListJobs(ctx, introspect.ListQuery{
		Queue:    jobsQueue,
		State:    jobsState,
		Page:     jobsPage,
		PageSize: jobsPageSize,
	})
	if err != nil {
		return commandError("failed to list jobs", err)
	}

	r, err := newRenderer(cmd, cfg)
	if err != nil {
		return err
	}
	return renderJobsPage(ctx, r, page)
}

func renderJobsPage(ctx context.Context, r *renderer, page *rq.JobsPage) error {
	switch r.format {
	case output.FormatTable:
		if len(page.Jobs) == 0 {
			r.printf("No %s jobs in %s (page %d of %d).\n", page.State, page.Queue, page.Page, page.TotalPages)
			return nil
		}
		w := r.table()
		_, _ = fmt.Fprintln(w, "ID\tQUEUE\tSTATUS\tENQUEUED\tFUNCTION\tARGS")
		for _, j := range page.Jobs {
			status := string(j.Status)
			switch {
			case j.Missing:
				status = "missing"
			case j.Corrupt:
				status += " (corrupt)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				j.ID, orDash(j.QueueName), status, formatTime(j.EnqueuedAt), orDash(j.FuncName), j.Args)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		r.printf("\nPage %d of %d, %d job(s) total.\n", page.Page, page.TotalPages, page.TotalCount)
		return nil
	case output.FormatJSONL:
		if err := r.jsonl.WritePage(ctx, pageRecord(page)); err != nil {
			return err
		}
		for i := range page.Jobs {
			if err := r.jsonl.WriteJob(ctx, &page.Jobs[i]); err != nil {
				return err
			}
		}
		return r.finish(ctx)
	default:
		return r.document(page)
	}
}

func pageRecord(p *rq.JobsPage) *output.PageRecord {
	return &output.PageRecord{
		Queue:           p.Queue,
		State:           string(p.State),
		Page:            p.Page,
		PageSize:        p.PageSize,
		TotalCount:      p.TotalCount,
		TotalPages:      p.TotalPages,
		HasNextPage:     p.HasNextPage,
		HasPreviousPage: p.HasPreviousPage,
	}
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	svc, cfg, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	id := strings.TrimSpace(args[0])
	job, err := svc.GetJob(ctx, id)
	if err != nil && (job == nil || !rq.IsDataCorruption(err)) {
		return commandError(fmt.Sprintf("failed to read job %q", id), err)
	}
	if err != nil {
		observability.CLILogger.Warn("job has undecodable fields",
			zap.String("job_id", id), zap.Strings("fields", job.CorruptFields))
	}

	r, rerr := newRenderer(cmd, cfg)
	if rerr != nil {
		return rerr
	}
	return renderJobDetail(ctx, r, job)
}

func renderJobDetail(ctx context.Context, r *renderer, job *rq.JobDetail) error {
	switch r.format {
	case output.FormatTable:
		w := r.table()
		row := func(k, v string) { _, _ = fmt.Fprintf(w, "%s:\t%s\n", k, v) }
		row("ID", job.ID)
		row("Queue", orDash(job.QueueName))
		row("Status", orDash(string(job.Status)))
		row("Description", orDash(job.Description))
		row("Function", fieldText(job.FuncName))
		row("Args", fieldText(job.Args))
		row("Kwargs", fieldText(job.Kwargs))
		row("Meta", fieldText(job.Meta))
		row("Created", formatTime(job.CreatedAt))
		row("Enqueued", formatTime(job.EnqueuedAt))
		row("Started", formatTime(job.StartedAt))
		row("Ended", formatTime(job.EndedAt))
		row("Heartbeat", formatTime(job.LastHeartbeat))
		row("Timeout", seconds(job.Timeout))
		row("TTL", seconds(job.TTL))
		row("Result TTL", seconds(job.ResultTTL))
		row("Failure TTL", seconds(job.FailureTTL))
		row("Depends on", orDash(strings.Join(job.DependencyIDs, ", ")))
		row("Worker", orDash(job.WorkerName))
		if job.Result != nil {
			row("Result", fieldText(*job.Result))
		}
		if job.Corrupt {
			row("Corrupt", strings.Join(job.CorruptFields, ", "))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if job.ExcInfo != nil {
			r.printf("\nException:\n%s\n", strings.TrimRight(*job.ExcInfo, "\n"))
		}
		return nil
	case output.FormatJSONL:
		if err := r.jsonl.WriteJobDetail(ctx, job); err != nil {
			return err
		}
		return r.finish(ctx)
	default:
		return r.document(job)
	}
}

func fieldText(f rq.Field) string {
	if f.Corrupt {
		return "<undecodable: " + f.Error + ">"
	}
	if s, ok := f.Value.(string); ok {
		return s
	}
	return payload.Repr(f.Value)
}

func seconds(v *int64) string {
	if v == nil {
		return "-"
	}
	if *v < 0 {
		return "none"
	}
	return fmt.Sprintf("%ds", *v)
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	if err := requireWritable(); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	svc, cfg, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	id := strings.TrimSpace(args[0])
	deleted, err := svc.DeleteJob(ctx, id)
	if err != nil {
		return commandError(fmt.Sprintf("failed to delete job %q", id), err)
	}
	observability.CLILogger.Info("job delete", zap.String("job_id", id), zap.Int("deleted", len(deleted)))

	r, err := newRenderer(cmd, cfg)
	if err != nil {
		return err
	}
	return renderDeleted(ctx, r, id, deleted)
}
