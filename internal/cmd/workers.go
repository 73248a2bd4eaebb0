package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3leaps/rqlens/pkg/output"
	"github.com/3leaps/rqlens/pkg/rq"
)

var workersCmd = &cobra.Command{
	Use:     "workers",
	Aliases: []string{"worker", "w"},
	Short:   "List registered workers",
	Long: `List every worker registered in Redis with its state, queues, current job
and heartbeat. Workers whose heartbeat is older than workers.stale_after are
flagged as possibly dead; they are never removed.

Examples:
  rqlens workers
  rqlens workers -o jsonl`,
	Args: cobra.NoArgs,
	RunE: runWorkers,
}

func init() {
	rootCmd.AddCommand(workersCmd)
}

func runWorkers(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	svc, cfg, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	workers, err := svc.ListWorkers(ctx)
	if err != nil {
		return commandError("failed to list workers", err)
	}

	r, err := newRenderer(cmd, cfg)
	if err != nil {
		return err
	}
	return renderWorkers(ctx, r, workers)
}

func renderWorkers(ctx context.Context, r *renderer, workers []rq.WorkerStatus) error {
	switch r.format {
	case output.FormatTable:
		if len(workers) == 0 {
			r.printf("No workers registered.\n")
			return nil
		}
		w := r.table()
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tQUEUES\tCURRENT JOB\tHEARTBEAT\tOK\tFAILED\tHOST")
		for _, wk := range workers {
			state := string(wk.State)
			if wk.PossiblyDead {
				state += " (possibly dead)"
			}
			current := "-"
			if wk.CurrentJobID != nil {
				current = *wk.CurrentJobID
			}
			host := orDash(wk.Hostname)
			if wk.PID > 0 {
				host = fmt.Sprintf("%s:%d", host, wk.PID)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				wk.Name, state, orDash(strings.Join(wk.QueueNames, ",")), current,
				formatRelativeTime(wk.LastHeartbeat), wk.SuccessfulJobs, wk.FailedJobs, host)
		}
		return w.Flush()
	case output.FormatJSONL:
		for i := range workers {
			if err := r.jsonl.WriteWorker(ctx, &workers[i]); err != nil {
				return err
			}
		}
		return r.finish(ctx)
	default:
		if workers == nil {
			workers = []rq.WorkerStatus{}
		}
		return r.document(workers)
	}
}
