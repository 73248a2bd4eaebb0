package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/rqlens/internal/observability"
	"github.com/3leaps/rqlens/pkg/introspect"
	"github.com/3leaps/rqlens/pkg/output"
	"github.com/3leaps/rqlens/pkg/rq"
)

var queuesCmd = &cobra.Command{
	Use:     "queues",
	Aliases: []string{"queue", "q"},
	Short:   "Show job counts per queue and state",
	Long: `Show one row per known queue with the size of each registry (queued,
started, finished, failed, deferred, scheduled), their total, and the number
of workers listening on the queue.

Counts are read independently and may be off by one while jobs move between
registries.

Examples:
  rqlens queues
  rqlens queues --match 'email-*'
  rqlens queues --exclude '*-dlq'
  rqlens queues -o json`,
	Args: cobra.NoArgs,
	RunE: runQueues,
}

var queuesPurgeCmd = &cobra.Command{
	Use:   "purge <name>",
	Short: "Delete every job of a queue",
	Long: `Delete every job that appears in any registry of the named queue, together
with the job records, dependency links and results. The queue itself stays
known and reports zero counts afterwards.

Examples:
  rqlens queues purge default --yes
  rqlens queues purge low --yes -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runQueuesPurge,
}

var (
	queuesMatch   []string
	queuesExclude []string
	purgeConfirm  bool
)

func init() {
	rootCmd.AddCommand(queuesCmd)
	queuesCmd.AddCommand(queuesPurgeCmd)

	queuesCmd.Flags().StringSliceVar(&queuesMatch, "match", nil, "only show queues whose name matches one of these globs")
	queuesCmd.Flags().StringSliceVar(&queuesExclude, "exclude", nil, "hide queues whose name matches one of these globs")
	queuesPurgeCmd.Flags().BoolVar(&purgeConfirm, "yes", false, "confirm the purge")
}

func runQueues(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	svc, cfg, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := svc.GetQueueStats(ctx)
	if err != nil {
		return commandError("failed to read queue stats", err)
	}
	stats, err = introspect.MatchQueues(stats, queuesMatch, queuesExclude)
	if err != nil {
		return commandError("invalid queue pattern", err)
	}

	r, err := newRenderer(cmd, cfg)
	if err != nil {
		return err
	}
	return renderQueueStats(ctx, r, stats)
}

func renderQueueStats(ctx context.Context, r *renderer, stats []rq.QueueStats) error {
	switch r.format {
	case output.FormatTable:
		if len(stats) == 0 {
			r.printf("No queues found.\n")
			return nil
		}
		w := r.table()
		_, _ = fmt.Fprintln(w, "QUEUE\tQUEUED\tSTARTED\tFINISHED\tFAILED\tDEFERRED\tSCHEDULED\tTOTAL\tWORKERS")
		for _, s := range stats {
			c := s.Counts
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				s.Name, c.Queued, c.Started, c.Finished, c.Failed, c.Deferred, c.Scheduled, s.Total, s.Workers)
		}
		return w.Flush()
	case output.FormatJSONL:
		for i := range stats {
			if err := r.jsonl.WriteQueue(ctx, &stats[i]); err != nil {
				return err
			}
		}
		return r.finish(ctx)
	default:
		if stats == nil {
			stats = []rq.QueueStats{}
		}
		return r.document(stats)
	}
}

func runQueuesPurge(cmd *cobra.Command, args []string) error {
	if err := requireWritable(); err != nil {
		return err
	}
	name := strings.TrimSpace(args[0])
	if !purgeConfirm {
		return exitError(foundry.ExitInvalidArgument, "purge not confirmed",
			fmt.Errorf("purging queue %q deletes all of its jobs; re-run with --yes", name))
	}

	ctx := commandContext(cmd)
	svc, cfg, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	deleted, err := svc.DeleteQueue(ctx, name)
	if err != nil {
		return commandError(fmt.Sprintf("failed to purge queue %q", name), err)
	}
	observability.CLILogger.Info("queue purged", zap.String("queue", name), zap.Int("deleted", len(deleted)))

	r, err := newRenderer(cmd, cfg)
	if err != nil {
		return err
	}
	return renderDeleted(ctx, r, name, deleted)
}

func renderDeleted(ctx context.Context, r *renderer, target string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	rec := &output.DeletedRecord{Target: target, IDs: ids}
	switch r.format {
	case output.FormatTable:
		if len(ids) == 0 {
			r.printf("Nothing to delete for %s.\n", target)
			return nil
		}
		r.printf("Deleted %d job(s) for %s.\n", len(ids), target)
		return nil
	case output.FormatJSONL:
		if err := r.jsonl.WriteDeleted(ctx, rec); err != nil {
			return err
		}
		return r.finish(ctx)
	default:
		return r.document(rec)
	}
}
