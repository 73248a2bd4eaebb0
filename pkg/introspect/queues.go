package introspect

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/rqlens/pkg/match"
	"github.com/3leaps/rqlens/pkg/rq"
)

// GetQueueStats returns per-state counts for every known queue, ordered by
// name. Known queues with no jobs are included with zero counts. The
// scheduled count includes rq-scheduler jobs whose origin is the queue.
func (s *Service) GetQueueStats(ctx context.Context) ([]rq.QueueStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	queues, workers, err := s.knownQueues(ctx)
	if err != nil {
		return nil, err
	}

	cols := make([]rq.Collection, 0, len(queues)*len(rq.ListedStatuses))
	for _, q := range queues {
		for _, status := range rq.ListedStatuses {
			col, _ := s.keys.Registry(q, status)
			cols = append(cols, col)
		}
	}
	counts, err := s.store.Cardinalities(ctx, cols)
	if err != nil {
		return nil, err
	}

	scheduled, err := s.schedulerJobs(ctx, queues)
	if err != nil {
		return nil, err
	}

	perQueue := workersPerQueue(workers)
	out := make([]rq.QueueStats, 0, len(queues))
	for i, q := range queues {
		st := rq.QueueStats{Name: q, Workers: perQueue[q]}
		for j, status := range rq.ListedStatuses {
			st.Counts.Set(status, counts[i*len(rq.ListedStatuses)+j])
		}
		st.Counts.Scheduled += int64(len(scheduled[q]))
		st.Total = st.Counts.Sum()
		out = append(out, st)
	}
	return out, nil
}

// KnownQueues returns the sorted set of queue names the service can see.
func (s *Service) KnownQueues(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	queues, _, err := s.knownQueues(ctx)
	return queues, err
}

// MatchQueues keeps the stats whose queue name matches at least one include
// glob and no exclude glob. No patterns keeps everything.
func MatchQueues(stats []rq.QueueStats, includes, excludes []string) ([]rq.QueueStats, error) {
	m, err := match.New(match.Config{Includes: includes, Excludes: excludes})
	if err != nil {
		var perr *match.PatternError
		if errors.As(err, &perr) {
			return nil, invalid("match queues", perr.Pattern, "%v", perr.Err)
		}
		return nil, invalid("match queues", "", "%v", err)
	}
	if m.Empty() {
		return stats, nil
	}
	out := make([]rq.QueueStats, 0, len(stats))
	for _, st := range stats {
		if m.Match(st.Name) {
			out = append(out, st)
		}
	}
	return out, nil
}

// knownQueues derives the queue set from the queues set, worker
// declarations, registry keys (when scanning is enabled) and static
// configuration. The worker records read along the way are returned so
// callers can reuse them.
func (s *Service) knownQueues(ctx context.Context) ([]string, []rq.WorkerStatus, error) {
	seen := make(map[string]struct{})
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" {
			seen[name] = struct{}{}
		}
	}

	members, err := s.store.SetMembers(ctx, s.keys.QueuesKey())
	if err != nil {
		return nil, nil, err
	}
	for _, m := range members {
		add(s.keys.QueueName(m))
	}

	workers, err := s.fetchWorkers(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range workers {
		for _, q := range w.QueueNames {
			add(q)
		}
	}

	if s.cfg.DiscoveryScan {
		for _, pattern := range s.keys.RegistryScanPatterns() {
			keys, err := s.store.ScanKeys(ctx, pattern)
			if err != nil {
				return nil, nil, err
			}
			for _, k := range keys {
				if name, ok := s.keys.RegistryQueueName(k); ok {
					add(name)
				}
			}
		}
	}

	for _, q := range s.cfg.StaticQueues {
		add(q)
	}

	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	s.logger.Debug("resolved known queues", zap.Int("count", len(queues)))
	return queues, workers, nil
}

// resolveQueue validates a single queue name against the known set.
func (s *Service) resolveQueue(ctx context.Context, op, name string) error {
	queues, _, err := s.knownQueues(ctx)
	if err != nil {
		return err
	}
	i := sort.SearchStrings(queues, name)
	if i < len(queues) && queues[i] == name {
		return nil
	}
	return invalid(op, name, "unknown queue %q", name)
}

func workersPerQueue(workers []rq.WorkerStatus) map[string]int {
	out := make(map[string]int)
	for _, w := range workers {
		counted := make(map[string]bool, len(w.QueueNames))
		for _, q := range w.QueueNames {
			if !counted[q] {
				counted[q] = true
				out[q]++
			}
		}
	}
	return out
}

