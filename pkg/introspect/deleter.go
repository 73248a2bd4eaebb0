package introspect

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

// DeleteJob removes a job from every registry of its queue and deletes its
// record, dependency sets and results. It returns the id when anything was
// removed and an empty slice otherwise; deleting an unknown id is not an
// error.
func (s *Service) DeleteJob(ctx context.Context, id string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("delete job", "", "job id is required")
	}
	removed, err := s.deleteJob(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if !removed {
		return []string{}, nil
	}
	s.logger.Info("deleted job", zap.String("job_id", id))
	return []string{id}, nil
}

// DeleteQueue deletes every job found in any registry of queue and returns
// the removed ids in enumeration order: registry order, then rank within the
// registry. The queue itself stays known. Unknown queues are rejected.
func (s *Service) DeleteQueue(ctx context.Context, queue string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	queue = strings.TrimSpace(queue)
	if queue == "" || queue == rq.FilterAll {
		return nil, invalid("delete queue", queue, "a single queue name is required")
	}

	if err := s.resolveQueue(ctx, "delete queue", queue); err != nil {
		return nil, err
	}

	ids, err := s.enumerateQueue(ctx, queue)
	if err != nil {
		return nil, err
	}

	removed := make([]bool, len(ids))
	var limiter *rate.Limiter
	if s.cfg.DeleteRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.DeleteRate), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DeleteConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if limiter != nil {
				// Wait fails early when the next token lies past the deadline.
				if err := limiter.Wait(gctx); err != nil {
					if cerr := ctxErr(gctx, "delete queue"); cerr != nil {
						return cerr
					}
					return rq.Wrap("delete queue", queue, fmt.Errorf("%w: %w", rq.ErrServiceUnavailable, err))
				}
			}
			ok, err := s.deleteJob(gctx, id, []string{queue})
			if err != nil {
				return err
			}
			removed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("queue purge aborted", zap.String("queue", queue), zap.Error(err))
		return nil, err
	}

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if removed[i] {
			out = append(out, id)
		}
	}
	s.logger.Info("purged queue", zap.String("queue", queue), zap.Int("jobs", len(out)))
	return out, nil
}

// enumerateQueue reads every registry of queue in one pipeline and returns
// the distinct ids in registry order, followed by the queue's rq-scheduler
// jobs.
func (s *Service) enumerateQueue(ctx context.Context, queue string) ([]string, error) {
	cols := s.keys.Registries(queue)
	reqs := make([]rqstore.RangeRequest, len(cols))
	for i, c := range cols {
		reqs[i] = rqstore.RangeRequest{Collection: c, Start: 0, Stop: -1}
	}
	ranges, err := s.store.Ranges(ctx, reqs)
	if err != nil {
		return nil, err
	}

	scheduled, err := s.schedulerJobs(ctx, []string{queue})
	if err != nil {
		return nil, err
	}
	ranges = append(ranges, scheduled[queue])

	seen := make(map[string]struct{})
	var ids []string
	for _, r := range ranges {
		for _, id := range r {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// deleteJob removes id from the registries of its origin queue and of the
// fallback queues, and from the rq-scheduler set. When the record is gone
// and fallback is nil, every known queue is cleaned.
func (s *Service) deleteJob(ctx context.Context, id string, fallback []string) (bool, error) {
	fields, err := s.store.HashGetAll(ctx, s.keys.JobKey(id))
	if err != nil {
		return false, err
	}

	queues := append([]string(nil), fallback...)
	if origin := fields["origin"]; origin != "" {
		if !slices.Contains(queues, origin) {
			queues = append(queues, origin)
		}
	} else if fallback == nil {
		if queues, _, err = s.knownQueues(ctx); err != nil {
			return false, err
		}
	}

	removals := make([]rqstore.Removal, 0, len(queues)*len(rq.RegistryStatuses)+1)
	removals = append(removals, rqstore.Removal{Collection: s.keys.SchedulerJobs(), Member: id})
	for _, q := range queues {
		for _, c := range s.keys.Registries(q) {
			removals = append(removals, rqstore.Removal{Collection: c, Member: id})
		}
	}
	counts, err := s.store.RemoveMembers(ctx, removals)
	if err != nil {
		return false, err
	}
	var removed int64
	for _, n := range counts {
		removed += n
	}

	deleted, err := s.store.Delete(ctx,
		s.keys.JobKey(id),
		s.keys.DependentsKey(id),
		s.keys.DependenciesKey(id),
		s.keys.ResultsKey(id),
	)
	if err != nil {
		return false, err
	}
	return removed+deleted > 0, nil
}
