package introspect

import (
	"context"
	"sort"

	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

// schedulerJobs returns, per queue, the rq-scheduler ids whose record names
// that queue as origin and that are not already in the queue's scheduled
// registry. Ids keep scheduler score order. Ids without a record cannot be
// attributed to a queue and are skipped.
func (s *Service) schedulerJobs(ctx context.Context, queues []string) (map[string][]string, error) {
	ranges, err := s.store.Ranges(ctx, []rqstore.RangeRequest{
		{Collection: s.keys.SchedulerJobs(), Start: 0, Stop: -1},
	})
	if err != nil {
		return nil, err
	}
	ids := ranges[0]
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.JobKey(id)
	}
	origins, err := s.store.HashFieldMany(ctx, keys, "origin")
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		wanted[q] = struct{}{}
	}
	byQueue := make(map[string][]string)
	for i, id := range ids {
		if _, ok := wanted[origins[i]]; ok {
			byQueue[origins[i]] = append(byQueue[origins[i]], id)
		}
	}
	if len(byQueue) == 0 {
		return nil, nil
	}

	owners := make([]string, 0, len(byQueue))
	for q := range byQueue {
		owners = append(owners, q)
	}
	sort.Strings(owners)
	reqs := make([]rqstore.RangeRequest, len(owners))
	for i, q := range owners {
		col, _ := s.keys.Registry(q, rq.StatusScheduled)
		reqs[i] = rqstore.RangeRequest{Collection: col, Start: 0, Stop: -1}
	}
	registered, err := s.store.Ranges(ctx, reqs)
	if err != nil {
		return nil, err
	}

	for i, q := range owners {
		in := make(map[string]struct{}, len(registered[i]))
		for _, id := range registered[i] {
			in[id] = struct{}{}
		}
		kept := byQueue[q][:0]
		for _, id := range byQueue[q] {
			if _, dup := in[id]; !dup {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(byQueue, q)
			continue
		}
		byQueue[q] = kept
	}
	return byQueue, nil
}

// windowOf returns the part of extra that falls inside the page window when
// extra follows offset entries.
func windowOf(extra []string, offset int64, page, size int) []string {
	start := int64(page-1) * int64(size)
	end := start + int64(size)
	lo := max(start-offset, 0)
	hi := min(end-offset, int64(len(extra)))
	if lo >= hi {
		return nil
	}
	return extra[lo:hi]
}
