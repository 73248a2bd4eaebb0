package introspect

import (
	"context"
	"strings"

	"github.com/3leaps/rqlens/pkg/jobstore"
	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

// ListQuery selects one page of a job listing.
type ListQuery struct {
	// Queue is a queue name or "all".
	Queue string
	// State is a listed state or "all", which selects queued jobs.
	State string
	// Page is 1-based; values below 1 are raised to 1.
	Page int
	// PageSize falls back to the configured page size when zero.
	PageSize int
}

// ListJobs returns one page of job summaries.
//
// With Queue "all" the registries of every known queue, in name order, are
// paged as if concatenated. Ids whose record has expired are returned with
// Missing set.
func (s *Service) ListJobs(ctx context.Context, q ListQuery) (*rq.JobsPage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	status, err := rq.ParseStateFilter(q.State)
	if err != nil {
		return nil, err
	}
	size := q.PageSize
	if size <= 0 {
		size = s.cfg.PageSize
	}
	page, size := jobstore.ClampPage(q.Page, size)

	queue := strings.TrimSpace(q.Queue)
	if queue == "" {
		queue = rq.FilterAll
	}

	var (
		refs  []jobstore.Ref
		total int64
	)
	if queue == rq.FilterAll {
		refs, total, err = s.pageAcrossQueues(ctx, status, page, size)
	} else {
		refs, total, err = s.pageQueue(ctx, queue, status, page, size)
	}
	if err != nil {
		return nil, err
	}

	jobs, err := s.repo.FetchSummaries(ctx, refs)
	if err != nil {
		return nil, err
	}
	return newJobsPage(queue, status, page, size, total, jobs), nil
}

func (s *Service) pageQueue(ctx context.Context, queue string, status rq.Status, page, size int) ([]jobstore.Ref, int64, error) {
	if err := s.resolveQueue(ctx, "list jobs", queue); err != nil {
		return nil, 0, err
	}
	ids, total, err := s.repo.ListRegistryPage(ctx, queue, status, page, size)
	if err != nil {
		return nil, 0, err
	}
	if status == rq.StatusScheduled {
		extra, err := s.schedulerJobs(ctx, []string{queue})
		if err != nil {
			return nil, 0, err
		}
		ids = append(ids, windowOf(extra[queue], total, page, size)...)
		total += int64(len(extra[queue]))
	}
	refs := make([]jobstore.Ref, len(ids))
	for i, id := range ids {
		refs[i] = jobstore.Ref{ID: id, Queue: queue, Status: status}
	}
	return refs, total, nil
}

// pageAcrossQueues counts each known queue's registry, then reads only the
// slices of those registries that fall inside the global page window.
// Listing scheduled jobs also pages through rq-scheduler jobs, placed after
// the scheduled registry of their queue.
func (s *Service) pageAcrossQueues(ctx context.Context, status rq.Status, page, size int) ([]jobstore.Ref, int64, error) {
	queues, _, err := s.knownQueues(ctx)
	if err != nil {
		return nil, 0, err
	}

	cols := make([]rq.Collection, len(queues))
	for i, q := range queues {
		cols[i], _ = s.keys.Registry(q, status)
	}
	counts, err := s.store.Cardinalities(ctx, cols)
	if err != nil {
		return nil, 0, err
	}

	// rq-scheduler jobs follow each queue's scheduled registry.
	var extra map[string][]string
	if status == rq.StatusScheduled {
		if extra, err = s.schedulerJobs(ctx, queues); err != nil {
			return nil, 0, err
		}
	}

	var total int64
	for i, q := range queues {
		total += counts[i] + int64(len(extra[q]))
	}

	windowStart := int64(page-1) * int64(size)
	windowEnd := windowStart + int64(size)

	type segment struct {
		queue string
		req   int
		extra []string
	}
	var (
		reqs   []rqstore.RangeRequest
		segs   []segment
		offset int64
	)
	for i, q := range queues {
		n := counts[i]
		more := extra[q]
		lo, hi := offset, offset+n+int64(len(more))
		offset = hi
		if hi <= windowStart || lo >= windowEnd {
			continue
		}
		start := max(windowStart, lo) - lo
		stop := min(windowEnd, hi) - lo
		seg := segment{queue: q, req: -1}
		if start < n {
			seg.req = len(reqs)
			reqs = append(reqs, rqstore.RangeRequest{Collection: cols[i], Start: start, Stop: min(stop, n) - 1})
		}
		if stop > n {
			seg.extra = more[max(start-n, 0) : stop-n]
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return []jobstore.Ref{}, total, nil
	}

	var ranges [][]string
	if len(reqs) > 0 {
		if ranges, err = s.store.Ranges(ctx, reqs); err != nil {
			return nil, 0, err
		}
	}
	refs := make([]jobstore.Ref, 0, size)
	add := func(queue string, ids []string) {
		for _, id := range ids {
			if len(refs) == size {
				return
			}
			refs = append(refs, jobstore.Ref{ID: id, Queue: queue, Status: status})
		}
	}
	for _, seg := range segs {
		if seg.req >= 0 {
			add(seg.queue, ranges[seg.req])
		}
		add(seg.queue, seg.extra)
	}
	return refs, total, nil
}

func newJobsPage(queue string, status rq.Status, page, size int, total int64, jobs []rq.JobSummary) *rq.JobsPage {
	totalPages := int((total + int64(size) - 1) / int64(size))
	return &rq.JobsPage{
		Queue:           queue,
		State:           status,
		Page:            page,
		PageSize:        size,
		TotalCount:      total,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
		Jobs:            jobs,
	}
}
