package jobstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/3leaps/rqlens/pkg/payload"
	"github.com/3leaps/rqlens/pkg/rq"
)

// Ref locates a job id found in a registry.
type Ref struct {
	ID     string
	Queue  string
	Status rq.Status
}

// FetchSummaries reads the records for refs in one pipeline and returns a
// summary per ref, in order. Ids whose record is gone are returned with
// Missing set, carrying the queue and status of the registry they were found
// in.
func (r *Repository) FetchSummaries(ctx context.Context, refs []Ref) ([]rq.JobSummary, error) {
	out := make([]rq.JobSummary, 0, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = r.keys.JobKey(ref.ID)
	}
	records, err := r.store.HashGetAllMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	for i, ref := range refs {
		fields := records[i]
		if len(fields) == 0 {
			r.logger.Debug("registry references missing job record",
				zap.String("job_id", ref.ID),
				zap.String("queue", ref.Queue),
				zap.String("state", ref.Status.String()),
			)
			out = append(out, rq.JobSummary{ID: ref.ID, QueueName: ref.Queue, Status: ref.Status, Missing: true})
			continue
		}
		out = append(out, r.summarize(ref, fields))
	}
	return out, nil
}

func (r *Repository) summarize(ref Ref, fields map[string]string) rq.JobSummary {
	s := rq.JobSummary{ID: ref.ID, QueueName: ref.Queue, Status: ref.Status}
	if origin := fields["origin"]; origin != "" {
		s.QueueName = origin
	}
	if status := fields["status"]; status != "" {
		s.Status = rq.Status(status)
	}

	if v, ok := fields["enqueued_at"]; ok {
		t, err := rq.ParseTime(v)
		if err != nil {
			s.Corrupt = true
		}
		s.EnqueuedAt = t
	}

	if raw, ok := fields["data"]; ok {
		inv, err := payload.DecodeInvocation([]byte(raw))
		if err != nil {
			s.Corrupt = true
		} else {
			s.FuncName = payload.Truncate(inv.FuncName, r.truncate)
			s.Args = payload.Truncate(payload.FormatCall(inv.Args, inv.Kwargs), r.truncate)
		}
	}
	return s
}
