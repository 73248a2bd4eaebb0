package introspect

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/rqlens/pkg/rq"
)

// ListWorkers returns every registered worker with a live record, ordered by
// name. Registrations whose record has expired are skipped. Workers whose
// heartbeat is older than the configured threshold are flagged PossiblyDead
// but never removed.
func (s *Service) ListWorkers(ctx context.Context) ([]rq.WorkerStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.fetchWorkers(ctx)
}

func (s *Service) fetchWorkers(ctx context.Context) ([]rq.WorkerStatus, error) {
	members, err := s.store.SetMembers(ctx, s.keys.WorkersKey())
	if err != nil {
		return nil, err
	}
	sort.Strings(members)

	records, err := s.store.HashGetAllMany(ctx, members)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]rq.WorkerStatus, 0, len(members))
	for i, key := range members {
		name := s.keys.WorkerName(key)
		if len(records[i]) == 0 {
			s.logger.Debug("skipping worker without record", zap.String("worker", name))
			continue
		}
		w := s.decodeWorker(name, records[i])
		if s.cfg.StaleAfter > 0 {
			w.PossiblyDead = w.LastHeartbeat == nil || now.Sub(*w.LastHeartbeat) > s.cfg.StaleAfter
		}
		out = append(out, w)
	}
	return out, nil
}

// decodeWorker is lenient: unparseable fields are left zero and logged.
func (s *Service) decodeWorker(name string, fields map[string]string) rq.WorkerStatus {
	w := rq.WorkerStatus{
		Name:       name,
		State:      rq.WorkerState(fields["state"]),
		QueueNames: splitQueues(fields["queues"]),
		Hostname:   fields["hostname"],
	}
	if job := fields["current_job"]; job != "" {
		w.CurrentJobID = &job
	}

	bad := func(field string, err error) {
		s.logger.Debug("unparseable worker field",
			zap.String("worker", name), zap.String("field", field), zap.Error(err))
	}

	var err error
	if w.BirthDate, err = rq.ParseTime(fields["birth"]); err != nil {
		bad("birth", err)
	}
	if w.LastHeartbeat, err = rq.ParseTime(fields["last_heartbeat"]); err != nil {
		bad("last_heartbeat", err)
	}
	if v := fields["pid"]; v != "" {
		if w.PID, err = strconv.Atoi(v); err != nil {
			bad("pid", err)
		}
	}
	if v := fields["successful_job_count"]; v != "" {
		if w.SuccessfulJobs, err = strconv.ParseInt(v, 10, 64); err != nil {
			bad("successful_job_count", err)
		}
	}
	if v := fields["failed_job_count"]; v != "" {
		if w.FailedJobs, err = strconv.ParseInt(v, 10, 64); err != nil {
			bad("failed_job_count", err)
		}
	}
	if v := fields["total_working_time"]; v != "" {
		if w.TotalWorkingTime, err = strconv.ParseFloat(v, 64); err != nil {
			bad("total_working_time", err)
		}
	}
	return w
}

func splitQueues(v string) []string {
	out := []string{}
	for _, q := range strings.Split(v, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
