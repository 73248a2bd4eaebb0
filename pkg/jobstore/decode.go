package jobstore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/rqlens/pkg/payload"
	"github.com/3leaps/rqlens/pkg/rq"
)

// Result stream entry types.
const (
	resultSuccessful = "1"
	resultFailed     = "2"
	resultStopped    = "3"
)

func decodeDetail(id string, fields map[string]string) *rq.JobDetail {
	d := &rq.JobDetail{
		ID:            id,
		QueueName:     fields["origin"],
		Status:        rq.Status(fields["status"]),
		Description:   fields["description"],
		WorkerName:    fields["worker_name"],
		DependencyIDs: []string{},
	}

	if raw, ok := fields["data"]; ok {
		inv, err := payload.DecodeInvocation([]byte(raw))
		if err != nil {
			bad := rq.CorruptField(err)
			d.FuncName, d.Args, d.Kwargs = bad, bad, bad
			d.MarkCorrupt("data")
		} else {
			d.FuncName = rq.Field{Value: inv.FuncName}
			d.Args = rq.Field{Value: orEmptyList(inv.Args)}
			d.Kwargs = rq.Field{Value: orEmptyMap(inv.Kwargs)}
		}
	}

	if raw, ok := fields["meta"]; ok && raw != "" {
		d.Meta = decodeField(d, "meta", raw)
	}

	switch d.Status {
	case rq.StatusFinished:
		if raw, ok := fields["result"]; ok {
			f := decodeField(d, "result", raw)
			d.Result = &f
		}
	case rq.StatusFailed, rq.StatusStopped:
		if raw, ok := fields["exc_info"]; ok && raw != "" {
			text, err := payload.DecodeText([]byte(raw))
			if err != nil {
				d.MarkCorrupt("exc_info")
			} else {
				d.ExcInfo = &text
			}
		}
	}

	d.CreatedAt = decodeTime(d, fields, "created_at")
	d.EnqueuedAt = decodeTime(d, fields, "enqueued_at")
	d.StartedAt = decodeTime(d, fields, "started_at")
	d.EndedAt = decodeTime(d, fields, "ended_at")
	d.LastHeartbeat = decodeTime(d, fields, "last_heartbeat")

	d.Timeout = decodeSeconds(d, fields, "timeout")
	d.TTL = decodeSeconds(d, fields, "ttl")
	d.ResultTTL = decodeSeconds(d, fields, "result_ttl")
	d.FailureTTL = decodeSeconds(d, fields, "failure_ttl")

	if raw, ok := fields["dependency_ids"]; ok && raw != "" {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			d.MarkCorrupt("dependency_ids")
		} else if ids != nil {
			d.DependencyIDs = ids
		}
	} else if dep := fields["dependency_id"]; dep != "" {
		d.DependencyIDs = []string{dep}
	}

	return d
}

// needsResultStream reports whether the outcome lives in the results stream
// rather than the record, as it does for RQ 1.12 and later.
func needsResultStream(d *rq.JobDetail, fields map[string]string) bool {
	switch d.Status {
	case rq.StatusFinished:
		_, ok := fields["result"]
		return !ok
	case rq.StatusFailed, rq.StatusStopped:
		_, ok := fields["exc_info"]
		return !ok
	}
	return false
}

func applyResultEntry(d *rq.JobDetail, entry map[string]string) {
	switch entry["type"] {
	case resultSuccessful:
		if d.Status != rq.StatusFinished {
			return
		}
		raw, ok := entry["return_value"]
		if !ok {
			d.Result = &rq.Field{}
			return
		}
		v, err := payload.DecodeBase64Value(raw)
		if err != nil {
			f := rq.CorruptField(err)
			d.Result = &f
			d.MarkCorrupt("result")
			return
		}
		d.Result = &rq.Field{Value: v}
	case resultFailed, resultStopped:
		raw, ok := entry["exc_string"]
		if !ok || d.Status == rq.StatusFinished {
			return
		}
		text, err := payload.DecodeBase64Text(raw)
		if err != nil {
			d.MarkCorrupt("exc_info")
			return
		}
		d.ExcInfo = &text
	}
}

func decodeField(d *rq.JobDetail, name, raw string) rq.Field {
	inflated, err := payload.Inflate([]byte(raw))
	if err == nil {
		var v any
		if v, err = payload.DecodeValue(inflated); err == nil {
			return rq.Field{Value: v}
		}
	}
	d.MarkCorrupt(name)
	return rq.CorruptField(err)
}

func decodeTime(d *rq.JobDetail, fields map[string]string, name string) *time.Time {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	t, err := rq.ParseTime(raw)
	if err != nil {
		d.MarkCorrupt(name)
		return nil
	}
	return t
}

// decodeSeconds parses an integer second count. RQ writes these with str(),
// so floats and "None" both occur.
func decodeSeconds(d *rq.JobDetail, fields map[string]string, name string) *int64 {
	raw, ok := fields[name]
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" || raw == "None" {
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		d.MarkCorrupt(name)
		return nil
	}
	n := int64(f)
	return &n
}

func orEmptyList(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

func orEmptyMap(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
