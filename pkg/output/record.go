// Package output renders introspection results for the CLI.
//
// Besides the human table view, results can be emitted as a single JSON or
// YAML document, or as JSONL: one typed record envelope per line, each a
// self-contained JSON object.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// JSONL record types, named rqlens.<type>.v<version>.
const (
	TypeQueue     = "rqlens.queue.v1"
	TypeJob       = "rqlens.job.v1"
	TypeJobDetail = "rqlens.job_detail.v1"
	TypePage      = "rqlens.page.v1"
	TypeWorker    = "rqlens.worker.v1"
	TypeDeleted   = "rqlens.deleted.v1"
	TypeError     = "rqlens.error.v1"
	TypeSummary   = "rqlens.summary.v1"
)

// Record is the envelope for every JSONL line.
type Record struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// RunID correlates every record emitted by one command invocation.
	RunID string `json:"run_id"`

	// Source identifies the Redis keyspace that was read, e.g. "rq:".
	Source string `json:"source"`

	Data json.RawMessage `json:"data"`
}

// PageRecord carries the pagination metadata of a job listing. The jobs
// themselves are emitted as separate TypeJob records.
type PageRecord struct {
	Queue           string `json:"queue"`
	State           string `json:"state"`
	Page            int    `json:"page"`
	PageSize        int    `json:"page_size"`
	TotalCount      int64  `json:"total_count"`
	TotalPages      int    `json:"total_pages"`
	HasNextPage     bool   `json:"has_next_page"`
	HasPreviousPage bool   `json:"has_previous_page"`
}

// DeletedRecord reports the ids removed by a delete command.
type DeletedRecord struct {
	// Target is the job id or queue name the command was given.
	Target string   `json:"target"`
	IDs    []string `json:"ids"`
}

// ErrorRecord reports a failure without aborting the stream.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Key     string `json:"key,omitempty"`
	Details any    `json:"details,omitempty"`
}

// SummaryRecord closes a JSONL stream.
type SummaryRecord struct {
	Command       string        `json:"command"`
	Records       int64         `json:"records"`
	Errors        int64         `json:"errors"`
	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps failures while emitting a record.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
