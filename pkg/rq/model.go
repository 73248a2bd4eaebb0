// Package rq models the records an RQ deployment keeps in Redis as seen by a
// read-mostly introspection layer: job details and summaries, per-queue
// registry counts and worker status. It also owns the key naming and the
// error taxonomy shared by the store, repository and introspection packages.
package rq

import "time"

// Field is a decoded payload value tagged with whether decoding failed.
//
// A corrupt field has a nil Value and a short Error description; it never
// invalidates the record it belongs to.
type Field struct {
	Value   any    `json:"value" yaml:"value"`
	Corrupt bool   `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CorruptField returns a Field marked corrupt with the decode error.
func CorruptField(err error) Field {
	f := Field{Corrupt: true}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

// JobDetail is the full, decoded view of one job record.
type JobDetail struct {
	ID          string `json:"id" yaml:"id"`
	QueueName   string `json:"queue_name" yaml:"queue_name"`
	Status      Status `json:"status" yaml:"status"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	FuncName Field `json:"function_reference" yaml:"function_reference"`
	Args     Field `json:"args" yaml:"args"`
	Kwargs   Field `json:"kwargs" yaml:"kwargs"`
	Meta     Field `json:"meta" yaml:"meta"`

	// Result is only populated for finished jobs.
	Result *Field `json:"result,omitempty" yaml:"result,omitempty"`

	// ExcInfo is only populated for failed jobs.
	ExcInfo *string `json:"exception_info,omitempty" yaml:"exception_info,omitempty"`

	CreatedAt     *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	EnqueuedAt    *time.Time `json:"enqueued_at,omitempty" yaml:"enqueued_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty" yaml:"last_heartbeat,omitempty"`

	// Timeout and TTLs are in seconds; nil means no limit.
	Timeout    *int64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	TTL        *int64 `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	ResultTTL  *int64 `json:"result_ttl,omitempty" yaml:"result_ttl,omitempty"`
	FailureTTL *int64 `json:"failure_ttl,omitempty" yaml:"failure_ttl,omitempty"`

	DependencyIDs []string `json:"dependency_ids" yaml:"dependency_ids"`
	WorkerName    string   `json:"worker_name,omitempty" yaml:"worker_name,omitempty"`

	// Corrupt is set when any field failed to decode; CorruptFields names them.
	Corrupt       bool     `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
	CorruptFields []string `json:"corrupt_fields,omitempty" yaml:"corrupt_fields,omitempty"`
}

// MarkCorrupt records name as an undecodable field.
func (d *JobDetail) MarkCorrupt(name string) {
	d.Corrupt = true
	d.CorruptFields = append(d.CorruptFields, name)
}

// JobSummary is the display-oriented view used in job listings.
type JobSummary struct {
	ID         string     `json:"id" yaml:"id"`
	QueueName  string     `json:"queue_name" yaml:"queue_name"`
	Status     Status     `json:"status" yaml:"status"`
	EnqueuedAt *time.Time `json:"enqueued_at,omitempty" yaml:"enqueued_at,omitempty"`

	// FuncName and Args are truncated for display; see JobDetail for the
	// full payload.
	FuncName string `json:"function_reference" yaml:"function_reference"`
	Args     string `json:"args" yaml:"args"`

	// Missing is set when the id is still in a registry but its record has
	// expired or been deleted.
	Missing bool `json:"missing,omitempty" yaml:"missing,omitempty"`
	Corrupt bool `json:"corrupt,omitempty" yaml:"corrupt,omitempty"`
}

// JobsPage is one page of a job listing.
type JobsPage struct {
	Queue           string       `json:"queue" yaml:"queue"`
	State           Status       `json:"state" yaml:"state"`
	Page            int          `json:"page" yaml:"page"`
	PageSize        int          `json:"page_size" yaml:"page_size"`
	TotalCount      int64        `json:"total_count" yaml:"total_count"`
	TotalPages      int          `json:"total_pages" yaml:"total_pages"`
	HasNextPage     bool         `json:"has_next_page" yaml:"has_next_page"`
	HasPreviousPage bool         `json:"has_previous_page" yaml:"has_previous_page"`
	Jobs            []JobSummary `json:"jobs" yaml:"jobs"`
}

// StateCounts holds one cardinality per listed registry.
type StateCounts struct {
	Queued    int64 `json:"queued" yaml:"queued"`
	Started   int64 `json:"started" yaml:"started"`
	Finished  int64 `json:"finished" yaml:"finished"`
	Failed    int64 `json:"failed" yaml:"failed"`
	Deferred  int64 `json:"deferred" yaml:"deferred"`
	Scheduled int64 `json:"scheduled" yaml:"scheduled"`
}

// Set stores n as the count for status. Unlisted statuses are ignored.
func (c *StateCounts) Set(status Status, n int64) {
	switch status {
	case StatusQueued:
		c.Queued = n
	case StatusStarted:
		c.Started = n
	case StatusFinished:
		c.Finished = n
	case StatusFailed:
		c.Failed = n
	case StatusDeferred:
		c.Deferred = n
	case StatusScheduled:
		c.Scheduled = n
	}
}

// Sum returns the total across all listed registries.
func (c StateCounts) Sum() int64 {
	return c.Queued + c.Started + c.Finished + c.Failed + c.Deferred + c.Scheduled
}

// QueueStats summarizes one queue.
//
// Counts are independent cardinality reads, not a snapshot: a job moving
// between registries while the counts are read can be counted twice or not at
// all. Total is always the sum of Counts.
type QueueStats struct {
	Name    string      `json:"name" yaml:"name"`
	Counts  StateCounts `json:"counts" yaml:"counts"`
	Total   int64       `json:"total" yaml:"total"`
	Workers int         `json:"workers" yaml:"workers"`
}

// WorkerState is the state a worker reports in its heartbeat record.
type WorkerState string

const (
	WorkerIdle      WorkerState = "idle"
	WorkerBusy      WorkerState = "busy"
	WorkerSuspended WorkerState = "suspended"
)

// WorkerStatus is the live view of one worker record.
type WorkerStatus struct {
	Name             string      `json:"name" yaml:"name"`
	State            WorkerState `json:"state" yaml:"state"`
	QueueNames       []string    `json:"queue_names" yaml:"queue_names"`
	CurrentJobID     *string     `json:"current_job_id,omitempty" yaml:"current_job_id,omitempty"`
	BirthDate        *time.Time  `json:"birth_date,omitempty" yaml:"birth_date,omitempty"`
	LastHeartbeat    *time.Time  `json:"last_heartbeat,omitempty" yaml:"last_heartbeat,omitempty"`
	Hostname         string      `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	PID              int         `json:"pid,omitempty" yaml:"pid,omitempty"`
	SuccessfulJobs   int64       `json:"successful_job_count" yaml:"successful_job_count"`
	FailedJobs       int64       `json:"failed_job_count" yaml:"failed_job_count"`
	TotalWorkingTime float64     `json:"total_working_time" yaml:"total_working_time"`

	// PossiblyDead is set when the heartbeat is older than the freshness
	// threshold. Such workers are reported, never removed.
	PossiblyDead bool `json:"possibly_dead" yaml:"possibly_dead"`
}
