package rq

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an RQ job as written by the worker system.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarted   Status = "started"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusDeferred  Status = "deferred"
	StatusScheduled Status = "scheduled"
	StatusStopped   Status = "stopped"
	StatusCanceled  Status = "canceled"
)

// FilterAll is the wildcard accepted by queue and state filters.
const FilterAll = "all"

func (s Status) String() string {
	return string(s)
}

// ListedStatuses are the registries reported in queue stats and accepted by
// the job lister, in display order.
var ListedStatuses = []Status{
	StatusQueued,
	StatusStarted,
	StatusFinished,
	StatusFailed,
	StatusDeferred,
	StatusScheduled,
}

// RegistryStatuses are every registry a job id can be a member of. Stopped
// jobs live in the failed registry, so there is no stopped registry.
var RegistryStatuses = []Status{
	StatusQueued,
	StatusStarted,
	StatusFinished,
	StatusFailed,
	StatusDeferred,
	StatusScheduled,
	StatusCanceled,
}

// ParseStateFilter resolves a state filter value to the single registry it
// selects. "all" (and the empty string) select the queued registry: the
// default operational view of a queue is its pending work.
func ParseStateFilter(value string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || v == FilterAll {
		return StatusQueued, nil
	}
	for _, s := range ListedStatuses {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, value)
}

// Known reports whether s is one of the job statuses RQ writes.
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusStarted, StatusFinished, StatusFailed,
		StatusDeferred, StatusScheduled, StatusStopped, StatusCanceled:
		return true
	}
	return false
}
