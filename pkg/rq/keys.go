package rq

import (
	"sort"
	"strings"
)

// DefaultPrefix is the key prefix RQ uses for every key it writes.
const DefaultPrefix = "rq:"

// CollectionKind identifies the Redis data type backing a collection.
type CollectionKind int

const (
	KindList CollectionKind = iota
	KindSortedSet
	KindSet
)

func (k CollectionKind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindSortedSet:
		return "zset"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

// Collection names a key together with how to count and range it.
type Collection struct {
	Key  string
	Kind CollectionKind
}

// Keyspace builds RQ key names under a prefix.
//
// The naming is defined by the job-queue library that produced the data and
// must not be changed here:
//
//	<prefix>job:<id>                job hash
//	<prefix>queue:<name>            queued registry (list)
//	<prefix>wip:<name>              started registry (zset)
//	<prefix>finished:<name>         finished registry (zset)
//	<prefix>failed:<name>           failed registry (zset)
//	<prefix>deferred:<name>         deferred registry (zset)
//	<prefix>scheduled:<name>        scheduled registry (zset)
//	<prefix>canceled:<name>         canceled registry (zset)
//	<prefix>queues                  set of queue keys
//	<prefix>workers                 set of worker keys
//	<prefix>worker:<name>           worker hash
//	<prefix>results:<id>            result stream
//	<prefix>scheduler:scheduled_jobs  rq-scheduler jobs (zset, all queues)
type Keyspace struct {
	Prefix string
}

// NewKeyspace returns a Keyspace, defaulting an empty prefix to DefaultPrefix.
func NewKeyspace(prefix string) Keyspace {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	return Keyspace{Prefix: prefix}
}

// registrySegments maps a status to its registry key segment.
var registrySegments = map[Status]string{
	StatusQueued:    "queue:",
	StatusStarted:   "wip:",
	StatusFinished:  "finished:",
	StatusFailed:    "failed:",
	StatusDeferred:  "deferred:",
	StatusScheduled: "scheduled:",
	StatusCanceled:  "canceled:",
}

func (k Keyspace) JobKey(id string) string {
	return k.Prefix + "job:" + id
}

func (k Keyspace) DependentsKey(id string) string {
	return k.JobKey(id) + ":dependents"
}

func (k Keyspace) DependenciesKey(id string) string {
	return k.JobKey(id) + ":dependencies"
}

func (k Keyspace) ResultsKey(id string) string {
	return k.Prefix + "results:" + id
}

func (k Keyspace) QueuesKey() string {
	return k.Prefix + "queues"
}

func (k Keyspace) WorkersKey() string {
	return k.Prefix + "workers"
}

func (k Keyspace) WorkerKey(name string) string {
	return k.Prefix + "worker:" + name
}

// SchedulerJobs is the sorted set rq-scheduler keeps its pending jobs in.
// It is shared by every queue; a job's queue is the origin of its record.
func (k Keyspace) SchedulerJobs() Collection {
	return Collection{Key: k.Prefix + "scheduler:scheduled_jobs", Kind: KindSortedSet}
}

// Registry returns the collection holding the ids of queue in status.
// The second result is false for statuses that have no registry (stopped).
func (k Keyspace) Registry(queue string, status Status) (Collection, bool) {
	seg, ok := registrySegments[status]
	if !ok {
		return Collection{}, false
	}
	kind := KindSortedSet
	if status == StatusQueued {
		kind = KindList
	}
	return Collection{Key: k.Prefix + seg + queue, Kind: kind}, true
}

// Registries returns every registry of queue, in RegistryStatuses order.
func (k Keyspace) Registries(queue string) []Collection {
	out := make([]Collection, 0, len(RegistryStatuses))
	for _, s := range RegistryStatuses {
		c, _ := k.Registry(queue, s)
		out = append(out, c)
	}
	return out
}

// QueueName strips the queue key prefix from a member of the queues set.
func (k Keyspace) QueueName(queueKey string) string {
	return strings.TrimPrefix(queueKey, k.Prefix+registrySegments[StatusQueued])
}

// WorkerName strips the worker key prefix from a member of the workers set.
func (k Keyspace) WorkerName(workerKey string) string {
	return strings.TrimPrefix(workerKey, k.Prefix+"worker:")
}

// RegistryQueueName reports the queue a registry key belongs to. Job,
// worker and result keys are rejected.
func (k Keyspace) RegistryQueueName(key string) (string, bool) {
	if !strings.HasPrefix(key, k.Prefix) {
		return "", false
	}
	rest := key[len(k.Prefix):]
	for _, seg := range registrySegments {
		if strings.HasPrefix(rest, seg) {
			name := rest[len(seg):]
			if name == "" {
				return "", false
			}
			return name, true
		}
	}
	return "", false
}

// RegistryScanPatterns returns SCAN MATCH patterns covering every registry key.
func (k Keyspace) RegistryScanPatterns() []string {
	out := make([]string, 0, len(registrySegments))
	for _, seg := range registrySegments {
		out = append(out, k.Prefix+seg+"*")
	}
	sort.Strings(out)
	return out
}
