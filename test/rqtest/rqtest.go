// Package rqtest provides helpers for tests that need a Redis holding RQ data.
//
// By default each Env runs an in-process miniredis. Setting RQLENS_TEST_REDIS_URL
// points the helpers at a real server instead; the database is flushed before
// use, so never point it at anything that matters.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    env := rqtest.New(t)
//	    env.AddJob(t, rqtest.Job{ID: "j1", Queue: "default", Status: rq.StatusQueued})
//	    // ... test code using env.Client ...
//	}
package rqtest

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/rqlens/pkg/rq"
)

// URL is a real Redis to test against, configurable via RQLENS_TEST_REDIS_URL.
var URL = os.Getenv("RQLENS_TEST_REDIS_URL")

// Env is a Redis seeded through the same client the code under test uses.
type Env struct {
	// MR is nil when running against a real server.
	MR     *miniredis.Miniredis
	Client *redis.Client
	Keys   rq.Keyspace

	score float64
}

// New starts a fresh Redis for t.
func New(t *testing.T) *Env {
	t.Helper()

	env := &Env{Keys: rq.NewKeyspace(rq.DefaultPrefix)}
	if URL != "" {
		opts, err := redis.ParseURL(URL)
		require.NoError(t, err)
		env.Client = redis.NewClient(opts)
		require.NoError(t, env.Client.FlushDB(context.Background()).Err())
	} else {
		env.MR = miniredis.RunT(t)
		env.Client = redis.NewClient(&redis.Options{Addr: env.MR.Addr()})
	}
	t.Cleanup(func() { _ = env.Client.Close() })
	return env
}

// RedisURL returns a URL that reaches the same database as Client.
func (e *Env) RedisURL() string {
	if e.MR == nil {
		return URL
	}
	return "redis://" + e.MR.Addr() + "/0"
}

// SkipIfReal skips tests that depend on miniredis-only controls such as
// stopping the server.
func (e *Env) SkipIfReal(t *testing.T) {
	t.Helper()
	if e.MR == nil {
		t.Skip("requires in-process miniredis")
	}
}

// Job describes one job record plus its registry membership.
type Job struct {
	ID     string
	Queue  string
	Status rq.Status

	FuncName string
	Args     []any
	Kwargs   map[string]any

	// Data replaces the encoded invocation when set.
	Data []byte

	Description string
	EnqueuedAt  time.Time
	Result      []byte
	ExcInfo     string
	Meta        []byte

	// Extra holds raw hash fields, written last.
	Extra map[string]string

	// NoRegistry skips adding the id to its status registry.
	NoRegistry bool
}

// AddJob writes the job hash, registers its queue and, unless NoRegistry is
// set, adds the id to the registry matching Status.
func (e *Env) AddJob(t *testing.T, j Job) {
	t.Helper()
	ctx := context.Background()

	if j.Queue == "" {
		j.Queue = "default"
	}
	if j.Status == "" {
		j.Status = rq.StatusQueued
	}
	if j.FuncName == "" {
		j.FuncName = "tasks.noop"
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}

	data := j.Data
	if data == nil {
		data = EncodeInvocation(t, j.FuncName, j.Args, j.Kwargs)
	}
	fields := map[string]any{
		"origin":      j.Queue,
		"status":      string(j.Status),
		"data":        data,
		"created_at":  rq.FormatTime(j.EnqueuedAt),
		"enqueued_at": rq.FormatTime(j.EnqueuedAt),
	}
	if j.Description != "" {
		fields["description"] = j.Description
	}
	if j.Result != nil {
		fields["result"] = j.Result
	}
	if j.ExcInfo != "" {
		fields["exc_info"] = Deflate(t, []byte(j.ExcInfo))
	}
	if j.Meta != nil {
		fields["meta"] = j.Meta
	}
	for k, v := range j.Extra {
		fields[k] = v
	}
	require.NoError(t, e.Client.HSet(ctx, e.Keys.JobKey(j.ID), fields).Err())
	require.NoError(t, e.Client.SAdd(ctx, e.Keys.QueuesKey(), e.queueKey(j.Queue)).Err())

	if !j.NoRegistry {
		e.AddToRegistry(t, j.Queue, j.Status, j.ID)
	}
}

// AddToRegistry appends id to a registry. Sorted-set scores increase with
// every call so ranges come back in insertion order.
func (e *Env) AddToRegistry(t *testing.T, queue string, status rq.Status, id string) {
	t.Helper()
	ctx := context.Background()

	col, ok := e.Keys.Registry(queue, status)
	require.True(t, ok, "status %q has no registry", status)
	if col.Kind == rq.KindList {
		require.NoError(t, e.Client.RPush(ctx, col.Key, id).Err())
		return
	}
	e.score++
	require.NoError(t, e.Client.ZAdd(ctx, col.Key, redis.Z{Score: e.score, Member: id}).Err())
}

// AddToScheduler adds id to the rq-scheduler sorted set.
func (e *Env) AddToScheduler(t *testing.T, id string) {
	t.Helper()
	e.score++
	require.NoError(t, e.Client.ZAdd(context.Background(), e.Keys.SchedulerJobs().Key,
		redis.Z{Score: e.score, Member: id}).Err())
}

// RegisterQueue adds a queue to the known-queues set without any jobs.
func (e *Env) RegisterQueue(t *testing.T, queue string) {
	t.Helper()
	require.NoError(t, e.Client.SAdd(context.Background(), e.Keys.QueuesKey(), e.queueKey(queue)).Err())
}

// Worker describes one worker heartbeat record.
type Worker struct {
	Name          string
	State         string
	Queues        []string
	Birth         time.Time
	LastHeartbeat time.Time
	CurrentJob    string
	Hostname      string
	PID           int
	Successful    int
	Failed        int
	WorkingTime   float64

	// NoRecord registers the worker without writing its hash.
	NoRecord bool
}

// AddWorker registers a worker and writes its hash.
func (e *Env) AddWorker(t *testing.T, w Worker) {
	t.Helper()
	ctx := context.Background()

	key := e.Keys.WorkerKey(w.Name)
	require.NoError(t, e.Client.SAdd(ctx, e.Keys.WorkersKey(), key).Err())
	if w.NoRecord {
		return
	}
	if w.State == "" {
		w.State = "idle"
	}
	fields := map[string]any{
		"state":                w.State,
		"queues":               strings.Join(w.Queues, ","),
		"hostname":             w.Hostname,
		"pid":                  strconv.Itoa(w.PID),
		"successful_job_count": strconv.Itoa(w.Successful),
		"failed_job_count":     strconv.Itoa(w.Failed),
		"total_working_time":   strconv.FormatFloat(w.WorkingTime, 'f', -1, 64),
	}
	if !w.Birth.IsZero() {
		fields["birth"] = rq.FormatTime(w.Birth)
	}
	if !w.LastHeartbeat.IsZero() {
		fields["last_heartbeat"] = rq.FormatTime(w.LastHeartbeat)
	}
	if w.CurrentJob != "" {
		fields["current_job"] = w.CurrentJob
	}
	require.NoError(t, e.Client.HSet(ctx, key, fields).Err())
}

// Exists reports whether key is present.
func (e *Env) Exists(t *testing.T, key string) bool {
	t.Helper()
	n, err := e.Client.Exists(context.Background(), key).Result()
	require.NoError(t, err)
	return n == 1
}

// EncodeInvocation builds a data field the way RQ's JSON serializer does:
// a zlib-compressed JSON array (func_name, instance, args, kwargs).
func EncodeInvocation(t *testing.T, funcName string, args []any, kwargs map[string]any) []byte {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	raw, err := json.Marshal([]any{funcName, nil, args, kwargs})
	require.NoError(t, err)
	return Deflate(t, raw)
}

// Deflate zlib-compresses b.
func Deflate(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func (e *Env) queueKey(queue string) string {
	col, _ := e.Keys.Registry(queue, rq.StatusQueued)
	return col.Key
}
