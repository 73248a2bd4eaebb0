package cmd

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/rqlens/pkg/output"
	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/test/rqtest"
)

func seed(t *testing.T) *rqtest.Env {
	t.Helper()
	env := rqtest.New(t)
	env.AddJob(t, rqtest.Job{ID: "j1", Queue: "default", FuncName: "tasks.add", Args: []any{1, 2}})
	env.AddJob(t, rqtest.Job{ID: "j2", Queue: "default"})
	env.AddJob(t, rqtest.Job{ID: "j3", Queue: "default"})
	env.AddJob(t, rqtest.Job{ID: "f1", Queue: "default", Status: rq.StatusFailed, ExcInfo: "Traceback: boom"})
	env.AddJob(t, rqtest.Job{ID: "h1", Queue: "high"})
	env.AddWorker(t, rqtest.Worker{
		Name:          "w1",
		State:         "busy",
		Queues:        []string{"default", "high"},
		CurrentJob:    "j1",
		LastHeartbeat: time.Now().UTC(),
		Hostname:      "box",
		PID:           42,
	})
	return env
}

func TestQueuesCommand(t *testing.T) {
	env := seed(t)

	t.Run("table", func(t *testing.T) {
		out, err := runAgainst(t, env, "queues")
		require.NoError(t, err)
		assert.Contains(t, out, "QUEUE")
		assert.Contains(t, out, "default")
		assert.Contains(t, out, "high")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runAgainst(t, env, "queues", "-o", "json")
		require.NoError(t, err)

		var stats []rq.QueueStats
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		require.Len(t, stats, 2)
		assert.Equal(t, "default", stats[0].Name)
		assert.Equal(t, int64(3), stats[0].Counts.Queued)
		assert.Equal(t, int64(1), stats[0].Counts.Failed)
		assert.Equal(t, int64(4), stats[0].Total)
		assert.Equal(t, 1, stats[0].Workers)
	})

	t.Run("match", func(t *testing.T) {
		out, err := runAgainst(t, env, "queues", "--match", "hi*", "-o", "yaml")
		require.NoError(t, err)

		var stats []rq.QueueStats
		require.NoError(t, yaml.Unmarshal([]byte(out), &stats))
		require.Len(t, stats, 1)
		assert.Equal(t, "high", stats[0].Name)
	})

	t.Run("exclude", func(t *testing.T) {
		out, err := runAgainst(t, env, "queues", "--exclude", "hi*", "-o", "json")
		require.NoError(t, err)

		var stats []rq.QueueStats
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		require.Len(t, stats, 1)
		assert.Equal(t, "default", stats[0].Name)
	})

	t.Run("bad match", func(t *testing.T) {
		_, err := runAgainst(t, env, "queues", "--match", "[")
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCodeOf(err))
	})
}

func TestJobsListCommand(t *testing.T) {
	env := seed(t)

	t.Run("json page", func(t *testing.T) {
		out, err := runAgainst(t, env, "jobs", "list", "--queue", "default", "--page-size", "2", "-o", "json")
		require.NoError(t, err)

		var page rq.JobsPage
		require.NoError(t, json.Unmarshal([]byte(out), &page))
		assert.Equal(t, int64(3), page.TotalCount)
		assert.Equal(t, 2, page.TotalPages)
		assert.True(t, page.HasNextPage)
		require.Len(t, page.Jobs, 2)
		assert.Equal(t, "j1", page.Jobs[0].ID)
		assert.Equal(t, "tasks.add", page.Jobs[0].FuncName)
		assert.Equal(t, "1, 2", page.Jobs[0].Args)
	})

	t.Run("failed state table", func(t *testing.T) {
		out, err := runAgainst(t, env, "jobs", "list", "--queue", "default", "--state", "failed")
		require.NoError(t, err)
		assert.Contains(t, out, "f1")
		assert.NotContains(t, out, "j1")
		assert.Contains(t, out, "Page 1 of 1")
	})

	t.Run("jsonl", func(t *testing.T) {
		out, err := runAgainst(t, env, "jobs", "list", "--queue", "all", "-o", "jsonl")
		require.NoError(t, err)

		var types []string
		sc := bufio.NewScanner(strings.NewReader(out))
		for sc.Scan() {
			var r output.Record
			require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
			types = append(types, r.Type)
			assert.Equal(t, "rq:", r.Source)
			assert.NotEmpty(t, r.RunID)
		}
		require.Len(t, types, 6)
		assert.Equal(t, output.TypePage, types[0])
		assert.Equal(t, output.TypeSummary, types[5])
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := runAgainst(t, env, "jobs", "list", "--state", "lost")
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCodeOf(err))
	})

	t.Run("unknown queue", func(t *testing.T) {
		_, err := runAgainst(t, env, "jobs", "list", "--queue", "nope")
		require.Error(t, err)
		assert.Equal(t, foundry.ExitInvalidArgument, exitCodeOf(err))
	})
}

func TestJobsShowCommand(t *testing.T) {
	env := seed(t)

	t.Run("table", func(t *testing.T) {
		out, err := runAgainst(t, env, "jobs", "show", "f1")
		require.NoError(t, err)
		assert.Contains(t, out, "ID:")
		assert.Contains(t, out, "f1")
		assert.Contains(t, out, "Exception:")
		assert.Contains(t, out, "Traceback: boom")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runAgainst(t, env, "jobs", "show", "j1", "-o", "json")
		require.NoError(t, err)

		var detail map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &detail))
		assert.Equal(t, "j1", detail["id"])
		assert.Equal(t, "default", detail["queue_name"])
	})

	t.Run("not found", func(t *testing.T) {
		_, err := runAgainst(t, env, "jobs", "show", "ghost")
		require.Error(t, err)
		assert.True(t, rq.IsNotFound(err))
		assert.Equal(t, foundry.ExitFileNotFound, exitCodeOf(err))
	})
}

func TestJobsDeleteCommand(t *testing.T) {
	env := seed(t)

	out, err := runAgainst(t, env, "jobs", "delete", "j2", "-o", "json")
	require.NoError(t, err)
	var rec output.DeletedRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, output.DeletedRecord{Target: "j2", IDs: []string{"j2"}}, rec)
	assert.False(t, env.Exists(t, env.Keys.JobKey("j2")))

	out, err = runAgainst(t, env, "jobs", "delete", "j2")
	require.NoError(t, err, "deleting twice is not an error")
	assert.Contains(t, out, "Nothing to delete")
}

func TestQueuesPurgeCommand(t *testing.T) {
	env := seed(t)

	t.Run("requires confirmation", func(t *testing.T) {
		_, err := runAgainst(t, env, "queues", "purge", "default")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--yes")
		assert.True(t, env.Exists(t, env.Keys.JobKey("j1")))
	})

	t.Run("purges", func(t *testing.T) {
		out, err := runAgainst(t, env, "queues", "purge", "default", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted 4 job(s)")
		for _, id := range []string{"j1", "j2", "j3", "f1"} {
			assert.False(t, env.Exists(t, env.Keys.JobKey(id)), id)
		}
		assert.True(t, env.Exists(t, env.Keys.JobKey("h1")))
	})
}

func TestReadOnlyBlocksDeletes(t *testing.T) {
	env := seed(t)

	tests := []struct {
		name string
		args []string
	}{
		{"job delete", []string{"--readonly", "jobs", "delete", "j1"}},
		{"queue purge", []string{"--readonly", "queues", "purge", "default", "--yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runAgainst(t, env, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "readonly")
			assert.ErrorIs(t, err, errReadOnly)
			assert.True(t, env.Exists(t, env.Keys.JobKey("j1")))
		})
	}

	t.Run("env var", func(t *testing.T) {
		t.Setenv("RQLENS_READONLY", "true")
		_, err := runAgainst(t, env, "jobs", "delete", "j1")
		assert.ErrorIs(t, err, errReadOnly)
	})
}

func TestWorkersCommand(t *testing.T) {
	env := seed(t)
	env.AddWorker(t, rqtest.Worker{Name: "w0", Queues: []string{"low"}, LastHeartbeat: time.Now().Add(-time.Hour)})

	t.Run("table", func(t *testing.T) {
		out, err := runAgainst(t, env, "workers")
		require.NoError(t, err)
		assert.Contains(t, out, "w1")
		assert.Contains(t, out, "box:42")
		assert.Contains(t, out, "possibly dead")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runAgainst(t, env, "workers", "-o", "json")
		require.NoError(t, err)

		var workers []rq.WorkerStatus
		require.NoError(t, json.Unmarshal([]byte(out), &workers))
		require.Len(t, workers, 2)
		assert.Equal(t, "w0", workers[0].Name)
		assert.True(t, workers[0].PossiblyDead)
		assert.Equal(t, "w1", workers[1].Name)
		require.NotNil(t, workers[1].CurrentJobID)
		assert.Equal(t, "j1", *workers[1].CurrentJobID)
	})
}

func TestCommandsReportUnavailableRedis(t *testing.T) {
	env := rqtest.New(t)
	env.SkipIfReal(t)
	url := env.RedisURL()
	env.MR.Close()

	_, err := runCLI(t, "--redis-url", url, "queues")
	require.Error(t, err)
	assert.True(t, rq.IsServiceUnavailable(err))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, exitCodeOf(err))
}

func TestDoctorCommand(t *testing.T) {
	env := seed(t)

	_, err := runAgainst(t, env, "doctor")
	assert.NoError(t, err)

	_, err = runCLI(t, "doctor", "--skip-redis")
	assert.NoError(t, err)
}
