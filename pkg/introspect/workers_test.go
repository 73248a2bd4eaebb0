package introspect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/test/rqtest"
)

func TestListWorkers(t *testing.T) {
	svc, env := newService(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	env.AddWorker(t, rqtest.Worker{
		Name:          "w-b",
		State:         "busy",
		Queues:        []string{"high", "default"},
		Birth:         now.Add(-time.Hour),
		LastHeartbeat: now.Add(-10 * time.Second),
		CurrentJob:    "j1",
		Hostname:      "box-1",
		PID:           4242,
		Successful:    7,
		Failed:        1,
		WorkingTime:   12.5,
	})
	env.AddWorker(t, rqtest.Worker{Name: "w-a", LastHeartbeat: now.Add(-time.Hour)})
	env.AddWorker(t, rqtest.Worker{Name: "w-gone", NoRecord: true})

	workers, err := svc.ListWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 2, "registrations without a record are skipped")

	a, b := workers[0], workers[1]
	assert.Equal(t, "w-a", a.Name)
	assert.Equal(t, rq.WorkerIdle, a.State)
	assert.Equal(t, []string{}, a.QueueNames)
	assert.Nil(t, a.CurrentJobID)
	assert.True(t, a.PossiblyDead)

	assert.Equal(t, "w-b", b.Name)
	assert.Equal(t, rq.WorkerBusy, b.State)
	assert.Equal(t, []string{"high", "default"}, b.QueueNames)
	require.NotNil(t, b.CurrentJobID)
	assert.Equal(t, "j1", *b.CurrentJobID)
	require.NotNil(t, b.BirthDate)
	assert.True(t, b.BirthDate.Equal(now.Add(-time.Hour)))
	assert.Equal(t, "box-1", b.Hostname)
	assert.Equal(t, 4242, b.PID)
	assert.Equal(t, int64(7), b.SuccessfulJobs)
	assert.Equal(t, int64(1), b.FailedJobs)
	assert.InDelta(t, 12.5, b.TotalWorkingTime, 1e-9)
	assert.False(t, b.PossiblyDead)
}

func TestListWorkers_StaleDetectionDisabled(t *testing.T) {
	svc, env := newService(t, func(c *Config) { c.StaleAfter = 0 })
	env.AddWorker(t, rqtest.Worker{Name: "w1"})

	workers, err := svc.ListWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.False(t, workers[0].PossiblyDead)
}

func TestListWorkers_LenientFields(t *testing.T) {
	svc, env := newService(t)
	env.AddWorker(t, rqtest.Worker{Name: "w1", State: "rebooting"})
	require.NoError(t, env.Client.HSet(context.Background(), env.Keys.WorkerKey("w1"),
		"pid", "abc", "birth", "sometime").Err())

	workers, err := svc.ListWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, rq.WorkerState("rebooting"), workers[0].State)
	assert.Zero(t, workers[0].PID)
	assert.Nil(t, workers[0].BirthDate)
}

func TestListWorkers_Empty(t *testing.T) {
	svc, _ := newService(t)

	workers, err := svc.ListWorkers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, workers)
}
