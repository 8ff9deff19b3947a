package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	schedule string
	runs     atomic.Int32
	err      error
	sawDL    atomic.Bool
}

func (j *countingJob) Name() string     { return "count" }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if _, ok := ctx.Deadline(); ok {
		j.sawDL.Store(true)
	}
	return j.err
}

func TestSchedulerRunsJobOnSchedule(t *testing.T) {
	s := New(nil, time.Second)
	job := &countingJob{schedule: "@every 1s"}
	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate names are rejected")

	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, job.sawDL.Load())
	assert.NotEmpty(t, s.History("count"))
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(nil, 0)
	assert.Error(t, s.AddJob(&countingJob{schedule: "every now and then"}))
}

func TestRunNowRecordsHistory(t *testing.T) {
	s := New(nil, 0)
	job := &countingJob{schedule: "@every 1h", err: errors.New("no symbols")}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunNow("count")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "no symbols", res.Error)
	assert.Len(t, s.History("count"), 1)

	_, err = s.RunNow("missing")
	assert.Error(t, err)
}
