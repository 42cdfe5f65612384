package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	calls    atomic.Int32
	failures int32 // 처음 n 번 실패
	err      error
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if n <= j.failures {
		return j.err
	}
	return nil
}

func newScheduler(retries int) *Scheduler {
	return New(Options{MaxRetries: retries, RetryDelay: time.Millisecond}, logger.Nop())
}

func TestScheduler_AddJob(t *testing.T) {
	s := newScheduler(0)
	require.NoError(t, s.AddJob(&fakeJob{name: "train", schedule: "0 30 19 * * 1-5"}))

	err := s.AddJob(&fakeJob{name: "train", schedule: "0 30 19 * * 1-5"})
	assert.Error(t, err)

	err = s.AddJob(&fakeJob{name: "bad", schedule: "not a cron"})
	assert.Error(t, err)

	assert.Equal(t, []string{"train"}, s.GetAllJobs())
}

func TestScheduler_RunNow(t *testing.T) {
	tests := []struct {
		name     string
		retries  int
		failures int32
		err      error
		success  bool
		attempts int
	}{
		{"succeeds first time", 2, 0, nil, true, 1},
		{"succeeds after retry", 2, 2, errors.New("raw files late"), true, 3},
		{"exhausts retries", 1, 5, contracts.Fatal("no readable bhavcopy"), false, 2},
		{"missing model is not retried", 3, 5, fmt.Errorf("models: %w", contracts.ErrModelNotFound), false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(tt.retries)
			job := &fakeJob{name: "predict", schedule: "@daily", failures: tt.failures, err: tt.err}
			require.NoError(t, s.AddJob(job))

			res, err := s.RunNow(context.Background(), "predict")
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.attempts, res.Attempts)
			assert.Equal(t, int32(tt.attempts), job.calls.Load())
			if !tt.success {
				assert.NotEmpty(t, res.Error)
			}

			history, err := s.GetJobHistory("predict")
			require.NoError(t, err)
			require.Len(t, history.Results, 1)

			stats := s.GetJobStats()["predict"]
			assert.Equal(t, 1, stats.TotalRuns)
			assert.False(t, stats.Running)
			require.NotNil(t, stats.LastRun)
		})
	}
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	_, err := newScheduler(0).RunNow(context.Background(), "missing")
	assert.Error(t, err)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Zero(t, h.SuccessRate())
	assert.Empty(t, h.Latest(5))

	for i := 0; i < historySize+10; i++ {
		h.AddResult(JobResult{JobName: "train", Success: i%4 != 0})
	}
	assert.Len(t, h.Results, historySize)
	assert.Len(t, h.Latest(3), 3)
	assert.Equal(t, 25, h.Failures())
	assert.InDelta(t, 0.75, h.SuccessRate(), 1e-12)
}
