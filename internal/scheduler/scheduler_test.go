package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name  string
	runs  atomic.Int64
	fail  bool
	errCh chan struct{}
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run() error {
	j.runs.Add(1)
	if j.errCh != nil {
		close(j.errCh)
		j.errCh = nil
	}
	if j.fail {
		return errors.New("boom")
	}
	return nil
}

func TestAddJobValidatesSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &stubJob{name: "bad"})
	assert.Error(t, err)

	err = s.AddJob("0 0 3 * * *", &stubJob{name: "nightly"})
	assert.NoError(t, err)
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &stubJob{name: "fast", errCh: make(chan struct{})}
	done := job.errCh

	require.NoError(t, s.AddJob("@every 10ms", job))
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run within 2s")
	}
	assert.GreaterOrEqual(t, job.runs.Load(), int64(1))
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	ok := &stubJob{name: "ok"}
	require.NoError(t, s.RunNow(ok))
	assert.Equal(t, int64(1), ok.runs.Load())

	failing := &stubJob{name: "failing", fail: true}
	assert.Error(t, s.RunNow(failing))
}
