package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
	block chan struct{}
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("kaboom")
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestEvery(t *testing.T) {
	at := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(5*time.Minute), NewEvery(5*time.Minute).Next(at))
	assert.Equal(t, time.Minute, NewEvery(0).Interval)
	assert.Equal(t, "@every 30s", NewEvery(30*time.Second).String())
}

func TestScheduler_Register(t *testing.T) {
	s := New(Config{})
	job := &fakeJob{name: "a"}

	require.NoError(t, s.Register(job, NewEvery(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewEvery(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewEvery(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "b"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.SetEnabled("missing", false), ErrJobNotFound)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "@every 1m0s", infos[0].Schedule)
	assert.True(t, infos[0].Enabled)
}

func TestScheduler_RunNowAndHistory(t *testing.T) {
	s := New(Config{})
	ok := &fakeJob{name: "ok"}
	bad := &fakeJob{name: "bad", err: errors.New("boom")}
	boom := &fakeJob{name: "panics", panic: true}
	for _, j := range []*fakeJob{ok, bad, boom} {
		require.NoError(t, s.Register(j, NewEvery(time.Hour)))
	}

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "boom")

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorContains(t, err, "panicked: kaboom")

	_, err = s.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)

	hist := s.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "ok", hist[0].JobName)
	assert.Len(t, s.History(1), 1)

	for _, info := range s.ListJobs() {
		assert.Equal(t, int64(1), info.RunCount, info.Name)
	}
}

func TestScheduler_RunAllInNameOrder(t *testing.T) {
	s := New(Config{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Register(&fakeJob{name: name}, NewEvery(time.Hour)))
	}
	results := s.RunAll(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].JobName)
	assert.Equal(t, "mid", results[1].JobName)
	assert.Equal(t, "zeta", results[2].JobName)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(Config{})
	job := &fakeJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewEvery(time.Hour)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.RunNow(context.Background(), "slow")
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	close(job.block)
	wg.Wait()
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(Config{JobTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Register(&fakeJob{name: "stuck", block: make(chan struct{})}, NewEvery(time.Hour)))

	_, err := s.RunNow(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_LoopRunsDueJobs(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	s := New(Config{TickInterval: 5 * time.Millisecond, Now: clock})
	due := &fakeJob{name: "due"}
	off := &fakeJob{name: "off"}
	require.NoError(t, s.Register(due, NewEvery(time.Minute)))
	require.NoError(t, s.Register(off, NewEvery(time.Minute)))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	require.Eventually(t, func() bool { return due.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())

	assert.Equal(t, int32(1), due.runs.Load(), "next run moved one interval ahead")
	assert.Zero(t, off.runs.Load())
}
