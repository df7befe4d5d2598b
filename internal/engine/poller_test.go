package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-agent/pkg/logger"
)

type stubTask struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (s *stubTask) Name() string { return "stub" }

func (s *stubTask) Due(ctx context.Context, now time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs, s.err
}

func (s *stubTask) set(jobs ...Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = jobs
}

func TestPollerSkipsLocationAlreadyInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int32
	var mu sync.Mutex

	task := &stubTask{}
	task.set(Job{
		LocationID: "loc-1",
		Run: func(ctx context.Context) {
			mu.Lock()
			runs++
			mu.Unlock()
			close(started)
			<-release
		},
	})

	p := NewPoller(task, time.Minute, logger.Discard())
	p.Tick(context.Background())
	<-started

	// Second tick while the first execution is still running: the
	// location must not be dispatched again.
	task.set(Job{
		LocationID: "loc-1",
		Run: func(ctx context.Context) {
			mu.Lock()
			runs++
			mu.Unlock()
		},
	})
	p.Tick(context.Background())
	assert.Equal(t, 1, p.InFlight())

	close(release)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), runs)
	assert.Equal(t, 0, p.InFlight())
}

func TestPollerDispatchesDistinctLocationsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	run := func(ctx context.Context) {
		wg.Done()
		<-release
	}

	task := &stubTask{}
	task.set(
		Job{LocationID: "loc-1", Run: run},
		Job{LocationID: "loc-2", Run: run},
	)

	p := NewPoller(task, time.Minute, logger.Discard())
	p.Tick(context.Background())

	// Both jobs start without waiting on each other.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not start concurrently")
	}

	assert.Equal(t, 2, p.InFlight())
	close(release)
	p.Wait()
}

func TestPollerRecoversFromPanickingJob(t *testing.T) {
	task := &stubTask{}
	task.set(Job{
		LocationID: "loc-1",
		Run:        func(ctx context.Context) { panic("boom") },
	})

	p := NewPoller(task, time.Minute, logger.Discard())
	require.NotPanics(t, func() {
		p.Tick(context.Background())
		p.Wait()
	})

	// The location is released for the next tick.
	ran := make(chan struct{})
	task.set(Job{
		LocationID: "loc-1",
		Run:        func(ctx context.Context) { close(ran) },
	})
	p.Tick(context.Background())
	p.Wait()

	select {
	case <-ran:
	default:
		t.Fatal("location stayed locked after panic")
	}
}

func TestPollerTickSurvivesDueError(t *testing.T) {
	task := &stubTask{err: assert.AnError}
	p := NewPoller(task, time.Minute, logger.Discard())

	require.NotPanics(t, func() {
		p.Tick(context.Background())
	})
	assert.Equal(t, 0, p.InFlight())
}
