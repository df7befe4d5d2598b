// Package engine drives the two periodic automation loops: content
// publishing and review scanning. Each loop is an owned Poller with an
// injectable clock; nothing here relies on ambient global timers.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/profile-agent/pkg/logger"
)

// Job is one dispatchable unit of work for a single location.
type Job struct {
	LocationID string
	Run        func(ctx context.Context)
}

// Task produces the jobs that are due at a given instant.
type Task interface {
	Name() string
	Due(ctx context.Context, now time.Time) ([]Job, error)
}

// Poller ticks at a fixed period, asks its task what is due, and
// dispatches each job in its own goroutine. At most one execution per
// location is in flight at any time; a location already running is
// skipped on later ticks even if nominally due.
type Poller struct {
	task     Task
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewPoller creates a poller for a task.
func NewPoller(task Task, interval time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		task:     task,
		interval: interval,
		now:      time.Now,
		log:      log.WithComponent("poller-" + task.Name()),
		inflight: make(map[string]bool),
	}
}

// NewPollerWithClock creates a poller with an injectable clock for tests.
func NewPollerWithClock(task Task, interval time.Duration, log *logger.Logger, now func() time.Time) *Poller {
	p := NewPoller(task, interval, log)
	p.now = now
	return p
}

// Start runs the tick loop until ctx is cancelled, then waits for
// in-flight executions to finish. Executions themselves are never
// cancelled mid-task; they run to completion or failure.
func (p *Poller) Start(ctx context.Context) {
	p.log.Info().Dur("interval", p.interval).Msg("Poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Poller stopping")
			p.wg.Wait()
			return
		case <-ticker.C:
			p.Tick(context.Background())
		}
	}
}

// Tick evaluates and dispatches one poll round. Exported so tests can
// simulate many ticks without sleeping.
func (p *Poller) Tick(ctx context.Context) {
	jobs, err := p.task.Due(ctx, p.now())
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to collect due work")
		return
	}

	for _, job := range jobs {
		p.dispatch(ctx, job)
	}
}

// dispatch launches a job unless its location is already running.
// Failures inside the job never escape past this boundary.
func (p *Poller) dispatch(ctx context.Context, job Job) {
	p.mu.Lock()
	if p.inflight[job.LocationID] {
		p.mu.Unlock()
		p.log.Debug().Str("location_id", job.LocationID).Msg("Execution already in flight; skipping")
		return
	}
	p.inflight[job.LocationID] = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("location_id", job.LocationID).Msg("Execution panicked")
			}
			p.mu.Lock()
			delete(p.inflight, job.LocationID)
			p.mu.Unlock()
		}()
		job.Run(ctx)
	}()
}

// InFlight returns how many executions are currently running.
func (p *Poller) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// Wait blocks until all dispatched executions have finished. Test hook.
func (p *Poller) Wait() {
	p.wg.Wait()
}
