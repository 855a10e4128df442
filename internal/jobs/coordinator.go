package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mwpeters/choretally/internal/clock"
)

const tickInterval = 30 * time.Second

type job struct {
	name     string
	schedule Schedule
	fn       func() error

	mu      sync.Mutex // held while the job runs
	nextRun time.Time
}

// Coordinator owns the background maintenance jobs. Each job has its own
// schedule and never overlaps itself: if a run is still going when the next
// slot arrives, the slot is skipped and the job runs again at the first tick
// after it frees up. A job returning an error is logged and left on its
// schedule.
type Coordinator struct {
	mu     sync.RWMutex
	jobs   []*job
	clock  clock.Clock
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(clk clock.Clock, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		clock:  clk,
		logger: logger.With("component", "jobs"),
	}
}

// Register adds a named job. The first run is the schedule's next slot after
// registration time. Must be called before Start.
func (c *Coordinator) Register(name string, schedule Schedule, fn func() error) {
	c.mu.Lock()
	c.jobs = append(c.jobs, &job{
		name:     name,
		schedule: schedule,
		fn:       fn,
		nextRun:  schedule.NextAfter(c.clock.Now()),
	})
	c.mu.Unlock()
}

// Start begins the coordinator loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunDue(c.clock.Now())
			}
		}
	}()
}

// Stop gracefully stops the coordinator loop. Jobs already running finish.
func (c *Coordinator) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	done := c.done
	c.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunDue runs every job whose slot has arrived and returns the names of the
// jobs that ran. Jobs run sequentially in registration order.
func (c *Coordinator) RunDue(now time.Time) []string {
	c.mu.RLock()
	jobs := c.jobs
	c.mu.RUnlock()

	var ran []string
	for _, j := range jobs {
		if c.runIfDue(j, now) {
			ran = append(ran, j.name)
		}
	}
	return ran
}

func (c *Coordinator) runIfDue(j *job, now time.Time) bool {
	if !j.mu.TryLock() {
		return false
	}
	defer j.mu.Unlock()

	if now.Before(j.nextRun) {
		return false
	}
	j.nextRun = j.schedule.NextAfter(now)

	start := c.clock.Now()
	if err := j.fn(); err != nil {
		c.logger.Error("job failed", "job", j.name, "error", err)
		return true
	}
	c.logger.Info("job completed", "job", j.name, "duration", c.clock.Now().Sub(start))
	return true
}
