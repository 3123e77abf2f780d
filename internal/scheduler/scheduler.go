// Package scheduler runs the engine's periodic tasks (signal poll, heartbeat,
// guardian, trailing) with independently configurable periods. Time is
// injected so tests drive loops with a virtual clock instead of sleeping.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Alias1177/Executor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RealClock is the production clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type task struct {
	name   string
	period time.Duration
	fn     func(ctx context.Context)
}

// Scheduler owns a set of named periodic tasks.
type Scheduler struct {
	clock  models.Clock
	tasks  []task
	logger zerolog.Logger
}

// New creates a scheduler. A nil clock means RealClock.
func New(clock models.Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock:  clock,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// Every registers a task to run once per period. Registration must finish
// before Run is called.
func (s *Scheduler) Every(name string, period time.Duration, fn func(ctx context.Context)) {
	s.tasks = append(s.tasks, task{name: name, period: period, fn: fn})
}

// Run executes all tasks until ctx is cancelled. Each task runs immediately,
// then once per period; a slow tick delays only its own task.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			s.logger.Info().Str("task", t.name).Dur("period", t.period).Msg("Task started")
			for {
				t.fn(ctx)
				select {
				case <-ctx.Done():
					s.logger.Info().Str("task", t.name).Msg("Task stopped")
					return
				case <-s.clock.After(t.period):
				}
			}
		}(t)
	}
	wg.Wait()
}

// VirtualClock is a deterministic test clock; Advance fires due timers.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*vtimer
}

type vtimer struct {
	at time.Time
	ch chan time.Time
}

// NewVirtualClock starts at the given instant.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &vtimer{at: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- c.now
		return t.ch
	}
	c.timers = append(c.timers, t)
	return t.ch
}

// Advance moves virtual time forward and fires every timer that came due.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var remaining []*vtimer
	var due []*vtimer
	for _, t := range c.timers {
		if !t.at.After(c.now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	now := c.now
	c.mu.Unlock()

	for _, t := range due {
		t.ch <- now
	}
}
