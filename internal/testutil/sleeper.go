package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/graphjob/internal/step"
)

// Sleeper is a shared handler factory for concurrency tests. It records the
// run window of each step that uses it.
type Sleeper struct {
	Runs           map[string]*HandlerRun
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string

	running    atomic.Int32
	maxRunning atomic.Int32
}

// NewSleeper creates a new sleeper. completionChan may be nil.
func NewSleeper(completionChan chan<- string, sleep time.Duration) *Sleeper {
	return &Sleeper{
		Runs:           make(map[string]*HandlerRun),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Handler returns a step handler that sleeps and records its timing.
func (m *Sleeper) Handler() step.Handler {
	return func(ctx context.Context, ec *step.ExecutionContext) error {
		now := m.running.Add(1)
		for {
			peak := m.maxRunning.Load()
			if now <= peak || m.maxRunning.CompareAndSwap(peak, now) {
				break
			}
		}
		defer m.running.Add(-1)

		startTime := time.Now()
		select {
		case <-time.After(m.sleepDuration):
		case <-ctx.Done():
			return ctx.Err()
		}
		endTime := time.Now()

		m.mu.Lock()
		m.Runs[ec.StepID] = &HandlerRun{StepID: ec.StepID, Start: startTime, End: endTime}
		m.mu.Unlock()

		if m.completionChan != nil {
			m.completionChan <- ec.StepID
		}
		return nil
	}
}

// Failing returns a handler that sleeps like Handler and then fails.
func (m *Sleeper) Failing(msg string) step.Handler {
	h := m.Handler()
	return func(ctx context.Context, ec *step.ExecutionContext) error {
		if err := h(ctx, ec); err != nil {
			return err
		}
		return fmt.Errorf("%s", msg)
	}
}

// Record returns the run window of a step.
func (m *Sleeper) Record(id string) (*HandlerRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Runs[id]
	return rec, ok
}

// Ran reports whether the step's handler ran to completion.
func (m *Sleeper) Ran(id string) bool {
	_, ok := m.Record(id)
	return ok
}

// MaxConcurrent is the highest number of handlers observed running at once.
func (m *Sleeper) MaxConcurrent() int {
	return int(m.maxRunning.Load())
}
