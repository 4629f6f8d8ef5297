package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/events"
	"github.com/specialistvlad/graphjob/internal/step"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Engine) worker(ctx context.Context, readyChan chan *stepRun, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for r := range readyChan {
		stepCtx, stepLogger := ctxlog.With(ctx, "step", r.step.ID)
		stepLogger.Debug("Worker picked up step.", "workerID", workerID)

		e.process(stepCtx, r)

		dependents, err := e.graph.DependentsOf(r.step.ID)
		if err != nil {
			stepLogger.Error("Failed to get dependents for finished step.", "error", err)
		}
		for _, id := range dependents {
			dependent := e.runs[id]
			if dependent.remaining.Add(-1) == 0 {
				stepLogger.Debug("Unlocking dependent step.", "dependentID", id)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// process moves one ready step to a terminal status.
func (e *Engine) process(ctx context.Context, r *stepRun) {
	logger := ctxlog.FromContext(ctx)

	if state := e.opts.StartStates[r.step.ID]; state.Disabled {
		logger.Info("⏭️ Step disabled.", "reason", state.DisabledReason)
		e.complete(ctx, r, step.StatusDisabled, state.DisabledReason, "", 0)
		return
	}

	degraded := false
	for _, depID := range r.step.DependsOn {
		switch e.runs[depID].status() {
		case step.StatusDisabled:
			logger.Info("⏭️ Step disabled because a dependency did not run.", "dependency", depID)
			e.complete(ctx, r, step.StatusDisabled, step.DisabledReasonDependency, "", 0)
			return
		case step.StatusFailure, step.StatusPartialSuccess:
			degraded = true
		}
	}

	r.mu.Lock()
	r.result.Status = step.StatusRunning
	r.mu.Unlock()
	e.publish(ctx, events.Event{Type: events.StepStarted, StepID: r.step.ID, Status: string(step.StatusRunning)})

	logger.Info("▶️ Starting step.", "name", r.step.Name)
	start := time.Now()
	err := e.runHandler(ctx, r.step)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		errorID := uuid.NewString()
		logger.Error("Step failed.", "errorId", errorID, "error", err, "duration", elapsed)
		e.complete(ctx, r, step.StatusFailure, "", errorID, elapsed)
	case degraded:
		logger.Warn("✅ Step finished with upstream failures.", "duration", elapsed)
		e.complete(ctx, r, step.StatusPartialSuccess, "", "", elapsed)
	default:
		logger.Info("✅ Step finished.", "duration", elapsed)
		e.complete(ctx, r, step.StatusSuccess, "", "", elapsed)
	}
}

// runHandler invokes the handler and always flushes the step's JobState.
func (e *Engine) runHandler(ctx context.Context, s *step.Step) error {
	js := e.opts.NewJobState(s.ID)
	ec := &step.ExecutionContext{
		Logger:   ctxlog.FromContext(ctx),
		Instance: e.opts.Instance,
		JobState: js,
		StepID:   s.ID,
	}

	handlerErr := callHandler(ctx, s, ec)
	if flushErr := js.Flush(ctx); flushErr != nil {
		if handlerErr != nil {
			return fmt.Errorf("%w (flush also failed: %v)", handlerErr, flushErr)
		}
		return fmt.Errorf("flushing job state: %w", flushErr)
	}
	return handlerErr
}

func callHandler(ctx context.Context, s *step.Step, ec *step.ExecutionContext) (err error) {
	if s.Handler == nil {
		return fmt.Errorf("step %q has no handler", s.ID)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step handler panicked: %v\n%s", p, debug.Stack())
		}
	}()
	return s.Handler(ctx, ec)
}

func (e *Engine) complete(ctx context.Context, r *stepRun, status step.Status, reason step.DisabledReason, errorID string, d time.Duration) {
	r.finish(status, reason, errorID, d)
	if e.opts.Metrics != nil {
		e.opts.Metrics.StepFinished(r.step.ID, status, d)
	}
	e.publish(ctx, events.Event{Type: events.StepFinished, StepID: r.step.ID, Status: string(status), ErrorID: errorID})
}
