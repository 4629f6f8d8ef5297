package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/dag"
	"github.com/specialistvlad/graphjob/internal/events"
	"github.com/specialistvlad/graphjob/internal/step"
)

// TypeSource reports the `_type` values a step actually produced.
type TypeSource interface {
	EncounteredTypes(stepID string) []string
}

// StepRecorder observes finished steps. metrics.Recorder implements it.
type StepRecorder interface {
	StepFinished(stepID string, status step.Status, d time.Duration)
}

// Options configures an Engine.
type Options struct {
	Instance    step.Instance
	StartStates step.StartStates
	// NewJobState returns the JobState handed to one step. Required.
	NewJobState func(stepID string) step.JobState
	// Types feeds encountered types into results and undeclared-type warnings.
	Types TypeSource
	// MaxConcurrency caps concurrently running handlers; 0 means no cap.
	MaxConcurrency int
	Events         events.Publisher
	Metrics        StepRecorder
}

// Engine executes one graph once.
type Engine struct {
	graph *dag.Graph
	opts  Options

	runs map[string]*stepRun
	wg   sync.WaitGroup
}

type stepRun struct {
	step      *step.Step
	remaining atomic.Int32

	mu     sync.Mutex
	result step.Result
}

func (r *stepRun) status() step.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.Status
}

func (r *stepRun) finish(status step.Status, reason step.DisabledReason, errorID string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Status = status
	r.result.DisabledReason = reason
	r.result.ErrorID = errorID
	r.result.Duration = d
}

// New prepares an Engine for graph.
func New(graph *dag.Graph, opts Options) (*Engine, error) {
	if opts.NewJobState == nil {
		return nil, errors.New("executor: NewJobState is required")
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}

	runs := make(map[string]*stepRun, graph.Len())
	for _, id := range graph.IDs() {
		s, ok := graph.Step(id)
		if !ok {
			return nil, fmt.Errorf("executor: node %q has no step", id)
		}
		deps, err := graph.DirectDependencies(id)
		if err != nil {
			return nil, err
		}
		r := &stepRun{step: s}
		r.remaining.Store(int32(len(deps)))
		r.result = step.Result{
			ID:            s.ID,
			Name:          s.Name,
			Status:        step.StatusPending,
			DeclaredTypes: s.DeclaredTypes(),
			DependsOn:     s.DependsOn,
		}
		runs[id] = r
	}
	return &Engine{graph: graph, opts: opts, runs: runs}, nil
}

// Execute runs every step and returns the summary. Step failures are
// reported in the summary, never as an error.
func (e *Engine) Execute(ctx context.Context) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)
	ids := e.graph.IDs()
	if len(ids) == 0 {
		logger.Warn("No steps to execute.")
		return &Summary{IntegrationStepResults: []step.Result{}, Metadata: Metadata{PartialDatasets: PartialDatasets{Types: []string{}}}}, nil
	}

	workers := e.opts.MaxConcurrency
	if workers <= 0 || workers > len(ids) {
		workers = len(ids)
	}

	readyChan := make(chan *stepRun, len(ids))
	for _, id := range e.graph.Leaves() {
		logger.Debug("Found leaf step.", "step", id)
		readyChan <- e.runs[id]
	}

	e.publish(ctx, events.Event{Type: events.RunStarted})
	e.wg.Add(len(ids))

	logger.Debug("Starting worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("🚀 Executing steps...", "steps", len(ids), "workers", workers)
	e.wg.Wait()
	close(readyChan)
	logger.Info("🏁 All steps finished.")

	summary := e.summarize(ctx)
	e.publish(ctx, events.Event{Type: events.RunFinished})
	return summary, nil
}

func (e *Engine) summarize(ctx context.Context) *Summary {
	logger := ctxlog.FromContext(ctx)
	results := make([]step.Result, 0, len(e.runs))

	for _, id := range e.graph.IDs() {
		r := e.runs[id]
		r.mu.Lock()
		result := r.result
		r.mu.Unlock()

		result.EncounteredTypes = []string{}
		if e.opts.Types != nil {
			result.EncounteredTypes = e.opts.Types.EncounteredTypes(id)
		}
		if undeclared := difference(result.EncounteredTypes, result.DeclaredTypes); len(undeclared) > 0 {
			logger.Warn("Step encountered undeclared types.", "step", id, "undeclaredTypes", undeclared)
		}

		if result.Status.Degraded() {
			result.PartialTypes = result.DeclaredTypes
		} else {
			result.PartialTypes = r.step.PartialTypes()
		}
		if result.PartialTypes == nil {
			result.PartialTypes = []string{}
		}
		results = append(results, result)
	}

	return &Summary{
		IntegrationStepResults: results,
		Metadata:               Metadata{PartialDatasets: PartialDatasets{Types: partialTypes(results)}},
	}
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	ev.Time = time.Now()
	if err := e.opts.Events.Publish(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to publish event.", "event", ev.Type, "step", ev.StepID, "error", err)
	}
}

func difference(have, known []string) []string {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	var out []string
	for _, h := range have {
		if _, ok := set[h]; !ok {
			out = append(out, h)
		}
	}
	return out
}
