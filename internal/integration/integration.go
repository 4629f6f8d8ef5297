// Package integration ties a static integration definition to one run:
// invocation validation, start states, graph construction and execution.
package integration

import (
	"context"
	"fmt"

	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/dag"
	"github.com/specialistvlad/graphjob/internal/events"
	"github.com/specialistvlad/graphjob/internal/executor"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/jobstate"
	"github.com/specialistvlad/graphjob/internal/step"
)

// Definition is everything an integration author provides.
type Definition struct {
	Name            string
	Steps           []*step.Step
	IngestionConfig []step.IngestionSource

	// ValidateInvocation runs before anything else. An error aborts the run.
	ValidateInvocation func(ctx context.Context, instance step.Instance) error
	// GetStepStartStates, when set, must return a start state for every step.
	GetStepStartStates func(ctx context.Context, instance step.Instance) (step.StartStates, error)

	BeforeAddEntity       func(ctx context.Context, e *graphobject.Entity) (*graphobject.Entity, error)
	BeforeAddRelationship func(ctx context.Context, r *graphobject.Relationship) (*graphobject.Relationship, error)
}

// InvocationError wraps a failed ValidateInvocation.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string { return "invocation validation failed: " + e.Err.Error() }
func (e *InvocationError) Unwrap() error { return e.Err }

// Options configures one Execute call.
type Options struct {
	Instance step.Instance
	// Shared must have Store, key trackers and type tracker set. The
	// definition's hooks are installed on it.
	Shared *jobstate.Shared
	// DisabledSteps are switched off by run configuration and override the
	// definition's start states.
	DisabledSteps   []string
	DisabledSources []string
	MaxConcurrency  int
	Events          events.Publisher
	Metrics         executor.StepRecorder
}

// Execute runs def once and returns the summary. Configuration problems
// are returned as errors before any handler runs; step failures are only
// reported in the summary.
func Execute(ctx context.Context, def *Definition, opts Options) (*executor.Summary, error) {
	ctx, logger := ctxlog.With(ctx, "integration", def.Name)

	if err := opts.Shared.Validate(); err != nil {
		return nil, err
	}

	if def.ValidateInvocation != nil {
		if err := def.ValidateInvocation(ctx, opts.Instance); err != nil {
			return nil, &InvocationError{Err: err}
		}
	}

	states, err := startStates(ctx, def, opts)
	if err != nil {
		return nil, err
	}

	graph, err := dag.Build(def.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	logger.Debug("Dependency graph built.", "node_count", graph.Len(), "plan", graph.TopologicalOrder())

	opts.Shared.BeforeAddEntity = def.BeforeAddEntity
	opts.Shared.BeforeAddRelationship = def.BeforeAddRelationship

	engine, err := executor.New(graph, executor.Options{
		Instance:       opts.Instance,
		StartStates:    states,
		NewJobState:    func(id string) step.JobState { return jobstate.New(id, opts.Shared) },
		Types:          opts.Shared.Types,
		MaxConcurrency: opts.MaxConcurrency,
		Events:         opts.Events,
		Metrics:        opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	summary, err := engine.Execute(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range summary.IntegrationStepResults {
		if counts := opts.Shared.Types.Summary(r.ID); len(counts) > 0 {
			logger.Debug("Step type summary.", "step", r.ID, "types", counts)
		}
	}
	return summary, nil
}

func startStates(ctx context.Context, def *Definition, opts Options) (step.StartStates, error) {
	explicit := step.StartStates{}
	if def.GetStepStartStates != nil {
		got, err := def.GetStepStartStates(ctx, opts.Instance)
		if err != nil {
			return nil, fmt.Errorf("getStepStartStates: %w", err)
		}
		if err := executor.ValidateStartStates(def.Steps, got, true); err != nil {
			return nil, err
		}
		for id, s := range got {
			explicit[id] = s
		}
	}

	fromConfig := make(step.StartStates, len(opts.DisabledSteps))
	for _, id := range opts.DisabledSteps {
		fromConfig[id] = step.StartState{Disabled: true, DisabledReason: step.DisabledReasonConfig}
	}
	if err := executor.ValidateStartStates(def.Steps, fromConfig, false); err != nil {
		return nil, fmt.Errorf("run configuration: %w", err)
	}
	for id, s := range fromConfig {
		explicit[id] = s
	}

	return executor.ComputeStartStates(def.Steps, explicit, def.IngestionConfig, opts.DisabledSources), nil
}
