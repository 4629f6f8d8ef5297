package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/graphjob/internal/step"
)

// StartStateError is a fatal configuration error found before execution.
type StartStateError struct {
	Unknown []string
	Missing []string
}

func (e *StartStateError) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown steps: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing start states for steps: "+strings.Join(e.Missing, ", "))
	}
	return "invalid step start states (" + strings.Join(parts, "; ") + ")"
}

// ComputeStartStates decides which steps run. Every step starts enabled.
// A step whose ingestion source is listed in disabledSources is disabled
// with reason ingestion_source, unless the source cannot be disabled. An
// explicit start state always wins over the ingestion source rule.
func ComputeStartStates(steps []*step.Step, explicit step.StartStates, sources []step.IngestionSource, disabledSources []string) step.StartStates {
	protected := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.CannotBeDisabled {
			protected[src.ID] = true
		}
	}
	disabled := make(map[string]bool, len(disabledSources))
	for _, id := range disabledSources {
		if !protected[id] {
			disabled[id] = true
		}
	}

	states := make(step.StartStates, len(steps))
	for _, s := range steps {
		if state, ok := explicit[s.ID]; ok {
			if state.Disabled && (state.DisabledReason == "" || state.DisabledReason == step.DisabledReasonNone) {
				state.DisabledReason = step.DisabledReasonConfig
			}
			if !state.Disabled {
				state.DisabledReason = step.DisabledReasonNone
			}
			states[s.ID] = state
			continue
		}
		if s.IngestionSourceID != "" && disabled[s.IngestionSourceID] {
			states[s.ID] = step.StartState{Disabled: true, DisabledReason: step.DisabledReasonIngestionSource}
			continue
		}
		states[s.ID] = step.StartState{DisabledReason: step.DisabledReasonNone}
	}
	return states
}

// ValidateStartStates rejects start states for unknown steps and, when
// complete is set, steps without a start state.
func ValidateStartStates(steps []*step.Step, states step.StartStates, complete bool) error {
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		known[s.ID] = true
	}

	verr := &StartStateError{}
	for id := range states {
		if !known[id] {
			verr.Unknown = append(verr.Unknown, id)
		}
	}
	if complete {
		for _, s := range steps {
			if _, ok := states[s.ID]; !ok {
				verr.Missing = append(verr.Missing, s.ID)
			}
		}
	}
	if len(verr.Unknown) == 0 && len(verr.Missing) == 0 {
		return nil
	}
	sort.Strings(verr.Unknown)
	sort.Strings(verr.Missing)
	return fmt.Errorf("start state validation failed: %w", verr)
}
