package dag

import (
	"fmt"
	"strings"
)

// DependencyCycleError reports a cycle among step dependencies. Path starts
// and ends with the same step id.
type DependencyCycleError struct {
	Path []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("cycle detected involving node '%s': %s", e.Path[0], strings.Join(e.Path, " -> "))
}

// UnknownDependencyError reports a dependsOn entry naming no known step.
type UnknownDependencyError struct {
	StepID     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step '%s' depends on unknown step '%s'", e.StepID, e.Dependency)
}

// DuplicateStepError reports two steps sharing an id.
type DuplicateStepError struct {
	StepID string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step id '%s'", e.StepID)
}
