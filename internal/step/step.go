// Package step holds the static description of an integration step and the
// types the execution engine produces for it.
package step

import (
	"context"
	"log/slog"
	"time"

	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
)

// GraphObjectMetadata documents one entity or relationship type a step
// declares it will produce.
type GraphObjectMetadata struct {
	ResourceName string
	Type         string
	Class        []string
	// SourceType and TargetType are set for relationships only.
	SourceType string
	TargetType string
	// Partial marks a type whose dataset is never complete, regardless of
	// the step status.
	Partial bool
}

// Step is a named unit of work. Steps are defined once and never mutated
// during a run.
type Step struct {
	ID                string
	Name              string
	DependsOn         []string
	Entities          []GraphObjectMetadata
	Relationships     []GraphObjectMetadata
	IngestionSourceID string
	Handler           Handler
}

// DeclaredTypes returns the entity types followed by the relationship
// types the step declares.
func (s *Step) DeclaredTypes() []string {
	types := make([]string, 0, len(s.Entities)+len(s.Relationships))
	for _, m := range s.Entities {
		types = append(types, m.Type)
	}
	for _, m := range s.Relationships {
		types = append(types, m.Type)
	}
	return types
}

// PartialTypes returns the declared types flagged as always partial.
func (s *Step) PartialTypes() []string {
	var types []string
	for _, m := range s.Entities {
		if m.Partial {
			types = append(types, m.Type)
		}
	}
	for _, m := range s.Relationships {
		if m.Partial {
			types = append(types, m.Type)
		}
	}
	return types
}

// DisabledReason explains why a step did not run.
type DisabledReason string

const (
	DisabledReasonNone            DisabledReason = "none"
	DisabledReasonConfig          DisabledReason = "config"
	DisabledReasonIngestionSource DisabledReason = "ingestion_source"
	DisabledReasonDependency      DisabledReason = "dependency"
)

// StartState is computed before execution and never changes mid-run.
type StartState struct {
	Disabled       bool
	DisabledReason DisabledReason
}

// StartStates maps step id to its start state.
type StartStates map[string]StartState

// Status is the lifecycle state of a step.
type Status string

const (
	StatusPending  Status = "pending"
	StatusDisabled Status = "disabled"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	// StatusPartialSuccess means the step ran but at least one dependency
	// failed or was itself degraded.
	StatusPartialSuccess Status = "partial_success_due_to_dependency_failure"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusDisabled, StatusSuccess, StatusFailure, StatusPartialSuccess:
		return true
	}
	return false
}

// Degraded reports whether data produced under this status is incomplete.
func (s Status) Degraded() bool {
	return s == StatusFailure || s == StatusPartialSuccess
}

// Result is the per-step entry of a run summary.
type Result struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Status           Status         `json:"status"`
	DisabledReason   DisabledReason `json:"disabledReason,omitempty"`
	DeclaredTypes    []string       `json:"declaredTypes"`
	EncounteredTypes []string       `json:"encounteredTypes"`
	PartialTypes     []string       `json:"partialTypes"`
	DependsOn        []string       `json:"dependsOn,omitempty"`
	ErrorID          string         `json:"errorId,omitempty"`
	Duration         time.Duration  `json:"durationNs,omitempty"`
}

// Instance is the integration instance a run executes for.
type Instance struct {
	ID     string
	Name   string
	Config map[string]any
}

// JobState is the per-step facade a handler uses to produce and read
// graph objects.
type JobState interface {
	AddEntity(ctx context.Context, e *graphobject.Entity) (*graphobject.Entity, error)
	AddEntities(ctx context.Context, es []*graphobject.Entity) ([]*graphobject.Entity, error)
	AddRelationship(ctx context.Context, r *graphobject.Relationship) (*graphobject.Relationship, error)
	AddRelationships(ctx context.Context, rs []*graphobject.Relationship) ([]*graphobject.Relationship, error)
	FindEntity(ctx context.Context, key string) (*graphobject.Entity, error)
	HasKey(ctx context.Context, key string) (bool, error)
	IterateEntities(ctx context.Context, filter graphstore.Filter, fn graphstore.EntityIteratee, opts graphstore.IterateOptions) error
	IterateRelationships(ctx context.Context, filter graphstore.Filter, fn graphstore.RelationshipIteratee, opts graphstore.IterateOptions) error
	SetData(key string, value any)
	GetData(key string) (any, bool)
	DeleteData(key string)
	Flush(ctx context.Context) error
}

// ExecutionContext is handed to every step handler.
type ExecutionContext struct {
	Logger   *slog.Logger
	Instance Instance
	JobState JobState
	StepID   string
}

// Handler runs a step's extraction and transformation logic.
type Handler func(ctx context.Context, ec *ExecutionContext) error

// IngestionSource groups steps that a user can switch off together.
type IngestionSource struct {
	ID          string
	Title       string
	Description string
	// CannotBeDisabled sources ignore disable requests.
	CannotBeDisabled bool
}
