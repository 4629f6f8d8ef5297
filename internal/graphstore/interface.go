package graphstore

import (
	"context"
	"errors"

	"github.com/specialistvlad/graphjob/internal/graphobject"
)

// ErrEmptyFilter is returned when iteration is requested without a _type.
var ErrEmptyFilter = errors.New("filter requires a _type")

// Filter selects the objects to iterate over.
type Filter struct {
	Type string
}

// IterateOptions controls iteratee fan-out. Concurrency <= 1 is sequential.
type IterateOptions struct {
	Concurrency int
}

// EntityIteratee is called once per matching entity.
type EntityIteratee func(ctx context.Context, e *graphobject.Entity) error

// RelationshipIteratee is called once per matching relationship.
type RelationshipIteratee func(ctx context.Context, r *graphobject.Relationship) error

// EntitiesFlushed is invoked with the entities a flush persisted.
type EntitiesFlushed func(ctx context.Context, entities []*graphobject.Entity) error

// RelationshipsFlushed is invoked with the relationships a flush persisted.
type RelationshipsFlushed func(ctx context.Context, relationships []*graphobject.Relationship) error

// Store is the contract every graph object backend implements.
type Store interface {
	// AddEntities buffers entities for stepID. Objects that could never be
	// persisted are rejected here with graphobject.ErrInvalidObject. If the
	// buffer crosses the backend's threshold it is flushed, onFlushed
	// (optional) is called and only stepID's flush failures are returned.
	AddEntities(ctx context.Context, stepID string, entities []*graphobject.Entity, onFlushed EntitiesFlushed) error
	AddRelationships(ctx context.Context, stepID string, relationships []*graphobject.Relationship, onFlushed RelationshipsFlushed) error

	// FindEntity returns nil, nil when no entity has the key.
	FindEntity(ctx context.Context, key string) (*graphobject.Entity, error)

	IterateEntities(ctx context.Context, filter Filter, fn EntityIteratee, opts IterateOptions) error
	IterateRelationships(ctx context.Context, filter Filter, fn RelationshipIteratee, opts IterateOptions) error

	// Flush persists everything buffered. It is idempotent. A partition that
	// fails to persist is dropped and its error is kept for the step that
	// added it; Flush returns the errors recorded for stepID, or every
	// recorded error when stepID is empty.
	Flush(ctx context.Context, stepID string, onEntities EntitiesFlushed, onRelationships RelationshipsFlushed) error

	Close() error
}
