// Package jobstate is the per-step facade step handlers use to add, find and
// iterate graph objects. Every JobState of a run shares one store, one pair
// of key trackers, one type tracker and one data store; only the step id
// differs.
package jobstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/graphjob/internal/datastore"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/keytracker"
	"github.com/specialistvlad/graphjob/internal/step"
	"github.com/specialistvlad/graphjob/internal/typetracker"
)

// Observer is notified about graph object traffic. metrics.Recorder
// implements it.
type Observer interface {
	ObjectsAdded(stepID, collection string, n int)
	ObjectsFlushed(collection string, n int)
}

// Shared holds the run-wide collaborators. Store, EntityKeys,
// RelationshipKeys and Types are required.
type Shared struct {
	Store            graphstore.Store
	EntityKeys       *keytracker.Tracker
	RelationshipKeys *keytracker.Tracker
	Types            *typetracker.Tracker
	Data             *datastore.Store

	BeforeAddEntity       func(ctx context.Context, e *graphobject.Entity) (*graphobject.Entity, error)
	BeforeAddRelationship func(ctx context.Context, r *graphobject.Relationship) (*graphobject.Relationship, error)

	Observer Observer

	// addMu serializes key checks with key registration across steps.
	addMu sync.Mutex
}

// Validate reports a missing required collaborator.
func (s *Shared) Validate() error {
	switch {
	case s == nil:
		return errors.New("jobstate: shared state is nil")
	case s.Store == nil:
		return errors.New("jobstate: store is required")
	case s.EntityKeys == nil || s.RelationshipKeys == nil:
		return errors.New("jobstate: key trackers are required")
	case s.Types == nil:
		return errors.New("jobstate: type tracker is required")
	}
	return nil
}

// JobState is bound to one step.
type JobState struct {
	stepID string
	shared *Shared
	data   *datastore.Store
}

var _ step.JobState = (*JobState)(nil)

// New returns a JobState for stepID. A nil shared.Data gets a private store.
func New(stepID string, shared *Shared) *JobState {
	data := shared.Data
	if data == nil {
		data = datastore.New()
	}
	return &JobState{stepID: stepID, shared: shared, data: data}
}

// StepID returns the step this JobState writes on behalf of.
func (j *JobState) StepID() string { return j.stepID }

func (j *JobState) AddEntity(ctx context.Context, e *graphobject.Entity) (*graphobject.Entity, error) {
	added, err := j.AddEntities(ctx, []*graphobject.Entity{e})
	if err != nil {
		return nil, err
	}
	return added[0], nil
}

// AddEntities stores entities in order and registers their keys once the
// store has accepted them. When one of them is rejected, the ones before it
// are still stored and the error is returned.
func (j *JobState) AddEntities(ctx context.Context, entities []*graphobject.Entity) ([]*graphobject.Entity, error) {
	j.shared.addMu.Lock()
	defer j.shared.addMu.Unlock()

	keys := j.shared.EntityKeys
	accepted := make([]*graphobject.Entity, 0, len(entities))
	batch := make(map[string]struct{}, len(entities))
	var rejectErr error
	for _, e := range entities {
		var err error
		if j.shared.BeforeAddEntity != nil {
			if e, err = j.shared.BeforeAddEntity(ctx, e); err != nil {
				rejectErr = fmt.Errorf("beforeAddEntity hook: %w", err)
				break
			}
		}
		if err = e.Validate(); err != nil {
			rejectErr = err
			break
		}
		if err = e.Canonicalize(); err != nil {
			rejectErr = err
			break
		}
		if err = checkKey(ctx, keys, batch, e.Key); err != nil {
			rejectErr = err
			break
		}
		accepted = append(accepted, e)
	}

	if len(accepted) > 0 {
		if err := j.shared.Store.AddEntities(ctx, j.stepID, accepted, j.entitiesFlushed); err != nil {
			return nil, err
		}
		for _, e := range accepted {
			if err := keys.RegisterKey(ctx, e.Key); err != nil {
				return nil, err
			}
			j.shared.Types.Register(j.stepID, e.Type)
		}
		j.observeAdded("entities", len(accepted))
	}
	if rejectErr != nil {
		return nil, rejectErr
	}
	return accepted, nil
}

func (j *JobState) AddRelationship(ctx context.Context, r *graphobject.Relationship) (*graphobject.Relationship, error) {
	added, err := j.AddRelationships(ctx, []*graphobject.Relationship{r})
	if err != nil {
		return nil, err
	}
	return added[0], nil
}

// AddRelationships follows the same rules as AddEntities. Mapped
// relationships are stored with their mapping as-is.
func (j *JobState) AddRelationships(ctx context.Context, rels []*graphobject.Relationship) ([]*graphobject.Relationship, error) {
	j.shared.addMu.Lock()
	defer j.shared.addMu.Unlock()

	keys := j.shared.RelationshipKeys
	accepted := make([]*graphobject.Relationship, 0, len(rels))
	batch := make(map[string]struct{}, len(rels))
	var rejectErr error
	for _, r := range rels {
		var err error
		if j.shared.BeforeAddRelationship != nil {
			if r, err = j.shared.BeforeAddRelationship(ctx, r); err != nil {
				rejectErr = fmt.Errorf("beforeAddRelationship hook: %w", err)
				break
			}
		}
		if err = r.Validate(); err != nil {
			rejectErr = err
			break
		}
		if err = r.Canonicalize(); err != nil {
			rejectErr = err
			break
		}
		if err = checkKey(ctx, keys, batch, r.Key); err != nil {
			rejectErr = err
			break
		}
		accepted = append(accepted, r)
	}

	if len(accepted) > 0 {
		if err := j.shared.Store.AddRelationships(ctx, j.stepID, accepted, j.relationshipsFlushed); err != nil {
			return nil, err
		}
		for _, r := range accepted {
			if err := keys.RegisterKey(ctx, r.Key); err != nil {
				return nil, err
			}
			j.shared.Types.Register(j.stepID, r.Type)
		}
		j.observeAdded("relationships", len(accepted))
	}
	if rejectErr != nil {
		return nil, rejectErr
	}
	return accepted, nil
}

// checkKey rejects a key that was registered earlier or already appears in
// the batch being added.
func checkKey(ctx context.Context, keys *keytracker.Tracker, batch map[string]struct{}, key string) error {
	if err := keys.Check(ctx, key); err != nil {
		return err
	}
	normalized := keys.Normalized(key)
	if _, ok := batch[normalized]; ok {
		return &keytracker.DuplicateKeyError{Key: key, Collection: keys.Collection()}
	}
	batch[normalized] = struct{}{}
	return nil
}

// FindEntity returns nil, nil for an unknown key without touching the store.
func (j *JobState) FindEntity(ctx context.Context, key string) (*graphobject.Entity, error) {
	known, err := j.shared.EntityKeys.HasKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, nil
	}
	return j.shared.Store.FindEntity(ctx, key)
}

// HasKey reports whether an entity or relationship with key was added.
func (j *JobState) HasKey(ctx context.Context, key string) (bool, error) {
	ok, err := j.shared.EntityKeys.HasKey(ctx, key)
	if err != nil || ok {
		return ok, err
	}
	return j.shared.RelationshipKeys.HasKey(ctx, key)
}

func (j *JobState) IterateEntities(ctx context.Context, filter graphstore.Filter, fn graphstore.EntityIteratee, opts graphstore.IterateOptions) error {
	return j.shared.Store.IterateEntities(ctx, filter, fn, opts)
}

func (j *JobState) IterateRelationships(ctx context.Context, filter graphstore.Filter, fn graphstore.RelationshipIteratee, opts graphstore.IterateOptions) error {
	return j.shared.Store.IterateRelationships(ctx, filter, fn, opts)
}

func (j *JobState) SetData(key string, value any)  { j.data.Set(key, value) }
func (j *JobState) GetData(key string) (any, bool) { return j.data.Get(key) }
func (j *JobState) DeleteData(key string)          { j.data.Delete(key) }

// Flush persists everything buffered in the store and returns the flush
// failures of this step's objects, including ones hit by other steps'
// flushes. Safe to call repeatedly.
func (j *JobState) Flush(ctx context.Context) error {
	return j.shared.Store.Flush(ctx, j.stepID, j.entitiesFlushed, j.relationshipsFlushed)
}

func (j *JobState) entitiesFlushed(_ context.Context, es []*graphobject.Entity) error {
	if j.shared.Observer != nil {
		j.shared.Observer.ObjectsFlushed("entities", len(es))
	}
	return nil
}

func (j *JobState) relationshipsFlushed(_ context.Context, rs []*graphobject.Relationship) error {
	if j.shared.Observer != nil {
		j.shared.Observer.ObjectsFlushed("relationships", len(rs))
	}
	return nil
}

func (j *JobState) observeAdded(collection string, n int) {
	if j.shared.Observer != nil {
		j.shared.Observer.ObjectsAdded(j.stepID, collection, n)
	}
}
