// Package memgraph provides an ephemeral, thread-safe, in-memory
// implementation of the graphstore.Store interface.
//
// # Characteristics
//
//   - **Ephemeral:** nothing is written to disk, the store lives for one run.
//   - **No spill:** every object stays in memory, so it suits tests and small
//     runs only.
//   - **Indexed by `_type`:** each collection keeps a per-type slice in
//     insertion order, so iteration never scans unrelated types.
//
// Flush has nothing to persist; it hands the objects added since the last
// flush to the callbacks so callers observe the same lifecycle as with the
// disk-backed stores.
package memgraph

import (
	"context"
	"sync"

	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/keytracker"
)

// Store implements graphstore.Store with plain maps guarded by an RWMutex.
type Store struct {
	mu sync.RWMutex

	entities      map[string]*graphobject.Entity
	entitiesByTyp map[string][]*graphobject.Entity
	pendingE      []*graphobject.Entity

	relationships map[string]*graphobject.Relationship
	relsByType    map[string][]*graphobject.Relationship
	pendingR      []*graphobject.Relationship
}

var _ graphstore.Store = (*Store)(nil)

// New creates a new, empty Store.
func New() *Store {
	return &Store{
		entities:      make(map[string]*graphobject.Entity),
		entitiesByTyp: make(map[string][]*graphobject.Entity),
		relationships: make(map[string]*graphobject.Relationship),
		relsByType:    make(map[string][]*graphobject.Relationship),
	}
}

// AddEntities stores all entities or none: a key already present, a key
// repeated within the batch, or a value with no JSON form rejects the whole
// call. Stored entities are in canonical form, like the disk backends.
func (s *Store) AddEntities(_ context.Context, _ string, entities []*graphobject.Entity, _ graphstore.EntitiesFlushed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, ok := s.entities[e.Key]; ok {
			return &keytracker.DuplicateKeyError{Key: e.Key, Collection: "entities"}
		}
		if _, ok := batch[e.Key]; ok {
			return &keytracker.DuplicateKeyError{Key: e.Key, Collection: "entities"}
		}
		batch[e.Key] = struct{}{}
	}
	for _, e := range entities {
		if err := e.Canonicalize(); err != nil {
			return err
		}
	}
	for _, e := range entities {
		s.entities[e.Key] = e
		s.entitiesByTyp[e.Type] = append(s.entitiesByTyp[e.Type], e)
		s.pendingE = append(s.pendingE, e)
	}
	return nil
}

// AddRelationships behaves like AddEntities.
func (s *Store) AddRelationships(_ context.Context, _ string, rels []*graphobject.Relationship, _ graphstore.RelationshipsFlushed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(rels))
	for _, r := range rels {
		if _, ok := s.relationships[r.Key]; ok {
			return &keytracker.DuplicateKeyError{Key: r.Key, Collection: "relationships"}
		}
		if _, ok := batch[r.Key]; ok {
			return &keytracker.DuplicateKeyError{Key: r.Key, Collection: "relationships"}
		}
		batch[r.Key] = struct{}{}
	}
	for _, r := range rels {
		if err := r.Canonicalize(); err != nil {
			return err
		}
	}
	for _, r := range rels {
		s.relationships[r.Key] = r
		s.relsByType[r.Type] = append(s.relsByType[r.Type], r)
		s.pendingR = append(s.pendingR, r)
	}
	return nil
}

func (s *Store) FindEntity(_ context.Context, key string) (*graphobject.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[key], nil
}

func (s *Store) IterateEntities(ctx context.Context, filter graphstore.Filter, fn graphstore.EntityIteratee, opts graphstore.IterateOptions) error {
	if filter.Type == "" {
		return graphstore.ErrEmptyFilter
	}
	s.mu.RLock()
	snapshot := append([]*graphobject.Entity(nil), s.entitiesByTyp[filter.Type]...)
	s.mu.RUnlock()
	return graphstore.ForEach(ctx, snapshot, opts.Concurrency, fn)
}

func (s *Store) IterateRelationships(ctx context.Context, filter graphstore.Filter, fn graphstore.RelationshipIteratee, opts graphstore.IterateOptions) error {
	if filter.Type == "" {
		return graphstore.ErrEmptyFilter
	}
	s.mu.RLock()
	snapshot := append([]*graphobject.Relationship(nil), s.relsByType[filter.Type]...)
	s.mu.RUnlock()
	return graphstore.ForEach(ctx, snapshot, opts.Concurrency, fn)
}

func (s *Store) Flush(ctx context.Context, _ string, onEntities graphstore.EntitiesFlushed, onRelationships graphstore.RelationshipsFlushed) error {
	s.mu.Lock()
	entities, rels := s.pendingE, s.pendingR
	s.pendingE, s.pendingR = nil, nil
	s.mu.Unlock()

	if onEntities != nil && len(entities) > 0 {
		if err := onEntities(ctx, entities); err != nil {
			return err
		}
	}
	if onRelationships != nil && len(rels) > 0 {
		if err := onRelationships(ctx, rels); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }
