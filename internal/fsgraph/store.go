package fsgraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/graphbuffer"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/keytracker"
)

// DefaultBufferThreshold is the per-collection buffer size that triggers a flush.
const DefaultBufferThreshold = 500

const (
	collectionEntities      = "entities"
	collectionRelationships = "relationships"
)

// Options configures a Store.
type Options struct {
	// Root is the working directory; graph/ and index/ are created under it.
	Root            string
	BufferThreshold int
}

// Store is safe for concurrent use. Writes, flushes and index listings are
// serialized by one mutex; iteratees run without it.
type Store struct {
	mu        sync.Mutex
	root      string
	threshold int

	entities      *graphbuffer.BucketMap[*graphobject.Entity]
	relationships *graphbuffer.BucketMap[*graphobject.Relationship]

	// entityChunks maps a flushed entity key to the chunk that holds it.
	entityChunks map[string]string
	bufferedKeys map[string]struct{}
	relKeys      map[string]struct{}
	flushes      int

	failures graphbuffer.Failures
}

var _ graphstore.Store = (*Store)(nil)

// New creates the root directory if needed and returns an empty Store.
func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("fsgraph: root directory is required")
	}
	if opts.BufferThreshold <= 0 {
		opts.BufferThreshold = DefaultBufferThreshold
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", opts.Root, err)
	}
	return &Store{
		root:          opts.Root,
		threshold:     opts.BufferThreshold,
		entities:      graphbuffer.New[*graphobject.Entity](),
		relationships: graphbuffer.New[*graphobject.Relationship](),
		entityChunks:  make(map[string]string),
		bufferedKeys:  make(map[string]struct{}),
		relKeys:       make(map[string]struct{}),
	}, nil
}

// Buffered returns how many entities and relationships are waiting in memory.
func (s *Store) Buffered() (entities, relationships int) {
	return s.entities.Len(), s.relationships.Len()
}

// Flushes returns how many flushes wrote at least one chunk.
func (s *Store) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

func (s *Store) AddEntities(ctx context.Context, stepID string, entities []*graphobject.Entity, onFlushed graphstore.EntitiesFlushed) error {
	s.mu.Lock()
	batch := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		_, buffered := s.bufferedKeys[e.Key]
		_, flushed := s.entityChunks[e.Key]
		_, repeated := batch[e.Key]
		if buffered || flushed || repeated {
			s.mu.Unlock()
			return &keytracker.DuplicateKeyError{Key: e.Key, Collection: collectionEntities}
		}
		batch[e.Key] = struct{}{}
	}
	for _, e := range entities {
		if err := checkPartition(stepID, e.Type, e.Key); err != nil {
			s.mu.Unlock()
			return err
		}
		if err := e.Canonicalize(); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	for _, e := range entities {
		s.entities.Add(graphbuffer.Partition{StepID: stepID, Type: e.Type}, e)
		s.bufferedKeys[e.Key] = struct{}{}
	}

	var flushed []*graphobject.Entity
	if s.entities.Len() >= s.threshold {
		flushed = s.flushEntitiesLocked(ctx)
	}
	s.mu.Unlock()

	if onFlushed != nil && len(flushed) > 0 {
		if err := onFlushed(ctx, flushed); err != nil {
			return err
		}
	}
	return s.failures.Take(stepID)
}

func (s *Store) AddRelationships(ctx context.Context, stepID string, rels []*graphobject.Relationship, onFlushed graphstore.RelationshipsFlushed) error {
	s.mu.Lock()
	batch := make(map[string]struct{}, len(rels))
	for _, r := range rels {
		_, known := s.relKeys[r.Key]
		_, repeated := batch[r.Key]
		if known || repeated {
			s.mu.Unlock()
			return &keytracker.DuplicateKeyError{Key: r.Key, Collection: collectionRelationships}
		}
		batch[r.Key] = struct{}{}
	}
	for _, r := range rels {
		if err := checkPartition(stepID, r.Type, r.Key); err != nil {
			s.mu.Unlock()
			return err
		}
		if err := r.Canonicalize(); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	for _, r := range rels {
		s.relationships.Add(graphbuffer.Partition{StepID: stepID, Type: r.Type}, r)
		s.relKeys[r.Key] = struct{}{}
	}

	var flushed []*graphobject.Relationship
	if s.relationships.Len() >= s.threshold {
		flushed = s.flushRelationshipsLocked(ctx)
	}
	s.mu.Unlock()

	if onFlushed != nil && len(flushed) > 0 {
		if err := onFlushed(ctx, flushed); err != nil {
			return err
		}
	}
	return s.failures.Take(stepID)
}

// checkPartition rejects objects whose chunk path could not be built.
func checkPartition(stepID, typ, key string) error {
	if err := checkSegment(stepID); err != nil {
		return fmt.Errorf("%w: step id of %q: %v", graphobject.ErrInvalidObject, key, err)
	}
	if err := checkSegment(typ); err != nil {
		return fmt.Errorf("%w: _type of %q: %v", graphobject.ErrInvalidObject, key, err)
	}
	return nil
}

// FindEntity looks in the buffer, then in the chunk recorded for the key.
func (s *Store) FindEntity(_ context.Context, key string) (*graphobject.Entity, error) {
	s.mu.Lock()
	buffered, inBuffer := s.entities.Find(func(e *graphobject.Entity) bool { return e.Key == key })
	chunk, inChunk := s.entityChunks[key]
	s.mu.Unlock()

	if !inChunk {
		if inBuffer {
			return buffered, nil
		}
		return nil, nil
	}

	stored, err := readEntityChunk(chunk)
	if err != nil {
		return nil, err
	}
	var match *graphobject.Entity
	matches := 0
	if inBuffer {
		match, matches = buffered, 1
	}
	for _, e := range stored {
		if e.Key == key {
			match = e
			matches++
		}
	}
	if matches > 1 {
		return nil, &keytracker.DuplicateKeyError{Key: key, Collection: collectionEntities}
	}
	return match, nil
}

func (s *Store) IterateEntities(ctx context.Context, filter graphstore.Filter, fn graphstore.EntityIteratee, opts graphstore.IterateOptions) error {
	if filter.Type == "" {
		return graphstore.ErrEmptyFilter
	}
	s.mu.Lock()
	buffered := s.entities.ByType(filter.Type)
	chunks, err := s.indexedChunks(collectionEntities, filter.Type)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := graphstore.ForEach(ctx, buffered, opts.Concurrency, fn); err != nil {
		return err
	}
	for _, chunk := range chunks {
		entities, err := readEntityChunk(chunk)
		if err != nil {
			return err
		}
		if err := graphstore.ForEach(ctx, entities, opts.Concurrency, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) IterateRelationships(ctx context.Context, filter graphstore.Filter, fn graphstore.RelationshipIteratee, opts graphstore.IterateOptions) error {
	if filter.Type == "" {
		return graphstore.ErrEmptyFilter
	}
	s.mu.Lock()
	buffered := s.relationships.ByType(filter.Type)
	chunks, err := s.indexedChunks(collectionRelationships, filter.Type)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := graphstore.ForEach(ctx, buffered, opts.Concurrency, fn); err != nil {
		return err
	}
	for _, chunk := range chunks {
		rels, err := readRelationshipChunk(chunk)
		if err != nil {
			return err
		}
		if err := graphstore.ForEach(ctx, rels, opts.Concurrency, fn); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes both buffers. Callbacks run after the store lock is released.
func (s *Store) Flush(ctx context.Context, stepID string, onEntities graphstore.EntitiesFlushed, onRelationships graphstore.RelationshipsFlushed) error {
	s.mu.Lock()
	entities := s.flushEntitiesLocked(ctx)
	rels := s.flushRelationshipsLocked(ctx)
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
	return s.failures.Take(stepID)
}

func (s *Store) Close() error { return nil }

// flushEntitiesLocked writes one chunk per partition. A partition whose chunk
// cannot be written is dropped and the error is kept for its step.
func (s *Store) flushEntitiesLocked(ctx context.Context) []*graphobject.Entity {
	buckets := s.entities.Drain()
	if len(buckets) == 0 {
		return nil
	}
	var flushed []*graphobject.Entity
	chunks := 0
	for _, b := range buckets {
		chunk, err := s.writeChunk(collectionEntities, b.Partition, entityChunk{Entities: b.Items})
		if err != nil {
			for _, e := range b.Items {
				delete(s.bufferedKeys, e.Key)
			}
			s.dropPartition(ctx, collectionEntities, b.Partition, len(b.Items), err)
			continue
		}
		for _, e := range b.Items {
			delete(s.bufferedKeys, e.Key)
			s.entityChunks[e.Key] = chunk
		}
		flushed = append(flushed, b.Items...)
		chunks++
	}
	if chunks > 0 {
		s.flushes++
		ctxlog.FromContext(ctx).Debug("Flushed entities to disk.", "count", len(flushed), "chunks", chunks)
	}
	return flushed
}

func (s *Store) flushRelationshipsLocked(ctx context.Context) []*graphobject.Relationship {
	buckets := s.relationships.Drain()
	if len(buckets) == 0 {
		return nil
	}
	var flushed []*graphobject.Relationship
	chunks := 0
	for _, b := range buckets {
		if _, err := s.writeChunk(collectionRelationships, b.Partition, relationshipChunk{Relationships: b.Items}); err != nil {
			for _, r := range b.Items {
				delete(s.relKeys, r.Key)
			}
			s.dropPartition(ctx, collectionRelationships, b.Partition, len(b.Items), err)
			continue
		}
		flushed = append(flushed, b.Items...)
		chunks++
	}
	if chunks > 0 {
		s.flushes++
		ctxlog.FromContext(ctx).Debug("Flushed relationships to disk.", "count", len(flushed), "chunks", chunks)
	}
	return flushed
}

func (s *Store) dropPartition(ctx context.Context, collection string, p graphbuffer.Partition, count int, err error) {
	s.failures.Record(p.StepID, fmt.Errorf("flushing %s of step %s: %w", collection, p.StepID, err))
	ctxlog.FromContext(ctx).Warn("Dropped partition that failed to flush.",
		"collection", collection, "step", p.StepID, "type", p.Type, "count", count, "error", err)
}

func (s *Store) indexedChunks(collection, typ string) ([]string, error) {
	if err := checkSegment(typ); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, "index", collection, typ)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", dir, err)
	}
	chunks := make([]string, 0, len(entries))
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			chunks = append(chunks, filepath.Join(dir, entry.Name()))
		}
	}
	return chunks, nil
}
