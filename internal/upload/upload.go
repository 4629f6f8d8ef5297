// Package upload hands the graph objects of a finished run to the
// synchronization system. It only covers the consumption contract:
// objects are read back from the store type by type and delivered in
// batches to a Sink.
package upload

import (
	"context"
	"fmt"

	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 250

// Collection names used on the wire.
const (
	CollectionEntities      = "entities"
	CollectionRelationships = "relationships"
)

// Sink receives batches of graph objects.
type Sink interface {
	UploadEntities(ctx context.Context, entities []*graphobject.Entity) error
	UploadRelationships(ctx context.Context, relationships []*graphobject.Relationship) error
	Close() error
}

// Options controls Run.
type Options struct {
	// Types lists every `_type` to upload, typically all encountered types.
	Types     []string
	BatchSize int
}

// Stats counts delivered objects.
type Stats struct {
	Entities      int
	Relationships int
	Batches       int
}

// Run streams every object of opts.Types from store into sink.
func Run(ctx context.Context, store graphstore.Store, sink Sink, opts Options) (Stats, error) {
	logger := ctxlog.FromContext(ctx)
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var stats Stats
	for _, typ := range opts.Types {
		entities := make([]*graphobject.Entity, 0, size)
		flushEntities := func(ctx context.Context) error {
			if len(entities) == 0 {
				return nil
			}
			if err := sink.UploadEntities(ctx, entities); err != nil {
				return fmt.Errorf("uploading %d %s entities: %w", len(entities), typ, err)
			}
			stats.Entities += len(entities)
			stats.Batches++
			entities = make([]*graphobject.Entity, 0, size)
			return nil
		}
		err := store.IterateEntities(ctx, graphstore.Filter{Type: typ}, func(ctx context.Context, e *graphobject.Entity) error {
			entities = append(entities, e)
			if len(entities) >= size {
				return flushEntities(ctx)
			}
			return nil
		}, graphstore.IterateOptions{})
		if err != nil {
			return stats, err
		}
		if err := flushEntities(ctx); err != nil {
			return stats, err
		}

		rels := make([]*graphobject.Relationship, 0, size)
		flushRels := func(ctx context.Context) error {
			if len(rels) == 0 {
				return nil
			}
			if err := sink.UploadRelationships(ctx, rels); err != nil {
				return fmt.Errorf("uploading %d %s relationships: %w", len(rels), typ, err)
			}
			stats.Relationships += len(rels)
			stats.Batches++
			rels = make([]*graphobject.Relationship, 0, size)
			return nil
		}
		err = store.IterateRelationships(ctx, graphstore.Filter{Type: typ}, func(ctx context.Context, r *graphobject.Relationship) error {
			rels = append(rels, r)
			if len(rels) >= size {
				return flushRels(ctx)
			}
			return nil
		}, graphstore.IterateOptions{})
		if err != nil {
			return stats, err
		}
		if err := flushRels(ctx); err != nil {
			return stats, err
		}
		logger.Debug("Uploaded type.", "type", typ)
	}

	logger.Info("📤 Upload finished.", "entities", stats.Entities, "relationships", stats.Relationships, "batches", stats.Batches)
	return stats, nil
}
