// Package sqlgraph implements graphstore.Store on an embedded SQLite
// database. Objects are buffered in memory and written in one transaction
// per flush, with a savepoint per (step, _type) partition so one partition
// that cannot be written does not take the others down with it. `_key` is
// the primary key of each table, so the database itself refuses a second
// object with the same key.
package sqlgraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/graphbuffer"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/keytracker"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DefaultBufferThreshold is the per-collection buffer size that triggers a flush.
const DefaultBufferThreshold = 500

// pageSize bounds how many rows are held in memory during iteration.
const pageSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	key     TEXT PRIMARY KEY,
	type    TEXT NOT NULL,
	step_id TEXT NOT NULL,
	body    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS relationships (
	key     TEXT PRIMARY KEY,
	type    TEXT NOT NULL,
	step_id TEXT NOT NULL,
	body    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(type);
`

var jsonAPI = sonic.ConfigStd

// Options configures a Store.
type Options struct {
	BufferThreshold int
}

// Store is safe for concurrent use. The database handle is owned by the
// caller and is not closed by Close.
type Store struct {
	db        *sql.DB
	threshold int

	mu            sync.Mutex
	entities      *graphbuffer.BucketMap[*graphobject.Entity]
	relationships *graphbuffer.BucketMap[*graphobject.Relationship]
	bufferedE     map[string]struct{}
	bufferedR     map[string]struct{}
	failures      graphbuffer.Failures
}

var _ graphstore.Store = (*Store)(nil)

// New creates the schema if needed.
func New(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	if opts.BufferThreshold <= 0 {
		opts.BufferThreshold = DefaultBufferThreshold
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create graph schema: %w", err)
	}
	return &Store{
		db:            db,
		threshold:     opts.BufferThreshold,
		entities:      graphbuffer.New[*graphobject.Entity](),
		relationships: graphbuffer.New[*graphobject.Relationship](),
		bufferedE:     make(map[string]struct{}),
		bufferedR:     make(map[string]struct{}),
	}, nil
}

func (s *Store) AddEntities(ctx context.Context, stepID string, entities []*graphobject.Entity, onFlushed graphstore.EntitiesFlushed) error {
	s.mu.Lock()
	keys := make([]string, len(entities))
	for i, e := range entities {
		keys[i] = e.Key
	}
	if err := s.checkKeysLocked(ctx, "entities", s.bufferedE, keys); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, e := range entities {
		if err := e.Canonicalize(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	for _, e := range entities {
		s.entities.Add(graphbuffer.Partition{StepID: stepID, Type: e.Type}, e)
		s.bufferedE[e.Key] = struct{}{}
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
	keys := make([]string, len(rels))
	for i, r := range rels {
		keys[i] = r.Key
	}
	if err := s.checkKeysLocked(ctx, "relationships", s.bufferedR, keys); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, r := range rels {
		if err := r.Canonicalize(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	for _, r := range rels {
		s.relationships.Add(graphbuffer.Partition{StepID: stepID, Type: r.Type}, r)
		s.bufferedR[r.Key] = struct{}{}
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

// checkKeysLocked rejects keys that are buffered, stored, or repeated in keys.
func (s *Store) checkKeysLocked(ctx context.Context, table string, buffered map[string]struct{}, keys []string) error {
	batch := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		_, inBuffer := buffered[key]
		_, repeated := batch[key]
		if inBuffer || repeated {
			return &keytracker.DuplicateKeyError{Key: key, Collection: table}
		}
		batch[key] = struct{}{}

		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE key = ?", key).Scan(&one)
		switch {
		case err == nil:
			return &keytracker.DuplicateKeyError{Key: key, Collection: table}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking %s key %q: %w", table, key, err)
		}
	}
	return nil
}

func (s *Store) FindEntity(ctx context.Context, key string) (*graphobject.Entity, error) {
	s.mu.Lock()
	buffered, ok := s.entities.Find(func(e *graphobject.Entity) bool { return e.Key == key })
	s.mu.Unlock()
	if ok {
		return buffered, nil
	}

	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM entities WHERE key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding entity %q: %w", key, err)
	}
	var e graphobject.Entity
	if err := jsonAPI.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decoding entity %q: %w", key, err)
	}
	return &e, nil
}

func (s *Store) IterateEntities(ctx context.Context, filter graphstore.Filter, fn graphstore.EntityIteratee, opts graphstore.IterateOptions) error {
	if filter.Type == "" {
		return graphstore.ErrEmptyFilter
	}
	s.mu.Lock()
	buffered := s.entities.ByType(filter.Type)
	s.mu.Unlock()
	if err := graphstore.ForEach(ctx, buffered, opts.Concurrency, fn); err != nil {
		return err
	}
	return scanPages(ctx, s.db, "entities", filter.Type, func(body []byte) (*graphobject.Entity, error) {
		var e graphobject.Entity
		err := jsonAPI.Unmarshal(body, &e)
		return &e, err
	}, func(page []*graphobject.Entity) error {
		return graphstore.ForEach(ctx, page, opts.Concurrency, fn)
	})
}

func (s *Store) IterateRelationships(ctx context.Context, filter graphstore.Filter, fn graphstore.RelationshipIteratee, opts graphstore.IterateOptions) error {
	if filter.Type == "" {
		return graphstore.ErrEmptyFilter
	}
	s.mu.Lock()
	buffered := s.relationships.ByType(filter.Type)
	s.mu.Unlock()
	if err := graphstore.ForEach(ctx, buffered, opts.Concurrency, fn); err != nil {
		return err
	}
	return scanPages(ctx, s.db, "relationships", filter.Type, func(body []byte) (*graphobject.Relationship, error) {
		var r graphobject.Relationship
		err := jsonAPI.Unmarshal(body, &r)
		return &r, err
	}, func(page []*graphobject.Relationship) error {
		return graphstore.ForEach(ctx, page, opts.Concurrency, fn)
	})
}

// scanPages reads rows of typ in insertion order, one page at a time, and
// releases the connection before handing each page to visit.
func scanPages[T any](ctx context.Context, db *sql.DB, table, typ string, decode func([]byte) (T, error), visit func([]T) error) error {
	var after int64
	for {
		page, last, err := readPage(ctx, db, table, typ, after, decode)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := visit(page); err != nil {
			return err
		}
		after = last
	}
}

func readPage[T any](ctx context.Context, db *sql.DB, table, typ string, after int64, decode func([]byte) (T, error)) ([]T, int64, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT rowid, body FROM "+table+" WHERE type = ? AND rowid > ? ORDER BY rowid LIMIT ?",
		typ, after, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning %s of type %s: %w", table, typ, err)
	}
	defer rows.Close()

	var (
		page []T
		last int64
	)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&last, &body); err != nil {
			return nil, 0, err
		}
		item, err := decode(body)
		if err != nil {
			return nil, 0, fmt.Errorf("decoding %s row %d: %w", table, last, err)
		}
		page = append(page, item)
	}
	return page, last, rows.Err()
}

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

func (s *Store) flushEntitiesLocked(ctx context.Context) []*graphobject.Entity {
	buckets := s.entities.Drain()
	if len(buckets) == 0 {
		return nil
	}
	flushed, failed := writeBuckets(ctx, s.db, "entities", buckets, func(e *graphobject.Entity) (string, string) {
		return e.Key, e.Type
	})
	for _, e := range flushed {
		delete(s.bufferedE, e.Key)
	}
	for _, f := range failed {
		for _, e := range f.Items {
			delete(s.bufferedE, e.Key)
		}
		s.dropPartition(ctx, "entities", f.Partition, len(f.Items), f.err)
	}
	if len(flushed) > 0 {
		ctxlog.FromContext(ctx).Debug("Flushed entities to sqlite.", "count", len(flushed))
	}
	return flushed
}

func (s *Store) flushRelationshipsLocked(ctx context.Context) []*graphobject.Relationship {
	buckets := s.relationships.Drain()
	if len(buckets) == 0 {
		return nil
	}
	flushed, failed := writeBuckets(ctx, s.db, "relationships", buckets, func(r *graphobject.Relationship) (string, string) {
		return r.Key, r.Type
	})
	for _, r := range flushed {
		delete(s.bufferedR, r.Key)
	}
	for _, f := range failed {
		for _, r := range f.Items {
			delete(s.bufferedR, r.Key)
		}
		s.dropPartition(ctx, "relationships", f.Partition, len(f.Items), f.err)
	}
	if len(flushed) > 0 {
		ctxlog.FromContext(ctx).Debug("Flushed relationships to sqlite.", "count", len(flushed))
	}
	return flushed
}

func (s *Store) dropPartition(ctx context.Context, table string, p graphbuffer.Partition, count int, err error) {
	s.failures.Record(p.StepID, fmt.Errorf("flushing %s of step %s: %w", table, p.StepID, err))
	ctxlog.FromContext(ctx).Warn("Dropped partition that failed to flush.",
		"collection", table, "step", p.StepID, "type", p.Type, "count", count, "error", err)
}

type failedBucket[T any] struct {
	graphbuffer.Bucket[T]
	err error
}

// writeBuckets inserts every bucket in one transaction, each under its own
// savepoint. A bucket that fails is rolled back alone and returned in
// failed; if the transaction itself fails, every bucket is.
func writeBuckets[T any](ctx context.Context, db *sql.DB, table string, buckets []graphbuffer.Bucket[T], ident func(T) (key, typ string)) (written []T, failed []failedBucket[T]) {
	failAll := func(err error) ([]T, []failedBucket[T]) {
		all := make([]failedBucket[T], 0, len(buckets))
		for _, b := range buckets {
			all = append(all, failedBucket[T]{Bucket: b, err: err})
		}
		return nil, all
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return failAll(fmt.Errorf("beginning %s flush: %w", table, err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" (key, type, step_id, body) VALUES (?, ?, ?, ?)")
	if err != nil {
		return failAll(err)
	}
	defer stmt.Close()

	for _, b := range buckets {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT bucket"); err != nil {
			return failAll(err)
		}
		if err := insertBucket(ctx, stmt, table, b, ident); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO bucket"); rbErr != nil {
				return failAll(rbErr)
			}
			failed = append(failed, failedBucket[T]{Bucket: b, err: err})
		} else {
			written = append(written, b.Items...)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE bucket"); err != nil {
			return failAll(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return failAll(fmt.Errorf("committing %s flush: %w", table, err))
	}
	return written, failed
}

func insertBucket[T any](ctx context.Context, stmt *sql.Stmt, table string, b graphbuffer.Bucket[T], ident func(T) (key, typ string)) error {
	for _, item := range b.Items {
		key, typ := ident(item)
		body, err := jsonAPI.Marshal(item)
		if err != nil {
			return fmt.Errorf("encoding %q: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, key, typ, b.Partition.StepID, body); err != nil {
			if isPrimaryKeyConflict(err) {
				return &keytracker.DuplicateKeyError{Key: key, Collection: table}
			}
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

// isPrimaryKeyConflict matches only key collisions; other constraint
// failures such as NOT NULL are ordinary errors.
func isPrimaryKeyConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
