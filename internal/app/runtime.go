package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/graphjob/internal/config"
	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/datastore"
	"github.com/specialistvlad/graphjob/internal/fsgraph"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/jobstate"
	"github.com/specialistvlad/graphjob/internal/keytracker"
	"github.com/specialistvlad/graphjob/internal/memgraph"
	"github.com/specialistvlad/graphjob/internal/metrics"
	"github.com/specialistvlad/graphjob/internal/sqlgraph"
	"github.com/specialistvlad/graphjob/internal/sqlitedb"
	"github.com/specialistvlad/graphjob/internal/typetracker"
)

// Files and directories owned by a run inside the working directory.
const (
	graphDBFile = "graph.db"
	keysDBFile  = "keys.db"
)

// runtime holds the per-run collaborators and knows how to release them.
type runtime struct {
	shared  *jobstate.Shared
	metrics *metrics.Recorder
	closers []func() error
}

func (r *runtime) close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// resetWorkingDir removes the artifacts of a previous run.
func resetWorkingDir(dir string) error {
	for _, name := range []string{"graph", "index", graphDBFile, keysDBFile, SummaryFile, MetricsFile} {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("cleaning %s: %w", name, err)
		}
	}
	return os.MkdirAll(dir, 0o755)
}

func (a *App) openRuntime(ctx context.Context) (_ *runtime, err error) {
	logger := ctxlog.FromContext(ctx)
	run := a.config.Run
	rt := &runtime{}
	defer func() {
		if err != nil {
			_ = rt.close()
		}
	}()

	if err := resetWorkingDir(run.WorkingDir); err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx, rt)
	if err != nil {
		return nil, err
	}

	keysDB, err := sqlitedb.Open(ctx, filepath.Join(run.WorkingDir, keysDBFile))
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, keysDB.Close)

	entityKeys, err := newKeyTracker(ctx, keysDB, "entity_keys", "entities", run)
	if err != nil {
		return nil, err
	}
	relationshipKeys, err := newKeyTracker(ctx, keysDB, "relationship_keys", "relationships", run)
	if err != nil {
		return nil, err
	}

	rt.metrics, err = metrics.New()
	if err != nil {
		return nil, err
	}

	rt.shared = &jobstate.Shared{
		Store:            store,
		EntityKeys:       entityKeys,
		RelationshipKeys: relationshipKeys,
		Types:            typetracker.New(),
		Data:             datastore.New(),
		Observer:         rt.metrics,
	}
	logger.Debug("Run runtime ready.", "store", run.Store, "workingDir", run.WorkingDir)
	return rt, nil
}

func (a *App) openStore(ctx context.Context, rt *runtime) (graphstore.Store, error) {
	run := a.config.Run
	var store graphstore.Store

	switch run.Store {
	case config.StoreMemory:
		store = memgraph.New()
	case config.StoreFilesystem:
		s, err := fsgraph.New(fsgraph.Options{Root: run.WorkingDir, BufferThreshold: run.BufferThreshold})
		if err != nil {
			return nil, err
		}
		store = s
	case config.StoreSQLite:
		db, err := sqlitedb.Open(ctx, filepath.Join(run.WorkingDir, graphDBFile))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		s, err := sqlgraph.New(ctx, db, sqlgraph.Options{BufferThreshold: run.BufferThreshold})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unsupported store %q", run.Store)
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

func newKeyTracker(ctx context.Context, db *sql.DB, table, collection string, run config.Run) (*keytracker.Tracker, error) {
	tier, err := keytracker.NewSQLiteTier(ctx, db, table)
	if err != nil {
		return nil, err
	}
	opts := keytracker.Options{
		Collection:  collection,
		MemoryLimit: run.KeyMemoryLimit,
		Disk:        tier,
	}
	if run.NormalizeKeys {
		opts.Normalize = strings.ToLower
	}
	return keytracker.New(opts), nil
}
