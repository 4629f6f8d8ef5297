package jobstate

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/specialistvlad/graphjob/internal/datastore"
	"github.com/specialistvlad/graphjob/internal/fsgraph"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/graphstore/storetest"
	"github.com/specialistvlad/graphjob/internal/keytracker"
	"github.com/specialistvlad/graphjob/internal/memgraph"
	"github.com/specialistvlad/graphjob/internal/sqlgraph"
	"github.com/specialistvlad/graphjob/internal/sqlitedb"
	"github.com/specialistvlad/graphjob/internal/typetracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	graphstore.Store
	mu    sync.Mutex
	finds int
}

func (c *countingStore) FindEntity(ctx context.Context, key string) (*graphobject.Entity, error) {
	c.mu.Lock()
	c.finds++
	c.mu.Unlock()
	return c.Store.FindEntity(ctx, key)
}

type recordingObserver struct {
	mu      sync.Mutex
	added   map[string]int
	flushed map[string]int
}

func (r *recordingObserver) ObjectsAdded(_, collection string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added[collection] += n
}

func (r *recordingObserver) ObjectsFlushed(collection string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed[collection] += n
}

func newShared(store graphstore.Store) *Shared {
	return &Shared{
		Store:            store,
		EntityKeys:       keytracker.New(keytracker.Options{Collection: "entities"}),
		RelationshipKeys: keytracker.New(keytracker.Options{Collection: "relationships"}),
		Types:            typetracker.New(),
	}
}

func entity(key, typ string) *graphobject.Entity {
	return &graphobject.Entity{Key: key, Type: typ, Class: []string{"Record"}}
}

func TestShared_Validate(t *testing.T) {
	assert.NoError(t, newShared(memgraph.New()).Validate())
	assert.Error(t, (&Shared{}).Validate())
	var nilShared *Shared
	assert.Error(t, nilShared.Validate())
}

func TestJobState_DuplicateKeyIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	js := New("fetch-users", newShared(memgraph.New()))

	first := entity("user:1", "acme_user")
	first.DisplayName = "first"
	_, err := js.AddEntity(ctx, first)
	require.NoError(t, err)

	second := entity("user:1", "acme_user")
	second.DisplayName = "second"
	_, err = js.AddEntity(ctx, second)

	var dup *keytracker.DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "user:1", dup.Key)

	stored := storetest.CollectEntities(t, js.shared.Store, "acme_user")
	require.Len(t, stored, 1)
	assert.Equal(t, "first", stored[0].DisplayName)
}

func TestJobState_DuplicateAcrossSteps(t *testing.T) {
	ctx := context.Background()
	shared := newShared(memgraph.New())

	_, err := New("a", shared).AddEntity(ctx, entity("k", "t"))
	require.NoError(t, err)
	_, err = New("b", shared).AddEntity(ctx, entity("k", "t"))
	var dup *keytracker.DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestJobState_DuplicateKeyAfterSpillToDisk(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	defer db.Close()
	tier, err := keytracker.NewSQLiteTier(ctx, db, "entity_keys")
	require.NoError(t, err)

	shared := newShared(memgraph.New())
	shared.EntityKeys = keytracker.New(keytracker.Options{Collection: "entities", MemoryLimit: 2, Disk: tier})
	js := New("s", shared)

	_, err = js.AddEntities(ctx, storetest.Entities("acme_user", 10))
	require.NoError(t, err)

	_, err = js.AddEntity(ctx, entity("acme_user:0", "acme_user"))
	var dup *keytracker.DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestJobState_BatchStopsAtFirstRejectedObject(t *testing.T) {
	ctx := context.Background()
	js := New("s", newShared(memgraph.New()))

	_, err := js.AddEntities(ctx, []*graphobject.Entity{
		entity("a", "t"), entity("b", "t"), entity("a", "t"), entity("c", "t"),
	})
	require.Error(t, err)

	stored := storetest.CollectEntities(t, js.shared.Store, "t")
	keys := make([]string, 0, len(stored))
	for _, e := range stored {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a", "b"}, keys)

	ok, err := js.HasKey(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobState_RejectsInvalidObjects(t *testing.T) {
	ctx := context.Background()
	js := New("s", newShared(memgraph.New()))

	_, err := js.AddEntity(ctx, &graphobject.Entity{Key: "k", Type: "t"})
	assert.ErrorIs(t, err, graphobject.ErrInvalidObject)

	_, err = js.AddRelationship(ctx, &graphobject.Relationship{Key: "r", Type: "t", Class: "HAS"})
	assert.ErrorIs(t, err, graphobject.ErrInvalidObject)
}

func TestJobState_RejectedObjectLeavesKeyFree(t *testing.T) {
	fileStore := func(t *testing.T) graphstore.Store {
		s, err := fsgraph.New(fsgraph.Options{Root: t.TempDir()})
		require.NoError(t, err)
		return s
	}
	sqliteStore := func(t *testing.T) graphstore.Store {
		db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		s, err := sqlgraph.New(context.Background(), db, sqlgraph.Options{})
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name     string
		newStore func(t *testing.T) graphstore.Store
		bad      *graphobject.Entity
	}{
		{
			name:     "not a number in memory",
			newStore: func(*testing.T) graphstore.Store { return memgraph.New() },
			bad:      &graphobject.Entity{Key: "u1", Type: "acme_user", Class: []string{"User"}, Properties: map[string]any{"score": math.NaN()}},
		},
		{
			name:     "not a number on sqlite",
			newStore: sqliteStore,
			bad:      &graphobject.Entity{Key: "u1", Type: "acme_user", Class: []string{"User"}, Properties: map[string]any{"score": math.NaN()}},
		},
		{
			name:     "type that is not a path segment",
			newStore: fileStore,
			bad:      &graphobject.Entity{Key: "u1", Type: "acme/user", Class: []string{"User"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			shared := newShared(tc.newStore(t))
			js := New("s", shared)

			_, err := js.AddEntity(ctx, tc.bad)
			require.ErrorIs(t, err, graphobject.ErrInvalidObject)

			ok, err := js.HasKey(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, ok, "a rejected object does not claim its key")
			assert.Empty(t, shared.Types.EncounteredTypes("s"))

			_, err = js.AddEntity(ctx, entity("u1", "acme_user"))
			require.NoError(t, err)
			require.NoError(t, js.Flush(ctx))
			found, err := js.FindEntity(ctx, "u1")
			require.NoError(t, err)
			require.NotNil(t, found)
		})
	}
}

func TestJobState_BatchRepeatingNormalizedKey(t *testing.T) {
	ctx := context.Background()
	shared := newShared(memgraph.New())
	shared.EntityKeys = keytracker.New(keytracker.Options{Collection: "entities", Normalize: strings.ToLower})
	js := New("s", shared)

	_, err := js.AddEntities(ctx, []*graphobject.Entity{entity("User:1", "t"), entity("user:1", "t")})
	var dup *keytracker.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "user:1", dup.Key)
	assert.Equal(t, "entities", dup.Collection)

	assert.Len(t, storetest.CollectEntities(t, shared.Store, "t"), 1)
}

func TestJobState_PropertiesAreCanonical(t *testing.T) {
	ctx := context.Background()
	js := New("s", newShared(memgraph.New()))
	e := entity("u1", "acme_user")
	e.Properties = map[string]any{"id": int64(1<<53) + 1, "groups": []string{"a"}, "rank": 3}

	added, err := js.AddEntity(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(1<<53) + 1, "groups": []string{"a"}, "rank": int64(3)}, added.Properties)
}

func TestJobState_TracksEncounteredTypes(t *testing.T) {
	ctx := context.Background()
	shared := newShared(memgraph.New())
	js := New("fetch", shared)

	_, err := js.AddEntities(ctx, []*graphobject.Entity{entity("u1", "acme_user"), entity("g1", "acme_group")})
	require.NoError(t, err)
	_, err = js.AddRelationship(ctx, &graphobject.Relationship{
		Key: "g1|has|u1", Type: "acme_group_has_user", Class: "HAS", FromEntityKey: "g1", ToEntityKey: "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme_group", "acme_group_has_user", "acme_user"}, shared.Types.EncounteredTypes("fetch"))
}

func TestJobState_FindEntity(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memgraph.New()}
	js := New("s", newShared(store))

	_, err := js.AddEntity(ctx, entity("u1", "acme_user"))
	require.NoError(t, err)

	found, err := js.FindEntity(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u1", found.Key)
	assert.Equal(t, 1, store.finds)

	missing, err := js.FindEntity(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, 1, store.finds, "unknown keys short-circuit on the tracker")
}

func TestJobState_HasKeyCoversBothCollections(t *testing.T) {
	ctx := context.Background()
	js := New("s", newShared(memgraph.New()))
	_, err := js.AddRelationship(ctx, &graphobject.Relationship{
		Key: "rel", Type: "t", Class: "HAS", FromEntityKey: "a", ToEntityKey: "b",
	})
	require.NoError(t, err)

	ok, err := js.HasKey(ctx, "rel")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobState_MappedRelationshipIsStoredAsIs(t *testing.T) {
	ctx := context.Background()
	js := New("s", newShared(memgraph.New()))
	rel, err := graphobject.NewMappedRelationship(graphobject.MappedRelationshipOptions{
		Class:  "IS",
		Source: entity("u1", "acme_user"),
		Target: map[string]any{"_type": "google_user", "email": "a@b.c"},
	})
	require.NoError(t, err)

	_, err = js.AddRelationship(ctx, rel)
	require.NoError(t, err)

	var got []*graphobject.Relationship
	require.NoError(t, js.IterateRelationships(ctx, graphstore.Filter{Type: rel.Type},
		func(_ context.Context, r *graphobject.Relationship) error {
			got = append(got, r)
			return nil
		}, graphstore.IterateOptions{}))
	require.Len(t, got, 1)
	assert.Equal(t, rel.Mapping, got[0].Mapping)
}

func TestJobState_Hooks(t *testing.T) {
	ctx := context.Background()
	shared := newShared(memgraph.New())
	shared.BeforeAddEntity = func(_ context.Context, e *graphobject.Entity) (*graphobject.Entity, error) {
		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		e.Properties["tenant"] = "acme"
		return e, nil
	}
	shared.BeforeAddRelationship = func(_ context.Context, r *graphobject.Relationship) (*graphobject.Relationship, error) {
		if strings.HasPrefix(r.Key, "blocked") {
			return nil, errors.New("blocked")
		}
		return r, nil
	}
	js := New("s", shared)

	added, err := js.AddEntity(ctx, entity("u1", "acme_user"))
	require.NoError(t, err)
	assert.Equal(t, "acme", added.Properties["tenant"])

	_, err = js.AddRelationship(ctx, &graphobject.Relationship{
		Key: "blocked-1", Type: "t", Class: "HAS", FromEntityKey: "a", ToEntityKey: "b",
	})
	assert.ErrorContains(t, err, "beforeAddRelationship hook")
}

func TestJobState_Data(t *testing.T) {
	shared := newShared(memgraph.New())
	shared.Data = datastore.New()
	a := New("a", shared)
	b := New("b", shared)

	a.SetData("token", "abc")
	v, ok := b.GetData("token")
	require.True(t, ok, "data written by one step is visible to later steps")
	assert.Equal(t, "abc", v)

	b.DeleteData("token")
	_, ok = a.GetData("token")
	assert.False(t, ok)

	isolated := New("c", newShared(memgraph.New()))
	_, ok = isolated.GetData("token")
	assert.False(t, ok)
}

func TestJobState_FlushThroughFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := fsgraph.New(fsgraph.Options{Root: t.TempDir(), BufferThreshold: 5})
	require.NoError(t, err)

	obs := &recordingObserver{added: map[string]int{}, flushed: map[string]int{}}
	shared := newShared(store)
	shared.Observer = obs
	js := New("s", shared)

	_, err = js.AddEntities(ctx, storetest.Entities("acme_user", 7))
	require.NoError(t, err)
	assert.Equal(t, 7, obs.flushed["entities"], "threshold breach flushes the whole buffer")

	_, err = js.AddEntities(ctx, storetest.Entities("acme_group", 2))
	require.NoError(t, err)
	require.NoError(t, js.Flush(ctx))
	require.NoError(t, js.Flush(ctx))

	assert.Equal(t, 9, obs.added["entities"])
	assert.Equal(t, 9, obs.flushed["entities"])
	buffered, _ := store.Buffered()
	assert.Zero(t, buffered)
}

func TestJobState_FlushFailureStaysWithItsStep(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := fsgraph.New(fsgraph.Options{Root: root})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "graph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "graph", "broken"), nil, 0o644))

	shared := newShared(store)
	broken, fine := New("broken", shared), New("fine", shared)
	_, err = broken.AddEntities(ctx, storetest.Entities("acme_user", 2))
	require.NoError(t, err)
	_, err = fine.AddEntities(ctx, storetest.Entities("acme_group", 2))
	require.NoError(t, err)

	require.NoError(t, fine.Flush(ctx))
	assert.Error(t, broken.Flush(ctx))
	assert.Len(t, storetest.CollectEntities(t, store, "acme_group"), 2)
}
