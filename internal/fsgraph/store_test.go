package fsgraph

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/graphstore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, threshold int) *Store {
	t.Helper()
	s, err := New(Options{Root: t.TempDir(), BufferThreshold: threshold})
	require.NoError(t, err)
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graphstore.Store {
		return newStore(t, 0)
	})
}

func TestStore_ThresholdFlush(t *testing.T) {
	ctx := context.Background()
	const threshold = 10
	s := newStore(t, threshold)
	entities := storetest.Entities("acme_user", threshold)

	var flushedCalls, flushedCount int
	onFlushed := func(_ context.Context, es []*graphobject.Entity) error {
		flushedCalls++
		flushedCount += len(es)
		return nil
	}

	for _, e := range entities[:threshold-1] {
		require.NoError(t, s.AddEntities(ctx, "fetch-users", []*graphobject.Entity{e}, onFlushed))
	}
	assert.Equal(t, 0, s.Flushes(), "threshold-1 entities must not flush")
	buffered, _ := s.Buffered()
	assert.Equal(t, threshold-1, buffered)

	require.NoError(t, s.AddEntities(ctx, "fetch-users", entities[threshold-1:], onFlushed))
	assert.Equal(t, 1, s.Flushes())
	assert.Equal(t, 1, flushedCalls)
	assert.Equal(t, threshold, flushedCount)
	buffered, _ = s.Buffered()
	assert.Zero(t, buffered, "buffer is empty after the flush")

	assert.Len(t, storetest.CollectEntities(t, s, "acme_user"), threshold)
}

func TestStore_ThresholdIsPerCollection(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 3)

	require.NoError(t, s.AddEntities(ctx, "s", storetest.Entities("acme_user", 2), nil))
	require.NoError(t, s.AddRelationships(ctx, "s", storetest.Relationships("acme_user_has_thing", 2), nil))
	assert.Equal(t, 0, s.Flushes())

	e, r := s.Buffered()
	assert.Equal(t, 2, e)
	assert.Equal(t, 2, r)
}

func TestStore_OnDiskLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(Options{Root: root})
	require.NoError(t, err)

	require.NoError(t, s.AddEntities(ctx, "fetch-users", storetest.Entities("acme_user", 2), nil))
	require.NoError(t, s.AddEntities(ctx, "fetch-users", storetest.Entities("acme_group", 1), nil))
	require.NoError(t, s.AddRelationships(ctx, "fetch-users", storetest.Relationships("acme_group_has_user", 1), nil))
	require.NoError(t, s.Flush(ctx, "", nil, nil))

	chunks, err := filepath.Glob(filepath.Join(root, "graph", "fetch-users", "entities", "*.json"))
	require.NoError(t, err)
	assert.Len(t, chunks, 2, "one chunk per (step, _type) partition")

	links, err := filepath.Glob(filepath.Join(root, "index", "entities", "acme_user", "*.json"))
	require.NoError(t, err)
	require.Len(t, links, 1)

	target, err := os.Readlink(links[0])
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(target), "index links are relative")
	assert.True(t, strings.HasPrefix(target, ".."))

	body, err := os.ReadFile(links[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), `{"entities":[`), "got %s", body)

	relLinks, err := filepath.Glob(filepath.Join(root, "index", "relationships", "acme_group_has_user", "*.json"))
	require.NoError(t, err)
	require.Len(t, relLinks, 1)
	body, err = os.ReadFile(relLinks[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), `{"relationships":[`), "got %s", body)
}

func TestStore_RoundTripLargerThanThreshold(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 25)
	want := storetest.Entities("acme_user", 1000)

	for i := 0; i < len(want); i += 7 {
		end := min(i+7, len(want))
		require.NoError(t, s.AddEntities(ctx, "fetch-users", want[i:end], nil))
	}
	require.NoError(t, s.Flush(ctx, "", nil, nil))

	got := storetest.CollectEntities(t, s, "acme_user")
	require.Len(t, got, len(want))
	byKey := make(map[string]*graphobject.Entity, len(got))
	for _, e := range got {
		byKey[e.Key] = e
	}
	for _, e := range want {
		assert.Equal(t, e, byKey[e.Key])
	}
}

func TestStore_RejectsObjectsThatCannotBeWritten(t *testing.T) {
	tests := []struct {
		name   string
		stepID string
		entity *graphobject.Entity
	}{
		{name: "type escapes the index", stepID: "step", entity: &graphobject.Entity{Key: "k", Type: "../escape", Class: []string{"X"}}},
		{name: "type with a slash", stepID: "step", entity: &graphobject.Entity{Key: "k", Type: "acme/user", Class: []string{"X"}}},
		{name: "step id with a slash", stepID: "a/b", entity: &graphobject.Entity{Key: "k", Type: "acme_user", Class: []string{"X"}}},
		{name: "not a number", stepID: "step", entity: &graphobject.Entity{Key: "k", Type: "acme_user", Class: []string{"X"}, Properties: map[string]any{"score": math.NaN()}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, 0)

			err := s.AddEntities(ctx, tc.stepID, []*graphobject.Entity{tc.entity}, nil)
			require.ErrorIs(t, err, graphobject.ErrInvalidObject)

			buffered, _ := s.Buffered()
			assert.Zero(t, buffered, "a rejected batch is not buffered")
			require.NoError(t, s.Flush(ctx, "", nil, nil))

			fixed := &graphobject.Entity{Key: "k", Type: "acme_user", Class: []string{"X"}}
			require.NoError(t, s.AddEntities(ctx, "step", []*graphobject.Entity{fixed}, nil), "the key stays free")
		})
	}
}

func TestStore_FailedPartitionOnlyFailsItsStep(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(Options{Root: root})
	require.NoError(t, err)

	// A file where the step's chunk directory belongs makes every write for it fail.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "graph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "graph", "broken"), nil, 0o644))

	require.NoError(t, s.AddEntities(ctx, "broken", storetest.Entities("acme_user", 2), nil))
	require.NoError(t, s.AddEntities(ctx, "fine", storetest.Entities("acme_group", 2), nil))
	require.NoError(t, s.AddRelationships(ctx, "broken", storetest.Relationships("acme_user_has_group", 1), nil))

	var flushed []string
	onEntities := func(_ context.Context, es []*graphobject.Entity) error {
		for _, e := range es {
			flushed = append(flushed, e.Key)
		}
		return nil
	}
	require.NoError(t, s.Flush(ctx, "fine", onEntities, nil))
	assert.Equal(t, []string{"acme_group:0", "acme_group:1"}, flushed)
	assert.Equal(t, 1, s.Flushes(), "only the entity flush wrote a chunk")

	require.NoError(t, s.Flush(ctx, "fine", nil, nil), "the buffer no longer holds the failed partition")

	err = s.Flush(ctx, "broken", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flushing entities of step broken")
	assert.Contains(t, err.Error(), "flushing relationships of step broken")
	assert.NoError(t, s.Flush(ctx, "broken", nil, nil), "errors are reported once")

	got, err := s.FindEntity(ctx, "acme_user:0")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Len(t, storetest.CollectEntities(t, s, "acme_group"), 2)

	require.NoError(t, s.AddEntities(ctx, "retry", storetest.Entities("acme_user", 1), nil), "dropped keys can be added again")
}

func TestStore_ThresholdFlushReturnsOnlyTheCallersFailures(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(Options{Root: root, BufferThreshold: 3})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "graph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "graph", "broken"), nil, 0o644))

	require.NoError(t, s.AddEntities(ctx, "broken", storetest.Entities("acme_user", 2), nil))
	require.NoError(t, s.AddEntities(ctx, "fine", storetest.Entities("acme_group", 1), nil), "crossing the threshold flushes the other step's partition")

	assert.Error(t, s.AddEntities(ctx, "broken", storetest.Entities("acme_account", 1), nil))
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
