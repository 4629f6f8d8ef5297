// Package storetest holds the behaviour every graphstore.Store backend must
// share, as a reusable test suite.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/keytracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) graphstore.Store

// Entities builds n entities of typ. Property values use the Go types a
// step would naturally produce, so backends have to canonicalize them.
func Entities(typ string, n int) []*graphobject.Entity {
	out := make([]*graphobject.Entity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &graphobject.Entity{
			Key:         fmt.Sprintf("%s:%d", typ, i),
			Type:        typ,
			Class:       []string{"Record"},
			DisplayName: fmt.Sprintf("%s %d", typ, i),
			Properties: map[string]any{
				"index":  i,
				"serial": int64(1<<53) + int64(i) + 1,
				"ratio":  float32(i) + 0.5,
				"active": i%2 == 0,
				"tags":   []string{"a", "b"},
			},
		})
	}
	return out
}

// canonicalEntities is what Entities(typ, n) reads back as.
func canonicalEntities(typ string, n int) []*graphobject.Entity {
	out := make([]*graphobject.Entity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &graphobject.Entity{
			Key:         fmt.Sprintf("%s:%d", typ, i),
			Type:        typ,
			Class:       []string{"Record"},
			DisplayName: fmt.Sprintf("%s %d", typ, i),
			Properties: map[string]any{
				"index":  int64(i),
				"serial": int64(1<<53) + int64(i) + 1,
				"ratio":  float64(i) + 0.5,
				"active": i%2 == 0,
				"tags":   []string{"a", "b"},
			},
		})
	}
	return out
}

// Relationships builds n explicit relationships of typ.
func Relationships(typ string, n int) []*graphobject.Relationship {
	out := make([]*graphobject.Relationship, 0, n)
	for i := 0; i < n; i++ {
		from, to := fmt.Sprintf("from:%d", i), fmt.Sprintf("to:%d", i)
		out = append(out, &graphobject.Relationship{
			Key:           graphobject.GenerateRelationshipKey("HAS", from, to),
			Type:          typ,
			Class:         "HAS",
			FromEntityKey: from,
			ToEntityKey:   to,
		})
	}
	return out
}

// CollectEntities iterates typ sequentially and returns what was seen.
func CollectEntities(t *testing.T, s graphstore.Store, typ string) []*graphobject.Entity {
	t.Helper()
	var got []*graphobject.Entity
	err := s.IterateEntities(context.Background(), graphstore.Filter{Type: typ},
		func(_ context.Context, e *graphobject.Entity) error {
			got = append(got, e)
			return nil
		}, graphstore.IterateOptions{})
	require.NoError(t, err)
	return got
}

func byKey(es []*graphobject.Entity) []*graphobject.Entity {
	out := append([]*graphobject.Entity(nil), es...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Run executes the shared suite against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("round trip", func(t *testing.T) {
		for _, n := range []int{0, 1, 7, 1200} {
			t.Run(fmt.Sprintf("%d entities", n), func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				want := canonicalEntities("acme_user", n)

				require.NoError(t, s.AddEntities(ctx, "step-a", Entities("acme_user", n), nil))
				require.NoError(t, s.Flush(ctx, "step-a", nil, nil))

				got := CollectEntities(t, s, "acme_user")
				if diff := cmp.Diff(byKey(want), byKey(got)); diff != "" {
					t.Errorf("entities mismatch (-want +got):\n%s", diff)
				}
			})
		}
	})

	t.Run("values read back the same before and after a flush", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		want := canonicalEntities("acme_user", 2)[1]
		require.NoError(t, s.AddEntities(ctx, "step-a", Entities("acme_user", 2), nil))

		buffered, err := s.FindEntity(ctx, want.Key)
		require.NoError(t, err)
		if diff := cmp.Diff(want, buffered); diff != "" {
			t.Errorf("buffered entity mismatch (-want +got):\n%s", diff)
		}

		require.NoError(t, s.Flush(ctx, "step-a", nil, nil))
		flushed, err := s.FindEntity(ctx, want.Key)
		require.NoError(t, err)
		if diff := cmp.Diff(want, flushed); diff != "" {
			t.Errorf("flushed entity mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unencodable values are rejected when added", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		bad := Entities("acme_user", 1)
		bad[0].Properties["ratio"] = math.Inf(1)

		err := s.AddEntities(ctx, "step-a", bad, nil)
		require.ErrorIs(t, err, graphobject.ErrInvalidObject)
		require.NoError(t, s.AddEntities(ctx, "step-b", Entities("acme_group", 1), nil))
		require.NoError(t, s.Flush(ctx, "", nil, nil), "nothing unflushable was buffered")

		assert.Empty(t, CollectEntities(t, s, "acme_user"))
		assert.Len(t, CollectEntities(t, s, "acme_group"), 1)
		require.NoError(t, s.AddEntities(ctx, "step-a", Entities("acme_user", 1), nil), "the rejected key stays free")
	})

	t.Run("iteration is filtered by type", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.AddEntities(ctx, "step-a", Entities("acme_user", 3), nil))
		require.NoError(t, s.AddEntities(ctx, "step-b", Entities("acme_group", 2), nil))

		assert.Len(t, CollectEntities(t, s, "acme_user"), 3)
		assert.Len(t, CollectEntities(t, s, "acme_group"), 2)
		assert.Empty(t, CollectEntities(t, s, "acme_missing"))

		err := s.IterateEntities(ctx, graphstore.Filter{}, func(context.Context, *graphobject.Entity) error { return nil }, graphstore.IterateOptions{})
		assert.ErrorIs(t, err, graphstore.ErrEmptyFilter)
	})

	t.Run("buffered and flushed objects are both visible", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		all := Entities("acme_user", 4)
		require.NoError(t, s.AddEntities(ctx, "step-a", all[:2], nil))
		require.NoError(t, s.Flush(ctx, "step-a", nil, nil))
		require.NoError(t, s.AddEntities(ctx, "step-a", all[2:], nil))

		assert.Len(t, CollectEntities(t, s, "acme_user"), 4)
	})

	t.Run("find entity", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		es := Entities("acme_user", 3)
		require.NoError(t, s.AddEntities(ctx, "step-a", es[:1], nil))
		require.NoError(t, s.Flush(ctx, "step-a", nil, nil))
		require.NoError(t, s.AddEntities(ctx, "step-a", es[1:], nil))

		flushed, err := s.FindEntity(ctx, es[0].Key)
		require.NoError(t, err)
		require.NotNil(t, flushed)
		assert.Equal(t, es[0].DisplayName, flushed.DisplayName)

		buffered, err := s.FindEntity(ctx, es[2].Key)
		require.NoError(t, err)
		require.NotNil(t, buffered)
		assert.Equal(t, es[2].Key, buffered.Key)

		missing, err := s.FindEntity(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("storage rejects duplicate keys", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		es := Entities("acme_user", 1)
		require.NoError(t, s.AddEntities(ctx, "step-a", es, nil))
		require.NoError(t, s.Flush(ctx, "step-a", nil, nil))

		err := s.AddEntities(ctx, "step-b", Entities("acme_user", 1), nil)
		if err == nil {
			err = s.Flush(ctx, "step-b", nil, nil)
		}
		var dup *keytracker.DuplicateKeyError
		require.True(t, errors.As(err, &dup), "expected DuplicateKeyError, got %v", err)
		assert.Len(t, CollectEntities(t, s, "acme_user"), 1)
	})

	t.Run("relationships", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		want := Relationships("acme_group_has_user", 5)
		require.NoError(t, s.AddRelationships(ctx, "step-a", want, nil))

		var flushed int
		require.NoError(t, s.Flush(ctx, "step-a", nil, func(_ context.Context, rs []*graphobject.Relationship) error {
			flushed += len(rs)
			return nil
		}))
		assert.Equal(t, 5, flushed)

		var got []*graphobject.Relationship
		require.NoError(t, s.IterateRelationships(ctx, graphstore.Filter{Type: "acme_group_has_user"},
			func(_ context.Context, r *graphobject.Relationship) error {
				got = append(got, r)
				return nil
			}, graphstore.IterateOptions{}))
		sort.Slice(got, func(i, j int) bool { return got[i].Key < got[j].Key })
		sort.Slice(want, func(i, j int) bool { return want[i].Key < want[j].Key })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("relationships mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("flush is idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.AddEntities(ctx, "step-a", Entities("acme_user", 2), nil))

		var calls int
		count := func(_ context.Context, es []*graphobject.Entity) error {
			calls++
			return nil
		}
		require.NoError(t, s.Flush(ctx, "step-a", count, nil))
		require.NoError(t, s.Flush(ctx, "step-a", count, nil))
		assert.Equal(t, 1, calls)
		assert.Len(t, CollectEntities(t, s, "acme_user"), 2)
	})

	t.Run("concurrent iteration", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.AddEntities(ctx, "step-a", Entities("acme_user", 50), nil))
		require.NoError(t, s.Flush(ctx, "step-a", nil, nil))

		var mu sync.Mutex
		seen := make(map[string]bool)
		err := s.IterateEntities(ctx, graphstore.Filter{Type: "acme_user"},
			func(_ context.Context, e *graphobject.Entity) error {
				mu.Lock()
				defer mu.Unlock()
				seen[e.Key] = true
				return nil
			}, graphstore.IterateOptions{Concurrency: 8})
		require.NoError(t, err)
		assert.Len(t, seen, 50)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				typ := fmt.Sprintf("type_%d", w)
				assert.NoError(t, s.AddEntities(ctx, fmt.Sprintf("step-%d", w), Entities(typ, 100), nil))
			}()
		}
		wg.Wait()
		require.NoError(t, s.Flush(ctx, "", nil, nil))
		for w := 0; w < 4; w++ {
			assert.Len(t, CollectEntities(t, s, fmt.Sprintf("type_%d", w)), 100)
		}
	})
}
