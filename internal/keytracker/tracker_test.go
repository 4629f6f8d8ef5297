package keytracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/graphjob/internal/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTier(t *testing.T) *SQLiteTier {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tier, err := NewSQLiteTier(ctx, db, "entity_keys")
	require.NoError(t, err)
	return tier
}

func TestTracker_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	tr := New(Options{Collection: "entities"})

	require.NoError(t, tr.RegisterKey(ctx, "a"))
	err := tr.RegisterKey(ctx, "a")

	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "a", dup.Key)
	assert.Equal(t, "entities", dup.Collection)
	assert.Contains(t, err.Error(), "_key=a")

	ok, err := tr.HasKey(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tr.HasKey(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTracker_Normalize(t *testing.T) {
	ctx := context.Background()
	tr := New(Options{Normalize: strings.ToLower})

	require.NoError(t, tr.RegisterKey(ctx, "User:1"))
	assert.Error(t, tr.RegisterKey(ctx, "user:1"))

	ok, err := tr.HasKey(ctx, "USER:1")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := tr.EncounteredKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"User:1"}}, keys, "original casing is kept")
}

func TestTracker_CheckDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	tr := New(Options{Collection: "entities", Normalize: strings.ToLower})

	require.NoError(t, tr.Check(ctx, "User:1"))
	require.NoError(t, tr.Check(ctx, "User:1"), "checking twice records nothing")
	assert.Equal(t, 0, tr.Len())

	require.NoError(t, tr.RegisterKey(ctx, "User:1"))
	var dup *DuplicateKeyError
	require.ErrorAs(t, tr.Check(ctx, "USER:1"), &dup)
	assert.Equal(t, "USER:1", dup.Key)
	assert.Equal(t, "user:1", tr.Normalized("USER:1"))
}

func TestTracker_SpillsToDisk(t *testing.T) {
	ctx := context.Background()
	tr := New(Options{Collection: "entities", MemoryLimit: 3, Disk: newSQLiteTier(t)})

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RegisterKey(ctx, fmt.Sprintf("k%d", i)))
	}
	assert.Equal(t, 3, tr.Len(), "at the limit nothing is spilled yet")

	require.NoError(t, tr.RegisterKey(ctx, "k3"))
	assert.Equal(t, 0, tr.Len(), "breaching the limit spills the whole memory tier")

	require.NoError(t, tr.RegisterKey(ctx, "k4"))

	for i := 0; i < 5; i++ {
		ok, err := tr.HasKey(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.True(t, ok, "k%d should be found in one of the tiers", i)
	}

	var dup *DuplicateKeyError
	assert.ErrorAs(t, tr.RegisterKey(ctx, "k1"), &dup, "spilled keys are still duplicates")

	keys, err := tr.EncounteredKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"k4"}, {"k0", "k1", "k2", "k3"}}, keys)
}

func TestNewSQLiteTier_RejectsBadTableName(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLiteTier(ctx, db, "keys; DROP TABLE x")
	assert.Error(t, err)
}
