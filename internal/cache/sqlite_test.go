package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/weir/pkg/record"
)

func openTestCache(t *testing.T) *SQLite {
	t.Helper()
	c, err := OpenSQLite(filepath.Join(t.TempDir(), "weir", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func cachedRecord(id, creator string, kind int, createdAt int64, tags [][]string) *record.Record {
	return &record.Record{
		ID: id, Creator: creator, Kind: kind, CreatedAt: createdAt,
		Content: "body of " + id,
		Tags:    tags,
	}
}

func TestSQLitePutAndQuery(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	records := []*record.Record{
		cachedRecord("r1", "pk1", record.KindProject, 100, [][]string{{"d", "proj1"}, {"title", "Alpha"}}),
		cachedRecord("r2", "pk1", record.KindTask, 200, [][]string{{"a", "31933:pk1:proj1"}, {"status", "new"}}),
		cachedRecord("r3", "pk2", record.KindTask, 150, [][]string{{"a", "31933:pk2:proj2"}}),
	}
	for _, r := range records {
		require.NoError(t, c.Put(ctx, r))
	}

	t.Run("empty filter returns everything in timestamp order", func(t *testing.T) {
		got, err := c.Query(ctx, record.Filter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "r1", got[0].ID)
		assert.Equal(t, "r3", got[1].ID)
		assert.Equal(t, "r2", got[2].ID)
	})

	t.Run("filter by author", func(t *testing.T) {
		got, err := c.Query(ctx, record.Filter{Authors: []string{"pk2"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r3", got[0].ID)
	})

	t.Run("filter by kind", func(t *testing.T) {
		got, err := c.Query(ctx, record.Filter{Kinds: []int{record.KindTask}})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("filter by tag", func(t *testing.T) {
		got, err := c.Query(ctx, record.Filter{
			Tags: map[string][]string{"a": {"31933:pk1:proj1"}},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].ID)
	})

	t.Run("combined criteria are ANDed", func(t *testing.T) {
		got, err := c.Query(ctx, record.Filter{
			Authors: []string{"pk1"},
			Kinds:   []int{record.KindTask},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].ID)
	})

	t.Run("no match returns empty", func(t *testing.T) {
		got, err := c.Query(ctx, record.Filter{Authors: []string{"nobody"}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSQLiteRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	original := cachedRecord("r1", "pk1", record.KindProject, 100, [][]string{
		{"d", "proj1"},
		{"title", "Alpha"},
		{"agent", "pk-x", "x", "Agent X"},
	})
	require.NoError(t, c.Put(ctx, original))

	got, err := c.Query(ctx, record.Filter{Authors: []string{"pk1"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, original, got[0], "tags must survive with element order intact")
}

func TestSQLitePutIdempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	r := cachedRecord("r1", "pk1", record.KindProject, 100, [][]string{{"d", "proj1"}})
	require.NoError(t, c.Put(ctx, r))
	require.NoError(t, c.Put(ctx, r))

	got, err := c.Query(ctx, record.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	ctx := context.Background()

	c, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, cachedRecord("r1", "pk1", record.KindProject, 100, nil)))
	require.NoError(t, c.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Query(ctx, record.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestNullCache(t *testing.T) {
	var c Cache = Null{}
	ctx := context.Background()

	assert.NoError(t, c.Put(ctx, cachedRecord("r1", "pk1", record.KindProject, 100, nil)))

	got, err := c.Query(ctx, record.Filter{})
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, c.Close())
}
