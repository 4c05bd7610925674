package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateCollection(context.Background(), "forms"))
	return s
}

func TestSQLiteCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	created, err := s.Create(ctx, "forms", Document{"title": "Contact", "path": "contact"})
	require.NoError(t, err)
	id := DocumentID(created)
	require.NotEmpty(t, id)

	read, err := s.Read(ctx, "forms", Query{"path": "contact"})
	require.NoError(t, err)
	assert.Equal(t, id, DocumentID(read))

	read["title"] = "Renamed"
	updated, err := s.Update(ctx, "forms", read)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated["title"])

	count, err := s.Count(ctx, "forms", Query{"title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, s.Delete(ctx, "forms", Query{"_id": id}))
	_, err = s.Read(ctx, "forms", Query{"_id": id})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpdateErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.Update(ctx, "forms", Document{"title": "no id"})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.Update(ctx, "forms", Document{"_id": NewID(), "title": "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteFindOptions(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for _, doc := range []Document{
		{"title": "b", "priority": 2},
		{"title": "a", "priority": 1},
		{"title": "c", "priority": 3},
	} {
		_, err := s.Create(ctx, "forms", doc)
		require.NoError(t, err)
	}

	docs, err := s.Find(ctx, "forms", Query{}, &FindOptions{Sort: map[string]int{"priority": 1}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["title"])
	assert.Equal(t, "b", docs[1]["title"])
}

func TestSQLiteCollections(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.CreateCollection(ctx, "roles"))
	require.NoError(t, s.CreateIndex(ctx, "forms", "path", &IndexOptions{Unique: true}))

	names, err := s.GetCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "forms")
	assert.Contains(t, names, "roles")
}
