package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Create(ctx, "forms", Document{"title": "Contact"})
	require.NoError(t, err)
	id := DocumentID(created)
	require.NotEmpty(t, id)

	read, err := m.Read(ctx, "forms", Query{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, "Contact", read["title"])

	read["title"] = "Renamed"
	updated, err := m.Update(ctx, "forms", read)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated["title"])

	count, err := m.Count(ctx, "forms", Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, m.Delete(ctx, "forms", Query{"_id": id}))
	_, err = m.Read(ctx, "forms", Query{"_id": id})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "forms", Query{"_id": id}), ErrNotFound)
}

func TestMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	input := Document{"title": "Contact", "tags": []interface{}{"a"}}
	created, err := m.Create(ctx, "forms", input)
	require.NoError(t, err)

	// Mutating the caller's copy must not reach the store.
	input["title"] = "Mutated"
	created["tags"].([]interface{})[0] = "mutated"

	read, err := m.Read(ctx, "forms", Query{"_id": DocumentID(created)})
	require.NoError(t, err)
	assert.Equal(t, "Contact", read["title"])
	assert.Equal(t, "a", read["tags"].([]interface{})[0])
}

func TestMemoryFindOptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, doc := range []Document{
		{"name": "c", "priority": 1},
		{"name": "a", "priority": 3},
		{"name": "b", "priority": 2},
	} {
		_, err := m.Create(ctx, "items", doc)
		require.NoError(t, err)
	}

	docs, err := m.Find(ctx, "items", Query{}, &FindOptions{Sort: map[string]int{"priority": -1}})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0]["name"])
	assert.Equal(t, "b", docs[1]["name"])
	assert.Equal(t, "c", docs[2]["name"])

	docs, err = m.Find(ctx, "items", Query{}, &FindOptions{Sort: map[string]int{"priority": 1}, Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0]["name"])

	// Projection include keeps _id plus the named fields.
	docs, err = m.Find(ctx, "items", Query{"name": "a"}, &FindOptions{Projection: map[string]int{"name": 1}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], "name")
	assert.Contains(t, docs[0], "_id")
	assert.NotContains(t, docs[0], "priority")
}

func TestMemoryInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, name := range []string{"first", "second", "third"} {
		_, err := m.Create(ctx, "items", Document{"name": name})
		require.NoError(t, err)
	}

	docs, err := m.Find(ctx, "items", Query{}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0]["name"])
	assert.Equal(t, "third", docs[2]["name"])
}

func TestMemoryCollections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateCollection(ctx, "forms"))
	require.NoError(t, m.CreateIndex(ctx, "forms", "path", &IndexOptions{Unique: true}))

	names, err := m.GetCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "forms")
}
