package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*CachedGateway, *Memory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	inner := NewMemory()
	return NewCachedGateway(inner, client, time.Minute), inner, mr
}

func TestCachedReadByID(t *testing.T) {
	ctx := context.Background()
	gw, inner, mr := newTestCache(t)

	created, err := gw.Create(ctx, "forms", Document{"title": "Contact"})
	require.NoError(t, err)
	id := DocumentID(created)

	// First read populates the cache.
	doc, err := gw.Read(ctx, "forms", Query{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, "Contact", doc["title"])
	assert.True(t, mr.Exists(cacheKey("forms", id)))

	// A stale backend no longer matters once the copy is cached.
	require.NoError(t, inner.Delete(ctx, "forms", Query{"_id": id}))
	doc, err = gw.Read(ctx, "forms", Query{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, "Contact", doc["title"])
}

func TestCachedReadBypassesNonIDQueries(t *testing.T) {
	ctx := context.Background()
	gw, _, mr := newTestCache(t)

	created, err := gw.Create(ctx, "forms", Document{"title": "Contact", "path": "contact"})
	require.NoError(t, err)

	doc, err := gw.Read(ctx, "forms", Query{"path": "contact"})
	require.NoError(t, err)
	assert.Equal(t, DocumentID(created), DocumentID(doc))
	assert.False(t, mr.Exists(cacheKey("forms", DocumentID(created))))
}

func TestCachedUpdateInvalidates(t *testing.T) {
	ctx := context.Background()
	gw, _, mr := newTestCache(t)

	created, err := gw.Create(ctx, "forms", Document{"title": "Contact"})
	require.NoError(t, err)
	id := DocumentID(created)

	_, err = gw.Read(ctx, "forms", Query{"_id": id})
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey("forms", id)))

	created["title"] = "Renamed"
	_, err = gw.Update(ctx, "forms", created)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cacheKey("forms", id)))

	doc, err := gw.Read(ctx, "forms", Query{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", doc["title"])
}

func TestCachedDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	gw, _, mr := newTestCache(t)

	created, err := gw.Create(ctx, "forms", Document{"title": "Contact"})
	require.NoError(t, err)
	id := DocumentID(created)

	_, err = gw.Read(ctx, "forms", Query{"_id": id})
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey("forms", id)))

	require.NoError(t, gw.Delete(ctx, "forms", Query{"_id": id}))
	assert.False(t, mr.Exists(cacheKey("forms", id)))

	_, err = gw.Read(ctx, "forms", Query{"_id": id})
	assert.ErrorIs(t, err, ErrNotFound)
}
