package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedGateway decorates a Gateway with a redis read-through cache for
// single-document reads by _id. Everything else passes through, and writes
// invalidate the cached copy before hitting the backend.
type CachedGateway struct {
	Gateway
	client *redis.Client
	ttl    time.Duration
}

// NewCachedGateway wraps a gateway with a redis cache.
func NewCachedGateway(inner Gateway, client *redis.Client, ttl time.Duration) *CachedGateway {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedGateway{Gateway: inner, client: client, ttl: ttl}
}

func cacheKey(collection, id string) string {
	return "formapi:doc:" + collection + ":" + id
}

func (c *CachedGateway) Read(ctx context.Context, collection string, query Query) (Document, error) {
	id := cacheableID(query)
	if id == "" {
		return c.Gateway.Read(ctx, collection, query)
	}

	if raw, err := c.client.Get(ctx, cacheKey(collection, id)).Bytes(); err == nil {
		var doc Document
		if err := json.Unmarshal(raw, &doc); err == nil {
			return doc, nil
		}
	}

	doc, err := c.Gateway.Read(ctx, collection, query)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(doc); err == nil {
		// Cache population is best-effort.
		c.client.Set(ctx, cacheKey(collection, id), raw, c.ttl)
	}
	return doc, nil
}

func (c *CachedGateway) Update(ctx context.Context, collection string, doc Document) (Document, error) {
	if id := DocumentID(doc); id != "" {
		c.client.Del(ctx, cacheKey(collection, id))
	}
	return c.Gateway.Update(ctx, collection, doc)
}

func (c *CachedGateway) Delete(ctx context.Context, collection string, query Query) error {
	if id := cacheableID(query); id != "" {
		c.client.Del(ctx, cacheKey(collection, id))
	} else if doc, err := c.Gateway.Read(ctx, collection, query); err == nil {
		c.client.Del(ctx, cacheKey(collection, DocumentID(doc)))
	}
	return c.Gateway.Delete(ctx, collection, query)
}

// cacheableID extracts the _id from a query that pins exactly one document
// by identifier; any other query shape bypasses the cache.
func cacheableID(query Query) string {
	if len(query) != 1 {
		return ""
	}
	id, _ := query["_id"].(string)
	return id
}
