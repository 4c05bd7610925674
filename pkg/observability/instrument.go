package observability

import (
	"context"
	"time"

	"github.com/formapi/formapi/pkg/store"
)

// InstrumentedGateway decorates a Gateway with per-operation metrics.
// Collection management calls pass through uncounted; they run once at
// model initialization.
type InstrumentedGateway struct {
	store.Gateway
	metrics *Metrics
}

// InstrumentGateway wraps a gateway so every document operation is recorded
// through ObserveStoreOperation. A nil metrics set returns the gateway
// unwrapped.
func InstrumentGateway(inner store.Gateway, metrics *Metrics) store.Gateway {
	if metrics == nil {
		return inner
	}
	return &InstrumentedGateway{Gateway: inner, metrics: metrics}
}

func (g *InstrumentedGateway) Find(ctx context.Context, collection string, query store.Query, options *store.FindOptions) ([]store.Document, error) {
	start := time.Now()
	docs, err := g.Gateway.Find(ctx, collection, query, options)
	g.metrics.ObserveStoreOperation(collection, "find", err, time.Since(start))
	return docs, err
}

func (g *InstrumentedGateway) Count(ctx context.Context, collection string, query store.Query) (int64, error) {
	start := time.Now()
	count, err := g.Gateway.Count(ctx, collection, query)
	g.metrics.ObserveStoreOperation(collection, "count", err, time.Since(start))
	return count, err
}

func (g *InstrumentedGateway) Create(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	start := time.Now()
	created, err := g.Gateway.Create(ctx, collection, doc)
	g.metrics.ObserveStoreOperation(collection, "create", err, time.Since(start))
	return created, err
}

func (g *InstrumentedGateway) Read(ctx context.Context, collection string, query store.Query) (store.Document, error) {
	start := time.Now()
	doc, err := g.Gateway.Read(ctx, collection, query)
	g.metrics.ObserveStoreOperation(collection, "read", err, time.Since(start))
	return doc, err
}

func (g *InstrumentedGateway) Update(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	start := time.Now()
	updated, err := g.Gateway.Update(ctx, collection, doc)
	g.metrics.ObserveStoreOperation(collection, "update", err, time.Since(start))
	return updated, err
}

func (g *InstrumentedGateway) Delete(ctx context.Context, collection string, query store.Query) error {
	start := time.Now()
	err := g.Gateway.Delete(ctx, collection, query)
	g.metrics.ObserveStoreOperation(collection, "delete", err, time.Since(start))
	return err
}
