// Package model implements the schema-driven document pipeline: defaulting,
// type coercion, read-only enforcement, and validation on the write path,
// the mirrored transformation on the read path, and the CRUD operations
// that surround them.
package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/schema"
	"github.com/formapi/formapi/pkg/store"
)

// Model binds one entity schema to the persistence gateway. All operations
// wait on an initialization gate that ensures the backing collection and
// its declared indexes exist.
type Model struct {
	schema   *schema.Entity
	gw       store.Gateway
	registry *schema.Registry
	log      *observability.Logger

	initOnce sync.Once
	initErr  error
}

// New creates a model for an entity schema.
func New(entity *schema.Entity, gw store.Gateway, registry *schema.Registry, log *observability.Logger) *Model {
	return &Model{
		schema:   entity,
		gw:       gw,
		registry: registry,
		log:      log.WithField("model", entity.Name),
	}
}

// Name is the entity type name ("role", "form", ...).
func (m *Model) Name() string { return m.schema.Name }

// CollectionName is the backing collection.
func (m *Model) CollectionName() string { return m.schema.CollectionName() }

// Schema exposes the entity schema for query coercion and handlers.
func (m *Model) Schema() *schema.Entity { return m.schema }

// ToID converts a value to identifier form, returning it unchanged when it
// does not parse.
func (m *Model) ToID(value interface{}) interface{} {
	if id, err := store.ToID(value); err == nil {
		return id
	}
	return value
}

// init ensures the collection and indexes exist. Runs once per model.
func (m *Model) init(ctx context.Context) error {
	m.initOnce.Do(func() {
		collections, err := m.gw.GetCollections(ctx)
		if err != nil {
			m.initErr = fmt.Errorf("list collections: %w", err)
			return
		}
		exists := false
		for _, name := range collections {
			if name == m.CollectionName() {
				exists = true
				break
			}
		}
		if !exists {
			m.log.Debugf("%s collection doesn't exist. Creating...", m.CollectionName())
			if err := m.gw.CreateCollection(ctx, m.CollectionName()); err != nil {
				m.initErr = fmt.Errorf("create collection %s: %w", m.CollectionName(), err)
				return
			}
		}
		for name, field := range m.schema.Fields {
			if field.Index {
				m.log.Debugf("Ensuring index for %s.%s", m.CollectionName(), name)
				if err := m.gw.CreateIndex(ctx, m.CollectionName(), name, nil); err != nil {
					m.initErr = fmt.Errorf("create index %s.%s: %w", m.CollectionName(), name, err)
					return
				}
			}
		}
		for _, index := range m.schema.Indexes {
			m.log.Debugf("Ensuring extra index for %s.%s", m.CollectionName(), index.Field)
			opts := index.Options
			if err := m.gw.CreateIndex(ctx, m.CollectionName(), index.Field, &opts); err != nil {
				m.initErr = fmt.Errorf("create index %s.%s: %w", m.CollectionName(), index.Field, err)
				return
			}
		}
	})
	return m.initErr
}

// Find returns all documents matching the query, read-path transformed.
func (m *Model) Find(ctx context.Context, query store.Query, options *store.FindOptions) ([]store.Document, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	docs, err := m.gw.Find(ctx, m.CollectionName(), query, options)
	if err != nil {
		return nil, err
	}
	group, ctx := errgroup.WithContext(ctx)
	for i := range docs {
		i := i
		group.Go(func() error {
			loaded, err := m.afterLoad(ctx, docs[i])
			if err != nil {
				return err
			}
			docs[i] = loaded
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// FindOne returns the first match, or store.ErrNotFound.
func (m *Model) FindOne(ctx context.Context, query store.Query) (store.Document, error) {
	docs, err := m.Find(ctx, query, &store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	return docs[0], nil
}

// Count returns the number of matching documents.
func (m *Model) Count(ctx context.Context, query store.Query) (int64, error) {
	if err := m.init(ctx); err != nil {
		return 0, err
	}
	return m.gw.Count(ctx, m.CollectionName(), query)
}

// Create runs the write path against an empty previous document, persists,
// and returns the read-path-transformed result.
func (m *Model) Create(ctx context.Context, input store.Document) (store.Document, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	doc, err := m.beforeSave(ctx, input, store.Document{})
	if err != nil {
		return nil, err
	}
	created, err := m.gw.Create(ctx, m.CollectionName(), doc)
	if err != nil {
		return nil, err
	}
	return m.afterLoad(ctx, created)
}

// Read fetches one document by query, read-path transformed.
func (m *Model) Read(ctx context.Context, query store.Query) (store.Document, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	doc, err := m.gw.Read(ctx, m.CollectionName(), query)
	if err != nil {
		return nil, err
	}
	return m.afterLoad(ctx, doc)
}

// Update reads the current document as the write path's previous baseline
// (read-only enforcement, partial-field semantics), runs the write path,
// persists, and returns the transformed result. The read-then-persist pair
// is two round trips; it is not atomic.
func (m *Model) Update(ctx context.Context, input store.Document) (store.Document, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	previous, err := m.Read(ctx, store.Query{"_id": m.ToID(input["_id"])})
	if err != nil {
		return nil, err
	}
	doc, err := m.beforeSave(ctx, input, previous)
	if err != nil {
		return nil, err
	}
	updated, err := m.gw.Update(ctx, m.CollectionName(), doc)
	if err != nil {
		return nil, err
	}
	return m.afterLoad(ctx, updated)
}

// Delete removes the matched document. Gateway errors propagate unchanged.
func (m *Model) Delete(ctx context.Context, query store.Query) error {
	if err := m.init(ctx); err != nil {
		return err
	}
	return m.gw.Delete(ctx, m.CollectionName(), query)
}

// errCollector gathers per-path failures from concurrent leaf operations.
// The reported error is the one at the lexicographically smallest path so
// multi-field failures surface deterministically.
type errCollector struct {
	mu    sync.Mutex
	paths []string
	errs  map[string]error
}

func newErrCollector() *errCollector {
	return &errCollector{errs: map[string]error{}}
}

func (c *errCollector) add(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.errs[path]; !seen {
		c.paths = append(c.paths, path)
		c.errs[path] = err
	}
}

func (c *errCollector) first() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.paths) == 0 {
		return nil
	}
	sort.Strings(c.paths)
	return c.errs[c.paths[0]]
}

// beforeSave is the write path: pre-save hook, set pass (defaults, read-only
// enforcement, transforms, coercion), then validate pass over the working
// document. Sibling leaves run concurrently; document writes are serialized.
func (m *Model) beforeSave(ctx context.Context, input, previous store.Document) (store.Document, error) {
	var err error
	if m.schema.PreSave != nil {
		input, err = m.schema.PreSave(ctx, input)
		if err != nil {
			return nil, err
		}
	}

	doc := store.CopyDocument(previous)
	if doc == nil {
		doc = store.Document{}
	}

	var mu sync.Mutex
	collector := newErrCollector()

	group, setCtx := errgroup.WithContext(ctx)
	for path, field := range m.schema.Fields {
		path, field := path, field
		group.Go(func() error {
			return schema.Walk(setCtx, path, field, input, doc, m.setField(&mu, collector))
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := collector.first(); err != nil {
		return nil, err
	}

	group, validateCtx := errgroup.WithContext(ctx)
	for path, field := range m.schema.Fields {
		path, field := path, field
		group.Go(func() error {
			return schema.Walk(validateCtx, path, field, doc, doc, m.validateField(collector))
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := collector.first(); err != nil {
		return nil, err
	}

	return doc, nil
}

// setField applies default, read-only, set hook, type coercion, and string
// options to one leaf, then writes the result into the working document.
func (m *Model) setField(mu *sync.Mutex, collector *errCollector) schema.LeafFunc {
	return func(ctx context.Context, path string, field *schema.Field, value interface{}, exists bool, doc store.Document) error {
		if value == nil {
			if field.DefaultFunc != nil {
				value = field.DefaultFunc()
			} else if field.Default != nil {
				value = field.Default
			}
		}

		// Read-only fields keep the previous document's value.
		if field.ReadOnly {
			mu.Lock()
			if prev, ok := store.GetPath(doc, path); ok {
				value = prev
			}
			mu.Unlock()
		}

		if field.Set != "" {
			if setter := m.registry.Setter(field.Set); setter != nil {
				value = setter(value)
			}
		}

		if value != nil {
			coerced, err := coerceValue(path, field, value)
			if err != nil {
				collector.add(path, err)
				return nil
			}
			value = coerced
		}

		if s, ok := value.(string); ok && field.Kind == schema.KindString {
			if field.Lowercase {
				s = strings.ToLower(s)
			}
			if field.Trim {
				s = strings.TrimSpace(s)
			}
			value = s
		}

		if value != nil {
			mu.Lock()
			store.SetPath(doc, path, value)
			mu.Unlock()
		}
		return nil
	}
}

// coerceValue applies the leaf's type. Date, id, and number coercion fail
// soft when LooseType is set (the raw value is kept), hard otherwise.
func coerceValue(path string, field *schema.Field, value interface{}) (interface{}, error) {
	switch field.Kind {
	case schema.KindString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%v", value), nil
		}
		return value, nil

	case schema.KindNumber:
		if n, ok := coerceNumber(value); ok {
			return n, nil
		}
		if field.LooseType {
			return value, nil
		}
		return nil, &TypeError{Path: path}

	case schema.KindBoolean:
		return truthy(value), nil

	case schema.KindDate:
		if t, ok := coerceDate(value); ok {
			return t, nil
		}
		if field.LooseType {
			return value, nil
		}
		return nil, &TypeError{Path: path}

	case schema.KindID:
		if id, err := store.ToID(value); err == nil {
			return id, nil
		}
		if field.LooseType {
			return value, nil
		}
		return nil, &TypeError{Path: path}

	default:
		// Mixed fields accept any value unchanged.
		return value, nil
	}
}

func coerceNumber(value interface{}) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case nil:
		return false
	}
	return true
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
}

func coerceDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
	case int64:
		return time.UnixMilli(v).UTC(), true
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}

// validateField checks required, enum, and declared validators for one leaf
// of the working document. Validators run in declaration order; the first
// failing message wins for the leaf.
func (m *Model) validateField(collector *errCollector) schema.LeafFunc {
	return func(ctx context.Context, path string, field *schema.Field, value interface{}, exists bool, doc store.Document) error {
		// Explicit zero and false are present values; only nil and the
		// empty string count as absent.
		if field.Required && isAbsent(value) {
			collector.add(path, &ValidationError{Path: path, Message: fmt.Sprintf("'%s' is required", path)})
			return nil
		}

		if value != nil && len(field.Enum) > 0 && !enumContains(field.Enum, value) {
			collector.add(path, &ValidationError{Path: path, Message: fmt.Sprintf("Invalid enumerated option in '%s'", path)})
			return nil
		}

		for _, ref := range field.Validators {
			fn := m.registry.Validator(ref.Name)
			if fn == nil {
				collector.add(path, &ValidationError{Path: path, Message: fmt.Sprintf("unknown validator '%s' on '%s'", ref.Name, path)})
				return nil
			}
			ok, message := fn(ctx, value, doc)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				if message == "" {
					message = ref.Message
				}
				collector.add(path, &ValidationError{Path: path, Message: message})
				return nil
			}
		}
		return nil
	}
}

func isAbsent(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok && s == "" {
		return true
	}
	return false
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, option := range enum {
		if option == value {
			return true
		}
	}
	return false
}

// afterLoad is the read path: nil documents pass through; otherwise a walk
// per top-level path applies get hooks and renders id values back to
// strings for external consumption.
func (m *Model) afterLoad(ctx context.Context, doc store.Document) (store.Document, error) {
	if doc == nil {
		return nil, nil
	}
	input := store.CopyDocument(doc)

	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	for path, field := range m.schema.Fields {
		path, field := path, field
		group.Go(func() error {
			return schema.Walk(ctx, path, field, input, doc, m.getField(&mu))
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Model) getField(mu *sync.Mutex) schema.LeafFunc {
	return func(ctx context.Context, path string, field *schema.Field, value interface{}, exists bool, doc store.Document) error {
		if field.Get != "" {
			if getter := m.registry.Getter(field.Get); getter != nil {
				value = getter(value)
			}
		}

		// Ids render as plain strings externally.
		if field.Kind == schema.KindID && value != nil {
			if _, ok := value.(string); !ok {
				value = fmt.Sprintf("%v", value)
			}
		}

		if value != nil {
			mu.Lock()
			store.SetPath(doc, path, value)
			mu.Unlock()
		}
		return nil
	}
}

// IsNotFound reports whether an error is the gateway's missing-document
// signal.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
