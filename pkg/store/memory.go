package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Gateway used for tests and ephemeral deployments.
// Documents are deep-copied on the way in and out so callers never share
// state with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	order       map[string][]string // insertion order per collection
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		collections: map[string]map[string]Document{},
		order:       map[string][]string{},
	}
}

func (m *Memory) Find(ctx context.Context, collection string, query Query, options *FindOptions) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []Document
	for _, id := range m.order[collection] {
		doc := m.collections[collection][id]
		if Match(doc, query) {
			docs = append(docs, deepCopy(doc).(Document))
		}
	}
	return applyFindOptions(docs, options), nil
}

func (m *Memory) Count(ctx context.Context, collection string, query Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, doc := range m.collections[collection] {
		if Match(doc, query) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := deepCopy(doc).(Document)
	id := DocumentID(stored)
	if id == "" {
		id = NewID()
		stored["_id"] = id
	}
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Document{}
	}
	if _, exists := m.collections[collection][id]; !exists {
		m.order[collection] = append(m.order[collection], id)
	}
	m.collections[collection][id] = stored
	return deepCopy(stored).(Document), nil
}

func (m *Memory) Read(ctx context.Context, collection string, query Query) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order[collection] {
		doc := m.collections[collection][id]
		if Match(doc, query) {
			return deepCopy(doc).(Document), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Update(ctx context.Context, collection string, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := DocumentID(doc)
	if id == "" {
		return nil, ErrInvalidID
	}
	if _, exists := m.collections[collection][id]; !exists {
		return nil, ErrNotFound
	}
	stored := deepCopy(doc).(Document)
	m.collections[collection][id] = stored
	return deepCopy(stored).(Document), nil
}

func (m *Memory) Delete(ctx context.Context, collection string, query Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.order[collection][:0]
	deleted := false
	for _, id := range m.order[collection] {
		doc := m.collections[collection][id]
		if !deleted && Match(doc, query) {
			delete(m.collections[collection], id)
			deleted = true
			continue
		}
		remaining = append(remaining, id)
	}
	m.order[collection] = remaining
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) GetCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) CreateCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collections[name] == nil {
		m.collections[name] = map[string]Document{}
	}
	return nil
}

func (m *Memory) CreateIndex(ctx context.Context, collection string, field string, options *IndexOptions) error {
	// Indexes are a persistence hint; the in-memory store scans.
	return nil
}

// applyFindOptions sorts, pages, and projects a result set in place.
func applyFindOptions(docs []Document, options *FindOptions) []Document {
	if options == nil {
		return docs
	}
	if len(options.Sort) > 0 {
		// Stable sort so equal keys keep insertion order.
		fields := make([]string, 0, len(options.Sort))
		for field := range options.Sort {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		sort.SliceStable(docs, func(i, j int) bool {
			for _, field := range fields {
				a, _ := GetPath(docs[i], field)
				b, _ := GetPath(docs[j], field)
				cmp := compareForSort(a, b)
				if cmp == 0 {
					continue
				}
				if options.Sort[field] < 0 {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	if options.Skip > 0 {
		if options.Skip >= len(docs) {
			return nil
		}
		docs = docs[options.Skip:]
	}
	if options.Limit > 0 && options.Limit < len(docs) {
		docs = docs[:options.Limit]
	}
	if len(options.Projection) > 0 {
		for i, doc := range docs {
			docs[i] = project(doc, options.Projection)
		}
	}
	return docs
}

func compareForSort(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func project(doc Document, projection map[string]int) Document {
	include := false
	for _, v := range projection {
		if v > 0 {
			include = true
			break
		}
	}
	out := Document{}
	if include {
		for field, v := range projection {
			if v <= 0 {
				continue
			}
			if value, ok := GetPath(doc, field); ok {
				SetPath(out, field, value)
			}
		}
		if id, ok := doc["_id"]; ok {
			out["_id"] = id
		}
		return out
	}
	for key, value := range doc {
		if projection[key] < 0 {
			continue
		}
		out[key] = value
	}
	return out
}

// deepCopy clones maps and slices; scalar values (including time.Time) are
// shared, which is safe because the pipeline never mutates them in place.
func deepCopy(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, item := range typed {
			out[k] = deepCopy(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
