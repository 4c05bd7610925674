package schema

import (
	"context"

	"github.com/formapi/formapi/pkg/store"
)

// Index describes an extra, non-per-field collection index.
type Index struct {
	Field   string
	Options store.IndexOptions
}

// PreSaveFunc is an entity-specific normalization hook applied to the raw
// input before the set pass runs.
type PreSaveFunc func(ctx context.Context, input store.Document) (store.Document, error)

// Entity is the schema for one entity type: a mapping of field name to
// field schema plus extra indexes and an optional pre-save hook.
type Entity struct {
	Name    string
	Fields  map[string]*Field
	Indexes []Index
	PreSave PreSaveFunc
}

// CollectionName is the backing collection for this entity type.
func (e *Entity) CollectionName() string {
	return e.Name + "s"
}

// Field returns the named top-level field, or nil.
func (e *Entity) Field(name string) *Field {
	return e.Fields[name]
}
