// Package store defines the document persistence gateway used by all models,
// plus the backends that implement it (in-memory, sqlite, postgres) and a
// redis read-through cache that can decorate any of them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Document is a persisted entity instance, addressable by dotted/indexed
// paths such as "access[0].roles".
type Document = map[string]interface{}

// Query is a conventional filter object. Supported operators: $or, $eq,
// $exists, $in, $nin, $regex. Anything else is matched by equality.
type Query = map[string]interface{}

// FindOptions shape pagination and projection for Find calls.
type FindOptions struct {
	Limit      int
	Skip       int
	Sort       map[string]int // field -> 1 (asc) / -1 (desc)
	Projection map[string]int // field -> 1 (include) / -1 (exclude)
}

// IndexOptions configure a collection index.
type IndexOptions struct {
	Unique bool
}

var (
	// ErrNotFound is returned by Read when no document matches the query.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidID is returned by ToID for values that are not a valid
	// identifier shape.
	ErrInvalidID = errors.New("invalid identifier")
)

// Gateway is the persistence interface for document collections. The core
// never assumes a specific storage engine beyond the Query operator set.
type Gateway interface {
	Find(ctx context.Context, collection string, query Query, options *FindOptions) ([]Document, error)
	Count(ctx context.Context, collection string, query Query) (int64, error)
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	Read(ctx context.Context, collection string, query Query) (Document, error)
	Update(ctx context.Context, collection string, doc Document) (Document, error)
	Delete(ctx context.Context, collection string, query Query) error

	GetCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, collection string, field string, options *IndexOptions) error
}

// NewID mints a new document identifier: 32 lowercase hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ToID validates that a value has identifier shape and returns its
// canonical string form. Identifiers are 24 or 32 lowercase hex characters
// (the well-known pseudo-role ids use the 24-character form).
func ToID(value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrInvalidID, value)
	}
	if len(s) != 24 && len(s) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
	}
	return s, nil
}

// CopyDocument deep-copies a document's maps and slices. Scalar values are
// shared; the pipeline never mutates them in place.
func CopyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return deepCopy(doc).(Document)
}

// DocumentID returns the _id of a document, or "" if it has none.
func DocumentID(doc Document) string {
	if doc == nil {
		return ""
	}
	if id, ok := doc["_id"].(string); ok {
		return id
	}
	return ""
}
