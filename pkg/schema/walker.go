package schema

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/formapi/formapi/pkg/store"
)

// LeafFunc is invoked for every leaf of a walk with the leaf's path, its
// field schema, and the value found at that path in the input tree. A leaf
// operation sees only its own scalar value and must not depend on sibling
// ordering; siblings run concurrently.
type LeafFunc func(ctx context.Context, path string, field *Field, value interface{}, exists bool, out store.Document) error

// Walk traverses a field schema and an input data tree in lock-step. Array
// fields recurse per element with an index-extended path; object fields
// recurse per named child with a dotted path; every other kind is a leaf.
// Sibling invocations at the same nesting level run concurrently and the
// walk returns only after all of them settle.
func Walk(ctx context.Context, path string, field *Field, input, out store.Document, op LeafFunc) error {
	switch field.Kind {
	case KindArray:
		if field.Items == nil {
			return fmt.Errorf("array field %q has no element schema", path)
		}
		value, _ := store.GetPath(input, path)
		elements, _ := value.([]interface{})
		group, ctx := errgroup.WithContext(ctx)
		for index := range elements {
			elemPath := fmt.Sprintf("%s[%d]", path, index)
			if field.Items.Kind == KindObject {
				for name, child := range field.Items.Fields {
					group.Go(walkFunc(ctx, elemPath+"."+name, child, input, out, op))
				}
			} else {
				group.Go(walkFunc(ctx, elemPath, field.Items, input, out, op))
			}
		}
		return group.Wait()

	case KindObject:
		group, ctx := errgroup.WithContext(ctx)
		for name, child := range field.Fields {
			group.Go(walkFunc(ctx, path+"."+name, child, input, out, op))
		}
		return group.Wait()

	default:
		value, exists := store.GetPath(input, path)
		return op(ctx, path, field, value, exists, out)
	}
}

func walkFunc(ctx context.Context, path string, field *Field, input, out store.Document, op LeafFunc) func() error {
	return func() error {
		return Walk(ctx, path, field, input, out, op)
	}
}
