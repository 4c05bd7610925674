package schema

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formapi/formapi/pkg/store"
)

// collectPaths runs a walk that records every leaf path it visits.
func collectPaths(t *testing.T, field *Field, input store.Document) []string {
	t.Helper()
	var mu sync.Mutex
	var paths []string
	err := Walk(context.Background(), "data", field, input, store.Document{},
		func(ctx context.Context, path string, f *Field, value interface{}, exists bool, out store.Document) error {
			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	sort.Strings(paths)
	return paths
}

func TestWalkScalarLeaf(t *testing.T) {
	paths := collectPaths(t, Scalar(KindString), store.Document{"data": "hello"})
	assert.Equal(t, []string{"data"}, paths)
}

func TestWalkObjectRecursion(t *testing.T) {
	field := Object(map[string]*Field{
		"name": Scalar(KindString),
		"address": Object(map[string]*Field{
			"city": Scalar(KindString),
			"zip":  Scalar(KindString),
		}),
	})
	input := store.Document{"data": map[string]interface{}{
		"name":    "Ada",
		"address": map[string]interface{}{"city": "London", "zip": "EC1"},
	}}
	paths := collectPaths(t, field, input)
	assert.Equal(t, []string{"data.address.city", "data.address.zip", "data.name"}, paths)
}

func TestWalkArrayIndexedPaths(t *testing.T) {
	field := Array(Scalar(KindString))
	input := store.Document{"data": []interface{}{"a", "b", "c"}}
	paths := collectPaths(t, field, input)
	assert.Equal(t, []string{"data[0]", "data[1]", "data[2]"}, paths)
}

func TestWalkArrayOfObjects(t *testing.T) {
	field := Array(Object(map[string]*Field{
		"type":  Scalar(KindString),
		"roles": Array(Scalar(KindID)),
	}))
	input := store.Document{"data": []interface{}{
		map[string]interface{}{"type": "create_all", "roles": []interface{}{"a", "b"}},
		map[string]interface{}{"type": "read_all"},
	}}
	paths := collectPaths(t, field, input)
	// An absent nested array yields no element leaves.
	assert.Equal(t, []string{
		"data[0].roles[0]", "data[0].roles[1]", "data[0].type",
		"data[1].type",
	}, paths)
}

func TestWalkMissingLeafReportsAbsence(t *testing.T) {
	field := Object(map[string]*Field{"name": Scalar(KindString)})
	var sawExists bool
	err := Walk(context.Background(), "data", field, store.Document{}, store.Document{},
		func(ctx context.Context, path string, f *Field, value interface{}, exists bool, out store.Document) error {
			sawExists = exists
			return nil
		})
	require.NoError(t, err)
	assert.False(t, sawExists)
}

func TestWalkSiblingErrorStopsWalk(t *testing.T) {
	field := Object(map[string]*Field{
		"good": Scalar(KindString),
		"bad":  Scalar(KindString),
	})
	boom := errors.New("boom")
	err := Walk(context.Background(), "data", field, store.Document{"data": map[string]interface{}{}}, store.Document{},
		func(ctx context.Context, path string, f *Field, value interface{}, exists bool, out store.Document) error {
			if path == "data.bad" {
				return boom
			}
			return nil
		})
	assert.ErrorIs(t, err, boom)
}

func TestWalkArrayWithoutItemsFails(t *testing.T) {
	field := &Field{Kind: KindArray}
	err := Walk(context.Background(), "data", field, store.Document{"data": []interface{}{"x"}}, store.Document{}, nil)
	assert.Error(t, err)
}

func TestWalkWritesThroughOut(t *testing.T) {
	field := Object(map[string]*Field{
		"name": Scalar(KindString),
		"tags": Array(Scalar(KindString)),
	})
	input := store.Document{"data": map[string]interface{}{
		"name": "Ada",
		"tags": []interface{}{"x", "y"},
	}}
	out := store.Document{}
	var mu sync.Mutex
	err := Walk(context.Background(), "data", field, input, out,
		func(ctx context.Context, path string, f *Field, value interface{}, exists bool, o store.Document) error {
			if exists {
				mu.Lock()
				store.SetPath(o, path, value)
				mu.Unlock()
			}
			return nil
		})
	require.NoError(t, err)
	got, ok := store.GetPath(out, "data.name")
	require.True(t, ok)
	assert.Equal(t, "Ada", got)
	got, ok = store.GetPath(out, "data.tags[1]")
	require.True(t, ok)
	assert.Equal(t, "y", got)
}
