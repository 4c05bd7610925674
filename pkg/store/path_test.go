package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPath(t *testing.T) {
	doc := Document{
		"title": "Contact",
		"access": []interface{}{
			map[string]interface{}{
				"type":  "read_all",
				"roles": []interface{}{"r1", "r2"},
			},
		},
		"settings": map[string]interface{}{
			"nested": map[string]interface{}{"value": 42},
		},
	}

	value, ok := GetPath(doc, "title")
	require.True(t, ok)
	assert.Equal(t, "Contact", value)

	value, ok = GetPath(doc, "access[0].type")
	require.True(t, ok)
	assert.Equal(t, "read_all", value)

	value, ok = GetPath(doc, "access[0].roles[1]")
	require.True(t, ok)
	assert.Equal(t, "r2", value)

	value, ok = GetPath(doc, "settings.nested.value")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	_, ok = GetPath(doc, "missing")
	assert.False(t, ok)
	_, ok = GetPath(doc, "access[5].type")
	assert.False(t, ok)
	_, ok = GetPath(doc, "title.nested")
	assert.False(t, ok)
}

func TestSetPath(t *testing.T) {
	doc := Document{}

	SetPath(doc, "title", "Contact")
	assert.Equal(t, "Contact", doc["title"])

	SetPath(doc, "settings.nested.value", 42)
	value, ok := GetPath(doc, "settings.nested.value")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	// Intermediate slices grow to fit the index.
	SetPath(doc, "access[1].type", "read_all")
	list := doc["access"].([]interface{})
	require.Len(t, list, 2)
	assert.Nil(t, list[0])
	value, ok = GetPath(doc, "access[1].type")
	require.True(t, ok)
	assert.Equal(t, "read_all", value)
}

func TestSetPathOverwritesScalarContainers(t *testing.T) {
	doc := Document{"settings": "scalar"}
	SetPath(doc, "settings.value", 1)

	value, ok := GetPath(doc, "settings.value")
	require.True(t, ok)
	assert.Equal(t, 1, value)
}

func TestToID(t *testing.T) {
	id, err := ToID("aaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaa", id)

	minted := NewID()
	assert.Len(t, minted, 32)
	_, err = ToID(minted)
	assert.NoError(t, err)

	_, err = ToID("short")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = ToID("AAAAAAAAAAAAAAAAAAAAAAAA")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = ToID(12345)
	assert.ErrorIs(t, err, ErrInvalidID)
}
