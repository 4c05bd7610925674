package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEquality(t *testing.T) {
	doc := Document{"type": "form", "priority": 10}

	assert.True(t, Match(doc, Query{"type": "form"}))
	assert.False(t, Match(doc, Query{"type": "resource"}))
	assert.True(t, Match(doc, Query{"type": "form", "priority": 10}))
	assert.False(t, Match(doc, Query{"type": "form", "priority": 11}))

	// Numeric equality normalizes int and float forms.
	assert.True(t, Match(doc, Query{"priority": float64(10)}))
}

func TestMatchArrayContains(t *testing.T) {
	doc := Document{"tags": []interface{}{"common", "standalone"}}

	assert.True(t, Match(doc, Query{"tags": "common"}))
	assert.False(t, Match(doc, Query{"tags": "missing"}))
}

func TestMatchDottedPath(t *testing.T) {
	doc := Document{
		"data": map[string]interface{}{"email": "jane@example.com"},
	}

	assert.True(t, Match(doc, Query{"data.email": "jane@example.com"}))
	assert.False(t, Match(doc, Query{"data.email": "other@example.com"}))
}

func TestMatchOperators(t *testing.T) {
	doc := Document{"priority": 10, "name": "save"}

	assert.True(t, Match(doc, Query{"priority": map[string]interface{}{"$gt": 5}}))
	assert.False(t, Match(doc, Query{"priority": map[string]interface{}{"$gt": 10}}))
	assert.True(t, Match(doc, Query{"priority": map[string]interface{}{"$gte": 10}}))
	assert.True(t, Match(doc, Query{"priority": map[string]interface{}{"$lt": 11}}))
	assert.True(t, Match(doc, Query{"priority": map[string]interface{}{"$ne": 11}}))
	assert.False(t, Match(doc, Query{"priority": map[string]interface{}{"$ne": 10}}))

	assert.True(t, Match(doc, Query{"name": map[string]interface{}{"$in": []interface{}{"save", "webhook"}}}))
	assert.False(t, Match(doc, Query{"name": map[string]interface{}{"$nin": []interface{}{"save"}}}))

	assert.True(t, Match(doc, Query{"name": map[string]interface{}{"$exists": true}}))
	assert.True(t, Match(doc, Query{"missing": map[string]interface{}{"$exists": false}}))
	assert.False(t, Match(doc, Query{"missing": map[string]interface{}{"$exists": true}}))

	assert.True(t, Match(doc, Query{"name": map[string]interface{}{"$regex": "(?i)^SA"}}))
	assert.False(t, Match(doc, Query{"name": map[string]interface{}{"$regex": "^x"}}))
}

func TestMatchOr(t *testing.T) {
	doc := Document{"path": "contact", "name": "contact-form"}

	assert.True(t, Match(doc, Query{"$or": []interface{}{
		Query{"path": "other"},
		Query{"name": "contact-form"},
	}}))
	assert.False(t, Match(doc, Query{"$or": []interface{}{
		Query{"path": "other"},
		Query{"name": "other"},
	}}))
}

func TestMatchLiteralMap(t *testing.T) {
	// A map value without operators is compared as a literal, not as an
	// operator document.
	doc := Document{"settings": map[string]interface{}{"url": "https://example.com"}}

	assert.True(t, Match(doc, Query{"settings": map[string]interface{}{"url": "https://example.com"}}))
	assert.False(t, Match(doc, Query{"settings": map[string]interface{}{"url": "other"}}))
}
