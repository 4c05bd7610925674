// Package template implements project template import and export. A
// template is a JSON object keyed by collection name, each value a mapping
// from machine name to entity definition whose cross-references are machine
// names rather than persisted identifiers.
package template

import (
	"context"
	"fmt"

	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/store"
)

// Maps carries the per-entity-type reference maps built during an import:
// machine name to persisted identifier, keyed by template collection name.
type Maps map[string]map[string]string

// Resolve looks up a machine name across the given collections, in order.
// Values that already look like identifiers pass through unchanged, so a
// template may mix machine names with literal ids.
func (m Maps) Resolve(name string, keys ...string) (string, bool) {
	for _, key := range keys {
		if id, ok := m[key][name]; ok {
			return id, true
		}
	}
	if _, err := store.ToID(name); err == nil {
		return name, true
	}
	return "", false
}

// StructureError reports a template collection that is not map-shaped. It
// is fatal to the entire import.
type StructureError struct {
	Key string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("template entities for '%s' are not valid", e.Key)
}

// Porter defines one import/export phase. Porters run in a fixed order and
// an item may only reference maps of phases that run before its own.
type Porter interface {
	// Key is the template collection this porter owns.
	Key() string
	// Model is the backing persistence model.
	Model() *model.Model
	// CreateOnly porters never update an existing match; it is mapped as-is.
	CreateOnly() bool
	// BuildMap indexes the existing persisted documents by machine name.
	BuildMap(ctx context.Context) (map[string]string, error)
	// Import transforms a raw template item into a persistable document,
	// resolving cross-references against maps. A nil document with a nil
	// error means an unresolvable reference: skip the item, continue the
	// phase.
	Import(item store.Document, maps Maps) (store.Document, error)
	// Export is the inverse transform: identifiers back to machine names.
	Export(doc store.Document, maps Maps) store.Document
	// Query locates an existing document matching the item by machine name
	// or a type-specific natural key.
	Query(doc store.Document) store.Query
	// CleanUp runs after all of the phase's items settle.
	CleanUp(maps Maps)
}

// buildMap is the shared BuildMap implementation: index every persisted
// document of the porter's type that carries a machine name.
func buildMap(ctx context.Context, m *model.Model, query store.Query) (map[string]string, error) {
	docs, err := m.Find(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(docs))
	for _, doc := range docs {
		name, _ := doc["machineName"].(string)
		if name == "" {
			continue
		}
		out[name] = store.DocumentID(doc)
	}
	return out, nil
}

// naturalKeyQuery matches by machine name first, falling back to the given
// secondary keys when the document carries them.
func naturalKeyQuery(doc store.Document, fallbacks ...string) store.Query {
	var or []interface{}
	if name, ok := doc["machineName"].(string); ok && name != "" {
		or = append(or, store.Query{"machineName": name})
	}
	for _, key := range fallbacks {
		if value, ok := doc[key]; ok && value != nil && value != "" {
			or = append(or, store.Query{key: value})
		}
	}
	if len(or) == 0 {
		return store.Query{"machineName": nil}
	}
	if len(or) == 1 {
		return or[0].(store.Query)
	}
	return store.Query{"$or": or}
}

// resolveAccessRules maps role machine names inside access rule lists to
// persisted role identifiers. Unknown names are dropped from the rule
// rather than failing the item.
func resolveAccessRules(doc store.Document, key string, maps Maps) {
	raw, ok := doc[key].([]interface{})
	if !ok {
		return
	}
	for _, item := range raw {
		rule, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		names, ok := rule["roles"].([]interface{})
		if !ok {
			continue
		}
		resolved := make([]interface{}, 0, len(names))
		for _, name := range names {
			text, ok := name.(string)
			if !ok {
				continue
			}
			if id, ok := maps.Resolve(text, "roles"); ok {
				resolved = append(resolved, id)
			}
		}
		rule["roles"] = resolved
	}
}

// unresolveAccessRules is the export inverse: role identifiers back to
// machine names. Identifiers missing from the map export unchanged.
func unresolveAccessRules(doc store.Document, key string, roleNames map[string]string) {
	raw, ok := doc[key].([]interface{})
	if !ok {
		return
	}
	for _, item := range raw {
		rule, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		ids, ok := rule["roles"].([]interface{})
		if !ok {
			continue
		}
		names := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			text, ok := id.(string)
			if !ok {
				continue
			}
			if name, ok := roleNames[text]; ok {
				names = append(names, name)
			} else {
				names = append(names, text)
			}
		}
		rule["roles"] = names
	}
}

// invert flips a machine-name map for export lookups.
func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for name, id := range m {
		out[id] = name
	}
	return out
}
