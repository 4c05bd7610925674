package template

import (
	"context"

	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/store"
)

// Porters returns the phase order for imports: roles first, then the form
// variants, then everything that references them. Exports walk the same
// order.
func Porters(models map[string]*model.Model, everyone string) []Porter {
	return []Porter{
		&RolePorter{model: models["role"], everyone: everyone},
		&ResourcePorter{FormPorter{model: models["form"], key: "resources", formType: "resource"}},
		&FormPorter{model: models["form"], key: "forms", formType: "form"},
		&ActionPorter{model: models["action"]},
		&SubmissionPorter{model: models["submission"]},
		&ActionItemPorter{model: models["actionItem"]},
	}
}

// RolePorter imports roles. Its cleanup injects the well-known "everyone"
// pseudo-role into the map so later phases may reference it by name even
// though it is never persisted.
type RolePorter struct {
	model    *model.Model
	everyone string
}

func (p *RolePorter) Key() string         { return "roles" }
func (p *RolePorter) Model() *model.Model { return p.model }
func (p *RolePorter) CreateOnly() bool    { return false }

func (p *RolePorter) BuildMap(ctx context.Context) (map[string]string, error) {
	return buildMap(ctx, p.model, store.Query{})
}

func (p *RolePorter) Import(item store.Document, maps Maps) (store.Document, error) {
	return store.CopyDocument(item), nil
}

func (p *RolePorter) Export(doc store.Document, maps Maps) store.Document {
	out := store.CopyDocument(doc)
	delete(out, "_id")
	delete(out, "created")
	delete(out, "modified")
	delete(out, "machineName")
	return out
}

func (p *RolePorter) Query(doc store.Document) store.Query {
	return naturalKeyQuery(doc, "title")
}

func (p *RolePorter) CleanUp(maps Maps) {
	maps["roles"]["everyone"] = p.everyone
}

// FormPorter imports forms; ResourcePorter reuses it with the resource
// variant so resources settle before the forms that may reference them.
type FormPorter struct {
	model    *model.Model
	key      string
	formType string
}

func (p *FormPorter) Key() string         { return p.key }
func (p *FormPorter) Model() *model.Model { return p.model }
func (p *FormPorter) CreateOnly() bool    { return false }

func (p *FormPorter) BuildMap(ctx context.Context) (map[string]string, error) {
	return buildMap(ctx, p.model, store.Query{"type": p.formType})
}

func (p *FormPorter) Import(item store.Document, maps Maps) (store.Document, error) {
	doc := store.CopyDocument(item)
	doc["type"] = p.formType
	resolveAccessRules(doc, "access", maps)
	resolveAccessRules(doc, "submissionAccess", maps)
	resolveComponents(doc, maps)
	return doc, nil
}

func (p *FormPorter) Export(doc store.Document, maps Maps) store.Document {
	out := store.CopyDocument(doc)
	delete(out, "_id")
	delete(out, "created")
	delete(out, "modified")
	delete(out, "machineName")
	delete(out, "owner")
	roleNames := invert(maps["roles"])
	unresolveAccessRules(out, "access", roleNames)
	unresolveAccessRules(out, "submissionAccess", roleNames)
	return out
}

func (p *FormPorter) Query(doc store.Document) store.Query {
	query := naturalKeyQuery(doc, "name", "path")
	query["type"] = p.formType
	return query
}

func (p *FormPorter) CleanUp(maps Maps) {}

// ResourcePorter is the resource-typed form phase.
type ResourcePorter struct {
	FormPorter
}

// resolveComponents rewrites resource references embedded in form
// components: a component whose `resource` is a machine name becomes the
// persisted resource identifier. Components are free-form so unknown
// shapes pass through untouched.
func resolveComponents(doc store.Document, maps Maps) {
	components, ok := doc["components"].([]interface{})
	if !ok {
		return
	}
	var walk func(items []interface{})
	walk = func(items []interface{}) {
		for _, item := range items {
			component, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if name, ok := component["resource"].(string); ok && name != "" {
				if id, ok := maps.Resolve(name, "resources", "forms"); ok {
					component["resource"] = id
				}
			}
			if nested, ok := component["components"].([]interface{}); ok {
				walk(nested)
			}
		}
	}
	walk(components)
}

// ActionPorter imports actions. An action's `form` reference must resolve
// to an already-imported form or resource; an unresolvable reference skips
// the item.
type ActionPorter struct {
	model *model.Model
}

func (p *ActionPorter) Key() string         { return "actions" }
func (p *ActionPorter) Model() *model.Model { return p.model }
func (p *ActionPorter) CreateOnly() bool    { return false }

func (p *ActionPorter) BuildMap(ctx context.Context) (map[string]string, error) {
	return buildMap(ctx, p.model, store.Query{})
}

func (p *ActionPorter) Import(item store.Document, maps Maps) (store.Document, error) {
	name, _ := item["form"].(string)
	if name == "" {
		name, _ = item["entity"].(string)
	}
	id, ok := maps.Resolve(name, "forms", "resources")
	if !ok {
		return nil, nil
	}
	doc := store.CopyDocument(item)
	delete(doc, "form")
	doc["entity"] = id
	resolveRoleSettings(doc, maps)
	return doc, nil
}

func (p *ActionPorter) Export(doc store.Document, maps Maps) store.Document {
	out := store.CopyDocument(doc)
	delete(out, "_id")
	delete(out, "created")
	delete(out, "modified")
	delete(out, "machineName")
	if id, ok := out["entity"].(string); ok {
		for _, key := range []string{"forms", "resources"} {
			if name, found := invert(maps[key])[id]; found {
				out["form"] = name
				delete(out, "entity")
				break
			}
		}
	}
	return out
}

func (p *ActionPorter) Query(doc store.Document) store.Query {
	name, _ := doc["machineName"].(string)
	return store.Query{"machineName": name}
}

func (p *ActionPorter) CleanUp(maps Maps) {}

// resolveRoleSettings maps a role machine name inside action settings (the
// role-assignment action stores one) to its identifier.
func resolveRoleSettings(doc store.Document, maps Maps) {
	settings, ok := doc["settings"].(map[string]interface{})
	if !ok {
		return
	}
	if name, ok := settings["role"].(string); ok && name != "" {
		if id, found := maps.Resolve(name, "roles"); found {
			settings["role"] = id
		}
	}
}

// SubmissionPorter imports seed submissions. Submissions are create-only:
// re-importing a template never rewrites user data.
type SubmissionPorter struct {
	model *model.Model
}

func (p *SubmissionPorter) Key() string         { return "submissions" }
func (p *SubmissionPorter) Model() *model.Model { return p.model }
func (p *SubmissionPorter) CreateOnly() bool    { return true }

func (p *SubmissionPorter) BuildMap(ctx context.Context) (map[string]string, error) {
	return buildMap(ctx, p.model, store.Query{})
}

func (p *SubmissionPorter) Import(item store.Document, maps Maps) (store.Document, error) {
	name, _ := item["form"].(string)
	id, ok := maps.Resolve(name, "forms", "resources")
	if !ok {
		return nil, nil
	}
	doc := store.CopyDocument(item)
	doc["form"] = id
	return doc, nil
}

func (p *SubmissionPorter) Export(doc store.Document, maps Maps) store.Document {
	out := store.CopyDocument(doc)
	delete(out, "_id")
	delete(out, "created")
	delete(out, "modified")
	delete(out, "machineName")
	return out
}

func (p *SubmissionPorter) Query(doc store.Document) store.Query {
	name, _ := doc["machineName"].(string)
	return store.Query{"machineName": name}
}

func (p *SubmissionPorter) CleanUp(maps Maps) {}

// ActionItemPorter imports action work items, create-only like submissions.
type ActionItemPorter struct {
	model *model.Model
}

func (p *ActionItemPorter) Key() string         { return "actionItems" }
func (p *ActionItemPorter) Model() *model.Model { return p.model }
func (p *ActionItemPorter) CreateOnly() bool    { return true }

func (p *ActionItemPorter) BuildMap(ctx context.Context) (map[string]string, error) {
	return buildMap(ctx, p.model, store.Query{})
}

func (p *ActionItemPorter) Import(item store.Document, maps Maps) (store.Document, error) {
	doc := store.CopyDocument(item)
	if name, ok := doc["form"].(string); ok {
		if id, found := maps.Resolve(name, "forms", "resources"); found {
			doc["form"] = id
		}
	}
	if name, ok := doc["submission"].(string); ok {
		if id, found := maps.Resolve(name, "submissions"); found {
			doc["submission"] = id
		}
	}
	return doc, nil
}

func (p *ActionItemPorter) Export(doc store.Document, maps Maps) store.Document {
	out := store.CopyDocument(doc)
	delete(out, "_id")
	delete(out, "created")
	delete(out, "modified")
	delete(out, "machineName")
	return out
}

func (p *ActionItemPorter) Query(doc store.Document) store.Query {
	name, _ := doc["machineName"].(string)
	return store.Query{"machineName": name}
}

func (p *ActionItemPorter) CleanUp(maps Maps) {}
