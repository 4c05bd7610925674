package api

import (
	"net/http"
	"sort"

	"github.com/formapi/formapi/pkg/httputil"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
)

// ActionResource handles the actions installed on a form. Every lookup is
// pinned to the form in the path; for now all actions target forms.
type ActionResource struct {
	Resource
}

// NewActionResource creates the action resource.
func NewActionResource(s *Server) *ActionResource {
	a := &ActionResource{Resource{name: "action", model: s.models["action"], srv: s}}
	a.scope = func(r *http.Request) store.Query {
		rctx := request.FromContext(r.Context())
		return store.Query{"entity": rctx.Params["formId"]}
	}
	a.prepareHook = func(item store.Document, r *http.Request) store.Document {
		// Some clients submit the action wrapped as submission data.
		if data, ok := item["data"].(map[string]interface{}); ok {
			item = data
		}
		rctx := request.FromContext(r.Context())
		item["entity"] = rctx.Params["formId"]
		item["entityType"] = "form"
		return item
	}
	return a
}

// actionsIndex lists the installable action kinds.
func (a *ActionResource) actionsIndex(w http.ResponseWriter, r *http.Request) {
	kinds := ActionKinds()
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]ActionInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, kinds[name])
	}
	httputil.WriteSuccess(w, infos)
}

// actionSettings describes one action kind, including the settings form a
// client renders to configure it on this form.
func (a *ActionResource) actionSettings(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	info, found := ActionKinds()[name]
	if !found {
		httputil.WriteNotFound(w, "action not found")
		return
	}

	rctx := request.FromContext(r.Context())
	httputil.WriteSuccess(w, map[string]interface{}{
		"name":        info.Name,
		"title":       info.Title,
		"description": info.Description,
		"priority":    info.Priority,
		"defaults":    info.Defaults,
		"settingsForm": map[string]interface{}{
			"action":     "/form/" + rctx.Params["formId"] + "/action",
			"components": info.SettingsComponents,
		},
	})
}
