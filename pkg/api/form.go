package api

import (
	"net/http"
	"time"

	"github.com/formapi/formapi/pkg/httputil"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
)

// FormResource handles forms. On creation it installs the default actions;
// on update it refuses to overwrite components newer than the caller's
// copy.
type FormResource struct {
	Resource
}

// NewFormResource creates the form resource.
func NewFormResource(s *Server) *FormResource {
	return &FormResource{Resource{name: "form", model: s.models["form"], srv: s}}
}

// Post creates the form, then installs every default action kind on it.
func (f *FormResource) Post(w http.ResponseWriter, r *http.Request) {
	f.create(w, r, func(doc store.Document) error {
		return f.createDefaultActions(r, doc)
	})
}

func (f *FormResource) createDefaultActions(r *http.Request, form store.Document) error {
	rctx := request.FromContext(r.Context())
	for _, info := range ActionKinds() {
		if !info.Default {
			continue
		}
		action := store.Document{
			"title":    info.Title,
			"name":     info.Name,
			"priority": info.Priority,
			"settings": map[string]interface{}{},
		}
		for key, value := range info.Defaults {
			action[key] = value
		}
		if rctx.User != nil {
			action["owner"] = rctx.User.ID
		}
		// Entity goes last so defaults cannot redirect it.
		action["entityType"] = "form"
		action["entity"] = store.DocumentID(form)
		if _, err := f.srv.models["action"].Create(r.Context(), action); err != nil {
			return err
		}
	}
	return nil
}

// Put rejects stale component updates with 409 and the current form so the
// client can merge, then runs the normal update.
func (f *FormResource) Put(w http.ResponseWriter, r *http.Request) {
	var body store.Document
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	_, hasModified := body["modified"]
	_, hasComponents := body["components"]
	if hasModified && hasComponents {
		rctx := request.FromContext(r.Context())
		current := rctx.Resources["form"]
		stable, okStable := parseTime(current["modified"])
		local, okLocal := parseTime(body["modified"])
		if okStable && okLocal && stable.After(local) {
			httputil.WriteJSON(w, http.StatusConflict, current)
			return
		}
	}

	doc, err := f.model.Update(r.Context(), f.prepare(body, r))
	if err != nil {
		f.saveError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// parseTime reads a timestamp that may be a rendered string or a time.Time
// straight from the store.
func parseTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
