package api

import (
	"net/http"

	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
)

// NewSubmissionResource creates the submission resource. Submissions only
// exist under a form, so every lookup and write is pinned to the form in
// the path.
func NewSubmissionResource(s *Server) *Resource {
	rc := &Resource{name: "submission", model: s.models["submission"], srv: s}
	rc.scope = func(r *http.Request) store.Query {
		rctx := request.FromContext(r.Context())
		return store.Query{"form": rctx.Params["formId"]}
	}
	rc.prepareHook = func(item store.Document, r *http.Request) store.Document {
		rctx := request.FromContext(r.Context())
		item["form"] = rctx.Params["formId"]
		return item
	}
	return rc
}
