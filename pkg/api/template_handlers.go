package api

import (
	"net/http"

	"github.com/formapi/formapi/pkg/httputil"
	"github.com/formapi/formapi/pkg/store"
)

// importTemplate handles POST /import: installs the posted template and
// returns the final reference maps.
func (s *Server) importTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl store.Document
	if !httputil.ParseJSONOrError(w, r, &tmpl) {
		return
	}
	maps, err := s.importer.Import(r.Context(), tmpl)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, maps)
}

// exportTemplate handles GET /export: the persisted entities rendered as a
// template.
func (s *Server) exportTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.exporter.Export(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, tmpl)
}

// getStatus handles GET /status.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}
