// Package api exposes the form engine over HTTP: entity REST resources,
// template import/export, and the middleware pipeline that resolves the
// request context and authorizes every call.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formapi/formapi/pkg/access"
	"github.com/formapi/formapi/pkg/httputil"
	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/template"
)

// Version is stamped into /status responses at build time.
var Version = "dev"

// Server represents our API server
type Server struct {
	router     *mux.Router
	models     map[string]*model.Model
	loader     *request.Loader
	authorizer *access.Authorizer
	importer   *template.Importer
	exporter   *template.Exporter
	log        *observability.Logger
	metrics    *observability.Metrics

	handler http.Handler
}

// NewServer creates a new API server
func NewServer(
	models map[string]*model.Model,
	loader *request.Loader,
	authorizer *access.Authorizer,
	importer *template.Importer,
	exporter *template.Exporter,
	log *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		models:     models,
		loader:     loader,
		authorizer: authorizer,
		importer:   importer,
		exporter:   exporter,
		log:        log,
		metrics:    metrics,
	}

	s.setupRoutes()

	// Every request runs the full pipeline: alias resolution first so
	// context loading and authorization see canonical identifiers.
	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(log),
		httputil.LoggingMiddleware(log, metrics),
		httputil.RecoveryMiddleware(log),
		s.aliasMiddleware,
		s.contextMiddleware,
		s.authorizeMiddleware,
	)(s.router)

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	role := &Resource{name: "role", model: s.models["role"], srv: s}
	registerRoutes(s.router, "/role", "role", role)

	form := NewFormResource(s)
	registerRoutes(s.router, "/form", "form", form)

	submission := NewSubmissionResource(s)
	registerRoutes(s.router, "/form/{formId}/submission", "submission", submission)

	action := NewActionResource(s)
	registerRoutes(s.router, "/form/{formId}/action", "action", action)

	// Available action kinds and their settings forms.
	s.router.HandleFunc("/form/{formId}/actions", action.actionsIndex).Methods("GET")
	s.router.HandleFunc("/form/{formId}/actions/{name}", action.actionSettings).Methods("GET")

	// Template routes
	s.router.HandleFunc("/import", s.importTemplate).Methods("POST")
	s.router.HandleFunc("/export", s.exportTemplate).Methods("GET")

	// Status route
	s.router.HandleFunc("/status", s.getStatus).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the bare route table, without the middleware pipeline.
func (s *Server) Router() *mux.Router {
	return s.router
}
