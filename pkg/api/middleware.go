package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/formapi/formapi/pkg/access"
	"github.com/formapi/formapi/pkg/httputil"
	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
	"github.com/formapi/formapi/pkg/template"
)

// reservedForms are path segments that can never be form aliases.
var reservedForms = []string{
	"submission",
	"exists",
	"export",
	"role",
	"current",
	"logout",
	"form",
	"access",
	"token",
	"recaptcha",
	"action",
	"actions",
	"import",
	"status",
}

// aliasMiddleware rewrites form-path aliases to canonical identifiers:
// /contact/submission becomes /form/<id>/submission. A bare POST to an
// alias is assumed to create a submission.
func (s *Server) aliasMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alias := aliasFromPath(r.URL.Path)
		if alias == "" {
			next.ServeHTTP(w, r)
			return
		}

		form, err := s.models["form"].FindOne(r.Context(), store.Query{"path": alias})
		if err != nil {
			// Not an alias after all; let routing decide.
			next.ServeHTTP(w, r)
			return
		}

		additional := strings.TrimPrefix(r.URL.Path, "/"+alias)
		if additional == "" && r.Method == http.MethodPost {
			additional = "/submission"
		}
		r.URL.Path = "/form/" + store.DocumentID(form) + additional
		next.ServeHTTP(w, r)
	})
}

// aliasFromPath extracts the candidate alias: the leading path segments up
// to the first reserved word. Returns "" for paths that cannot be aliases.
func aliasFromPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	var alias []string
	for _, part := range parts {
		if part == "" || isReserved(part) {
			break
		}
		alias = append(alias, part)
	}
	if len(alias) == 0 {
		return ""
	}
	return strings.Join(alias, "/")
}

func isReserved(part string) bool {
	for _, reserved := range reservedForms {
		if strings.EqualFold(part, reserved) {
			return true
		}
	}
	return false
}

// contextMiddleware resolves every entity referenced by the path, the role
// sets, and the form's actions into the request context.
func (s *Server) contextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := request.UserFromContext(r.Context())
		rc, err := s.loader.Load(r.Context(), r.URL.Path, user)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(request.WithContext(r.Context(), rc)))
	})
}

// authorizeMiddleware rejects requests whose caller roles do not intersect
// the primary entity's permitted roles. Failures carry an empty body.
func (s *Server) authorizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := request.FromContext(r.Context())
		if err := s.authorizer.Authorize(r, rc); err != nil {
			httputil.WriteUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var validationErr *model.ValidationError
	var typeErr *model.TypeError
	var structureErr *template.StructureError

	switch {
	case errors.As(err, &validationErr):
		httputil.WriteValidationError(w, validationErr.Path, validationErr.Message)
	case errors.As(err, &typeErr):
		httputil.WriteValidationError(w, typeErr.Path, typeErr.Error())
	case errors.As(err, &structureErr):
		httputil.WriteBadRequest(w, structureErr.Error())
	case errors.Is(err, access.ErrUnauthorized):
		httputil.WriteUnauthorized(w)
	case errors.Is(err, request.ErrTooManyChildRequests):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, store.ErrInvalidID):
		httputil.WriteBadRequest(w, err.Error())
	case model.IsNotFound(err):
		httputil.WriteNotFound(w, "not found")
	default:
		httputil.WriteInternalError(w, err)
	}
}
