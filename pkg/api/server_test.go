package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formapi/formapi/pkg/access"
	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/schema"
	"github.com/formapi/formapi/pkg/store"
	"github.com/formapi/formapi/pkg/template"
)

const adminKey = "test-admin-key"

func newTestServer(t *testing.T) (*Server, map[string]*model.Model) {
	t.Helper()
	return newTestServerMetrics(t, nil)
}

func newTestServerMetrics(t *testing.T, metrics *observability.Metrics) (*Server, map[string]*model.Model) {
	t.Helper()
	gw := store.NewMemory()
	registry := schema.NewRegistry()
	log := observability.NewLogger(slog.LevelError, io.Discard)

	models := make(map[string]*model.Model)
	for name, entity := range schema.Entities() {
		models[name] = model.New(entity, gw, registry, log)
	}

	loader := request.NewLoader(models, log)
	authorizer := access.NewAuthorizer(access.Config{AdminKey: adminKey}, nil, log)
	porters := template.Porters(models, authorizer.Everyone())
	importer := template.NewImporter(porters, log, nil)
	exporter := template.NewExporter(porters, log)

	return NewServer(models, loader, authorizer, importer, exporter, log, metrics), models
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if admin {
		r.Header.Set("x-admin-key", adminKey)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) store.Document {
	t.Helper()
	var doc store.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return doc
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, "GET", "/status", nil, false)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
}

func TestFormLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact",
		"name":  "contact",
		"path":  "Contact ",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	form := decode(t, w)
	formID := form["_id"].(string)
	require.NotEmpty(t, formID)
	// Path is lowercased and trimmed by the write path.
	assert.Equal(t, "contact", form["path"])
	assert.Equal(t, "form", form["type"])
	assert.NotNil(t, form["created"])

	w = doJSON(t, s, "GET", "/form/"+formID, nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Contact", decode(t, w)["title"])

	w = doJSON(t, s, "DELETE", "/form/"+formID, nil, true)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, "GET", "/form/"+formID, nil, true)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFormValidationError(t *testing.T) {
	s, _ := newTestServer(t)

	// Missing required title.
	w := doJSON(t, s, "POST", "/form", store.Document{
		"name": "contact",
		"path": "contact",
	}, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ValidationError", body["name"])
}

func TestFormValidationFailureCounted(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	s, _ := newTestServerMetrics(t, metrics)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"name": "contact",
		"path": "contact",
	}, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.ValidationFailuresTotal.WithLabelValues("form")))
}

func TestFormPostCreatesDefaultActions(t *testing.T) {
	s, models := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact", "name": "contact", "path": "contact",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	formID := decode(t, w)["_id"].(string)

	actions, err := models["action"].Find(context.Background(), store.Query{"entity": formID}, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "save", actions[0]["name"])
	assert.Equal(t, "form", actions[0]["entityType"])
}

func TestIndexTotalCount(t *testing.T) {
	s, _ := newTestServer(t)

	for _, name := range []string{"one", "two", "three"} {
		w := doJSON(t, s, "POST", "/form", store.Document{
			"title": name, "name": name, "path": name,
		}, true)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, s, "GET", "/form?limit=2", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-Total-Count"))

	var items []store.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 2)
}

func TestUnauthorizedWithoutRole(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Secret", "name": "secret", "path": "secret",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	formID := decode(t, w)["_id"].(string)

	// No access rules and no admin key: 401 with empty body.
	w = doJSON(t, s, "GET", "/form/"+formID, nil, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestEveryoneRoleGrantsAccess(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Public", "name": "public", "path": "public",
		"access": []interface{}{
			map[string]interface{}{
				"type":  "read_all",
				"roles": []interface{}{access.EveryoneRole},
			},
		},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	formID := decode(t, w)["_id"].(string)

	w = doJSON(t, s, "GET", "/form/"+formID, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Public", decode(t, w)["title"])
}

func TestAliasResolution(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact", "name": "contact", "path": "contact",
		"submissionAccess": []interface{}{
			map[string]interface{}{
				"type":  "create_all",
				"roles": []interface{}{access.EveryoneRole},
			},
		},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	formID := decode(t, w)["_id"].(string)

	// GET by alias resolves to the canonical form route.
	w = doJSON(t, s, "GET", "/contact", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, formID, decode(t, w)["_id"])

	// A bare POST to an alias creates a submission on the form.
	w = doJSON(t, s, "POST", "/contact", store.Document{
		"data": map[string]interface{}{"firstName": "Jane"},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode(t, w)
	assert.Equal(t, formID, sub["form"])
}

func TestSubmissionScopedToForm(t *testing.T) {
	s, _ := newTestServer(t)

	var formIDs []string
	for _, name := range []string{"a", "b"} {
		w := doJSON(t, s, "POST", "/form", store.Document{
			"title": name, "name": name, "path": name,
		}, true)
		require.Equal(t, http.StatusCreated, w.Code)
		formIDs = append(formIDs, decode(t, w)["_id"].(string))
	}

	w := doJSON(t, s, "POST", "/form/"+formIDs[0]+"/submission", store.Document{
		"data": map[string]interface{}{"v": 1},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	subID := decode(t, w)["_id"].(string)

	// Visible under the owning form.
	w = doJSON(t, s, "GET", "/form/"+formIDs[0]+"/submission", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))

	// Invisible under another form.
	w = doJSON(t, s, "GET", "/form/"+formIDs[1]+"/submission", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-Total-Count"))

	w = doJSON(t, s, "GET", "/form/"+formIDs[1]+"/submission/"+subID, nil, true)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFormPutModifiedConflict(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact", "name": "contact", "path": "contact",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	form := decode(t, w)
	formID := form["_id"].(string)

	// A stale client copy of components yields 409 with the current form.
	w = doJSON(t, s, "PUT", "/form/"+formID, store.Document{
		"title":      "Contact",
		"name":       "contact",
		"path":       "contact",
		"modified":   "2000-01-01T00:00:00Z",
		"components": []interface{}{},
	}, true)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, formID, decode(t, w)["_id"])

	// Without components the timestamp is not checked.
	w = doJSON(t, s, "PUT", "/form/"+formID, store.Document{
		"title":    "Renamed",
		"name":     "contact",
		"path":     "contact",
		"modified": "2000-01-01T00:00:00Z",
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Renamed", decode(t, w)["title"])
}

func TestPatch(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact", "name": "contact", "path": "contact",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	formID := decode(t, w)["_id"].(string)

	patch := []map[string]interface{}{
		{"op": "replace", "path": "/title", "value": "Patched"},
	}
	w = doJSON(t, s, "PATCH", "/form/"+formID, patch, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Patched", decode(t, w)["title"])
}

func TestActionEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact", "name": "contact", "path": "contact",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	formID := decode(t, w)["_id"].(string)

	w = doJSON(t, s, "GET", "/form/"+formID+"/actions", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var infos []ActionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	assert.NotEmpty(t, infos)

	w = doJSON(t, s, "GET", "/form/"+formID+"/actions/webhook", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	settings := decode(t, w)
	assert.Equal(t, "webhook", settings["name"])
	assert.NotNil(t, settings["settingsForm"])

	w = doJSON(t, s, "GET", "/form/"+formID+"/actions/nope", nil, true)
	require.Equal(t, http.StatusNotFound, w.Code)

	// The installed default save action is listed on the action resource.
	w = doJSON(t, s, "GET", "/form/"+formID+"/action", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var actions []store.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, "save", actions[0]["name"])
}

func TestImportExportEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	tmpl := store.Document{
		"roles": map[string]interface{}{
			"administrator": map[string]interface{}{"title": "Administrator", "admin": true},
		},
		"forms": map[string]interface{}{
			"contact": map[string]interface{}{
				"title": "Contact", "name": "contact", "path": "contact",
				"access": []interface{}{
					map[string]interface{}{
						"type":  "read_all",
						"roles": []interface{}{"administrator"},
					},
				},
			},
		},
	}

	w := doJSON(t, s, "POST", "/import", tmpl, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	maps := decode(t, w)
	forms := maps["forms"].(map[string]interface{})
	assert.NotEmpty(t, forms["contact"])

	w = doJSON(t, s, "GET", "/export", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	exported := decode(t, w)
	assert.Contains(t, exported, "roles")
	assert.Contains(t, exported, "forms")
}

func TestChildCallDepthGuard(t *testing.T) {
	s, _ := newTestServer(t)

	ctx := context.Background()
	var err error
	for i := 0; i < request.MaxChildDepth; i++ {
		ctx, err = request.EnterChild(ctx)
		require.NoError(t, err)
	}

	_, err = s.Call(ctx, request.Command{Method: "GET", Path: "/status"})
	assert.ErrorIs(t, err, request.ErrTooManyChildRequests)
}

func TestChildCall(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/form", store.Document{
		"title": "Contact", "name": "contact", "path": "contact",
		"access": []interface{}{
			map[string]interface{}{
				"type":  "read_all",
				"roles": []interface{}{access.EveryoneRole},
			},
		},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	formID := decode(t, w)["_id"].(string)

	result, err := s.Call(context.Background(), request.Command{
		Method: "GET",
		Path:   "/form/" + formID,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)
	require.NotNil(t, result.Item)
	assert.Equal(t, formID, result.Item["_id"])
}
