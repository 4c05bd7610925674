package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/formapi/formapi/pkg/httputil"
	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/query"
	"github.com/formapi/formapi/pkg/request"
	"github.com/formapi/formapi/pkg/store"
)

// Resource is the generic REST handler set for one entity type. Entity
// specific resources embed it: scope narrows every lookup filter, and
// prepareHook post-processes inbound documents.
type Resource struct {
	name  string
	model *model.Model
	srv   *Server

	scope       func(r *http.Request) store.Query
	prepareHook func(item store.Document, r *http.Request) store.Document
}

// resourceHandlers is the handler set a resource route table needs.
// Embedding resources override individual handlers before registration.
type resourceHandlers interface {
	Index(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Post(w http.ResponseWriter, r *http.Request)
	Put(w http.ResponseWriter, r *http.Request)
	Patch(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// registerRoutes wires the standard REST routes under the given prefix.
func registerRoutes(router *mux.Router, route, name string, h resourceHandlers) {
	idRoute := route + "/{" + name + "Id}"
	router.HandleFunc(route, h.Index).Methods("GET")
	router.HandleFunc(route, h.Post).Methods("POST")
	router.HandleFunc(idRoute, h.Get).Methods("GET")
	router.HandleFunc(idRoute, h.Put).Methods("PUT")
	router.HandleFunc(idRoute, h.Patch).Methods("PATCH")
	router.HandleFunc(idRoute, h.Delete).Methods("DELETE")
}

// Index handles GET on the collection: filter, paginate, and return the
// items with the total match count in X-Total-Count.
func (rc *Resource) Index(w http.ResponseWriter, r *http.Request) {
	filter := rc.indexQuery(r)
	options := query.ParseOptions(r.URL.Query())

	var count int64
	var docs []store.Document
	var mu sync.Mutex
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		n, err := rc.model.Count(ctx, filter)
		if err != nil {
			return err
		}
		mu.Lock()
		count = n
		mu.Unlock()
		return nil
	})
	group.Go(func() error {
		found, err := rc.model.Find(ctx, filter, options)
		if err != nil {
			return err
		}
		mu.Lock()
		docs = found
		mu.Unlock()
		return nil
	})
	if err := group.Wait(); err != nil {
		writeEngineError(w, err)
		return
	}

	if docs == nil {
		docs = []store.Document{}
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(count, 10))
	httputil.WriteSuccess(w, docs)
}

// Get handles GET on a single entity.
func (rc *Resource) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := rc.model.Read(r.Context(), rc.getQuery(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// Post handles POST on the collection.
func (rc *Resource) Post(w http.ResponseWriter, r *http.Request) {
	rc.create(w, r, nil)
}

// create runs the POST path, invoking then after a successful save so
// overriding resources can chain follow-up work before the response.
func (rc *Resource) create(w http.ResponseWriter, r *http.Request, then func(doc store.Document) error) {
	var body store.Document
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	doc, err := rc.model.Create(r.Context(), rc.prepare(body, r))
	if err != nil {
		rc.saveError(w, err)
		return
	}
	if then != nil {
		if err := then(doc); err != nil {
			writeEngineError(w, err)
			return
		}
	}
	httputil.WriteCreated(w, doc)
}

// Put handles PUT on a single entity.
func (rc *Resource) Put(w http.ResponseWriter, r *http.Request) {
	var body store.Document
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	doc, err := rc.model.Update(r.Context(), rc.prepare(body, r))
	if err != nil {
		rc.saveError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// Patch handles PATCH on a single entity: the body is a JSON patch applied
// to the current document, and the result runs the full update path.
func (rc *Resource) Patch(w http.ResponseWriter, r *http.Request) {
	current, err := rc.model.Read(r.Context(), rc.getQuery(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var rawPatch json.RawMessage
	if !httputil.ParseJSONOrError(w, r, &rawPatch) {
		return
	}
	patch, err := jsonpatch.DecodePatch(rawPatch)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	currentJSON, err := json.Marshal(current)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	patchedJSON, err := patch.Apply(currentJSON)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var patched store.Document
	if err := json.Unmarshal(patchedJSON, &patched); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	doc, err := rc.model.Update(r.Context(), rc.prepare(patched, r))
	if err != nil {
		rc.saveError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// Delete handles DELETE on a single entity.
func (rc *Resource) Delete(w http.ResponseWriter, r *http.Request) {
	if err := rc.model.Delete(r.Context(), rc.getQuery(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// saveError writes an engine error from a create or update, counting schema
// rejections per entity along the way.
func (rc *Resource) saveError(w http.ResponseWriter, err error) {
	var valErr *model.ValidationError
	var typeErr *model.TypeError
	if errors.As(err, &valErr) || errors.As(err, &typeErr) {
		if rc.srv != nil && rc.srv.metrics != nil {
			rc.srv.metrics.ValidationFailuresTotal.WithLabelValues(rc.name).Inc()
		}
	}
	writeEngineError(w, err)
}

// getQuery is the single-entity lookup filter.
func (rc *Resource) getQuery(r *http.Request) store.Query {
	rctx := request.FromContext(r.Context())
	q := store.Query{"_id": rctx.Params[rc.name+"Id"]}
	rc.applyScope(q, r)
	return q
}

// indexQuery translates the query string into a filter for this entity.
func (rc *Resource) indexQuery(r *http.Request) store.Query {
	q := query.ParseFilter(r.URL.Query(), rc.model.Schema())
	rc.applyScope(q, r)
	return q
}

func (rc *Resource) applyScope(q store.Query, r *http.Request) {
	if rc.scope == nil {
		return
	}
	for key, value := range rc.scope(r) {
		q[key] = value
	}
}

// prepare normalizes an inbound document: the path identifier always wins
// over one in the body, and unowned documents are stamped with the caller.
func (rc *Resource) prepare(item store.Document, r *http.Request) store.Document {
	rctx := request.FromContext(r.Context())
	if rc.prepareHook != nil {
		item = rc.prepareHook(item, r)
	}
	if id, ok := rctx.Params[rc.name+"Id"]; ok {
		item["_id"] = id
	}
	if item["owner"] == nil && rctx.User != nil {
		item["owner"] = rctx.User.ID
	}
	return item
}
