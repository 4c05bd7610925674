package request

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/store"
)

// Loader resolves path identifiers into loaded entity instances and the
// caller's role sets. All resolutions run concurrently; any one failure
// fails the whole request with that error.
type Loader struct {
	models map[string]*model.Model
	log    *observability.Logger
}

// NewLoader creates a context loader over the entity models.
func NewLoader(models map[string]*model.Model, log *observability.Logger) *Loader {
	return &Loader{models: models, log: log}
}

// Load builds the request context for a request path. Path segments shaped
// like /<entityType>/<id> resolve that entity into its per-type slot and
// record the raw id as a parameter.
func (l *Loader) Load(ctx context.Context, path string, user *User) (*Context, error) {
	rc := &Context{
		ID:        uuid.NewString(),
		Resources: map[string]store.Document{},
		Params:    map[string]string{},
		User:      user,
	}

	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for index, part := range parts {
		if !isResourceType(part) || index+1 >= len(parts) {
			continue
		}
		entityType := part
		id := parts[index+1]
		rc.Params[entityType+"Id"] = id
		group.Go(func() error {
			doc, err := l.models[entityType].Read(ctx, store.Query{"_id": id})
			if err != nil {
				return err
			}
			mu.Lock()
			rc.Resources[entityType] = doc
			mu.Unlock()
			return nil
		})
	}

	group.Go(l.loadRoles(ctx, rc, &mu, "all", store.Query{}))
	group.Go(l.loadRoles(ctx, rc, &mu, "admin", store.Query{"admin": true}))
	group.Go(l.loadRoles(ctx, rc, &mu, "default", store.Query{"default": true}))

	// Load the actions for the form, ordered by descending priority.
	if formID, ok := rc.Params["formId"]; ok {
		group.Go(func() error {
			actions, err := l.models["action"].Find(ctx, store.Query{"entity": formID}, nil)
			if err != nil {
				return err
			}
			sort.SliceStable(actions, func(i, j int) bool {
				return actionPriority(actions[i]) > actionPriority(actions[j])
			})
			mu.Lock()
			rc.Actions = actions
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (l *Loader) loadRoles(ctx context.Context, rc *Context, mu *sync.Mutex, set string, query store.Query) func() error {
	return func() error {
		roles, err := l.models["role"].Find(ctx, query, nil)
		if err != nil {
			return err
		}
		mu.Lock()
		switch set {
		case "all":
			rc.Roles.All = roles
		case "admin":
			rc.Roles.Admin = roles
		case "default":
			rc.Roles.Default = roles
		}
		mu.Unlock()
		return nil
	}
}

func isResourceType(part string) bool {
	for _, entityType := range ResourceTypes {
		if part == entityType {
			return true
		}
	}
	return false
}

func actionPriority(action store.Document) int {
	switch p := action["priority"].(type) {
	case int:
		return p
	case float64:
		return int(p)
	}
	return 0
}
