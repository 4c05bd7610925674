package request

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formapi/formapi/pkg/model"
	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/schema"
	"github.com/formapi/formapi/pkg/store"
)

func newTestLoader(t *testing.T) (*Loader, map[string]*model.Model) {
	t.Helper()
	log := observability.NewLogger(slog.LevelError, io.Discard)
	gw := store.NewMemory()
	registry := schema.NewRegistry()
	models := map[string]*model.Model{}
	for name, entity := range schema.Entities() {
		models[name] = model.New(entity, gw, registry, log)
	}
	return NewLoader(models, log), models
}

func TestLoadResolvesPathEntities(t *testing.T) {
	ctx := context.Background()
	loader, models := newTestLoader(t)

	form, err := models["form"].Create(ctx, store.Document{"title": "Contact", "name": "contact", "path": "contact"})
	require.NoError(t, err)
	formID := store.DocumentID(form)

	submission, err := models["submission"].Create(ctx, store.Document{"form": formID, "data": map[string]interface{}{}})
	require.NoError(t, err)
	subID := store.DocumentID(submission)

	rc, err := loader.Load(ctx, "/form/"+formID+"/submission/"+subID, nil)
	require.NoError(t, err)
	assert.Equal(t, formID, rc.Params["formId"])
	assert.Equal(t, subID, rc.Params["submissionId"])
	assert.Equal(t, "Contact", rc.Resources["form"]["title"])
	assert.Equal(t, formID, rc.Resources["submission"]["form"])

	primary := rc.PrimaryEntity()
	require.NotNil(t, primary)
	assert.Equal(t, "submission", primary.Type)
	assert.Equal(t, subID, primary.ID)
}

func TestLoadRootPathHasNoPrimaryEntity(t *testing.T) {
	ctx := context.Background()
	loader, _ := newTestLoader(t)

	rc, err := loader.Load(ctx, "/form", nil)
	require.NoError(t, err)
	assert.Nil(t, rc.PrimaryEntity())
	assert.Empty(t, rc.Params)
}

func TestLoadMissingEntityFails(t *testing.T) {
	ctx := context.Background()
	loader, _ := newTestLoader(t)

	_, err := loader.Load(ctx, "/form/"+store.NewID(), nil)
	assert.True(t, model.IsNotFound(err))
}

func TestLoadRoleSets(t *testing.T) {
	ctx := context.Background()
	loader, models := newTestLoader(t)

	_, err := models["role"].Create(ctx, store.Document{"title": "Administrator", "admin": true})
	require.NoError(t, err)
	_, err = models["role"].Create(ctx, store.Document{"title": "Anonymous", "default": true})
	require.NoError(t, err)
	_, err = models["role"].Create(ctx, store.Document{"title": "Authenticated"})
	require.NoError(t, err)

	rc, err := loader.Load(ctx, "/form", nil)
	require.NoError(t, err)
	assert.Len(t, rc.Roles.All, 3)
	require.Len(t, rc.Roles.Admin, 1)
	assert.Equal(t, "Administrator", rc.Roles.Admin[0]["title"])
	require.Len(t, rc.Roles.Default, 1)
	assert.Equal(t, "Anonymous", rc.Roles.Default[0]["title"])
}

func TestLoadActionsOrderedByPriority(t *testing.T) {
	ctx := context.Background()
	loader, models := newTestLoader(t)

	form, err := models["form"].Create(ctx, store.Document{"title": "Contact", "name": "contact", "path": "contact"})
	require.NoError(t, err)
	formID := store.DocumentID(form)

	for _, action := range []store.Document{
		{"title": "Low", "name": "low", "entity": formID, "priority": 1},
		{"title": "High", "name": "high", "entity": formID, "priority": 10},
		{"title": "Mid", "name": "mid", "entity": formID, "priority": 5},
	} {
		_, err := models["action"].Create(ctx, action)
		require.NoError(t, err)
	}

	rc, err := loader.Load(ctx, "/form/"+formID, nil)
	require.NoError(t, err)
	require.Len(t, rc.Actions, 3)
	assert.Equal(t, "High", rc.Actions[0]["title"])
	assert.Equal(t, "Mid", rc.Actions[1]["title"])
	assert.Equal(t, "Low", rc.Actions[2]["title"])
}

func TestLoadCarriesUser(t *testing.T) {
	ctx := context.Background()
	loader, _ := newTestLoader(t)

	user := &User{ID: store.NewID(), Roles: []string{store.NewID()}}
	rc, err := loader.Load(ctx, "/form", user)
	require.NoError(t, err)
	assert.Same(t, user, rc.User)
	assert.NotEmpty(t, rc.ID)
}
