// Package request builds the per-request context: entity instances resolved
// from the path, the caller's role sets, and the actions applicable to the
// current form. It also carries the child-request depth guard.
package request

import (
	"context"

	"github.com/formapi/formapi/pkg/store"
)

// User is the authenticated caller as established by the layer above this
// engine. A nil user means the request is unauthenticated.
type User struct {
	ID    string
	Roles []string
}

// RoleSets are the role documents resolved for a request.
type RoleSets struct {
	All     []store.Document
	Admin   []store.Document
	Default []store.Document
}

// Context is the ephemeral per-request aggregate. It is created at request
// start, discarded at request end, and never persisted.
type Context struct {
	ID        string
	Resources map[string]store.Document
	Params    map[string]string
	Roles     RoleSets
	Actions   []store.Document
	User      *User
}

// EntityRef identifies the primary entity of a request.
type EntityRef struct {
	Type string
	ID   string
}

// ResourceTypes is the primary-entity precedence order, most specific
// first: a request that resolves a submission is about the submission, not
// its form.
var ResourceTypes = []string{"submission", "form", "role", "action"}

// PrimaryEntity returns the most specific resolved entity, or nil when the
// request targets the collection root.
func (c *Context) PrimaryEntity() *EntityRef {
	for _, entityType := range ResourceTypes {
		if doc, ok := c.Resources[entityType]; ok {
			return &EntityRef{Type: entityType, ID: store.DocumentID(doc)}
		}
	}
	return nil
}

type contextKey int

const (
	requestContextKey contextKey = iota
	childDepthKey
	userKey
)

// WithContext attaches the request context to a context.Context.
func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext retrieves the request context, or nil.
func FromContext(ctx context.Context) *Context {
	rc, _ := ctx.Value(requestContextKey).(*Context)
	return rc
}

// WithUser attaches the authenticated caller to a context.Context. The
// authentication layer above this engine calls it before the pipeline runs.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated caller, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userKey).(*User)
	return user
}
