package schema

import (
	"context"
	"sync"

	"github.com/formapi/formapi/pkg/store"
)

// SetterFunc transforms a field value on the write path.
type SetterFunc func(value interface{}) interface{}

// GetterFunc transforms a field value on the read path.
type GetterFunc func(value interface{}) interface{}

// ValidatorFunc checks a field value against the whole working document.
// It returns false to fail the field, optionally with a message overriding
// the one declared on the schema. Validators may block (database lookups);
// the pipeline awaits them.
type ValidatorFunc func(ctx context.Context, value interface{}, doc store.Document) (bool, string)

// Registry resolves the named set/get/validate hooks referenced by field
// schemas. Hooks are registered at startup; lookups are concurrent-safe.
type Registry struct {
	mu         sync.RWMutex
	setters    map[string]SetterFunc
	getters    map[string]GetterFunc
	validators map[string]ValidatorFunc
}

// NewRegistry creates a registry pre-loaded with the built-in hooks.
func NewRegistry() *Registry {
	r := &Registry{
		setters:    map[string]SetterFunc{},
		getters:    map[string]GetterFunc{},
		validators: map[string]ValidatorFunc{},
	}
	r.RegisterSetter("toID", func(value interface{}) interface{} {
		if id, err := store.ToID(value); err == nil {
			return id
		}
		return value
	})
	return r
}

// RegisterSetter registers a named write-path transform.
func (r *Registry) RegisterSetter(name string, fn SetterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setters[name] = fn
}

// RegisterGetter registers a named read-path transform.
func (r *Registry) RegisterGetter(name string, fn GetterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getters[name] = fn
}

// RegisterValidator registers a named validator.
func (r *Registry) RegisterValidator(name string, fn ValidatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[name] = fn
}

// Setter returns the named setter, or nil.
func (r *Registry) Setter(name string) SetterFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.setters[name]
}

// Getter returns the named getter, or nil.
func (r *Registry) Getter(name string) GetterFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getters[name]
}

// Validator returns the named validator, or nil.
func (r *Registry) Validator(name string) ValidatorFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validators[name]
}
