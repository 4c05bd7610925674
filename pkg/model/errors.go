package model

import "fmt"

// ValidationError reports a per-path failure from a required, enum, or
// declared validator check. It aborts only the offending document's save.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TypeError reports a per-path type coercion failure. Fields with LooseType
// set never produce one; the unparseable value is kept instead.
type TypeError struct {
	Path string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("'%s' invalid type", e.Path)
}
