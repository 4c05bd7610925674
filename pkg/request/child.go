package request

import (
	"context"
	"errors"
	"net/url"

	"github.com/formapi/formapi/pkg/store"
)

// MaxChildDepth caps recursive child requests so self-referential chains
// fail fast instead of running away.
const MaxChildDepth = 6

// ErrTooManyChildRequests is returned when the child-request depth cap is
// exceeded. It is fatal only to the offending sub-call.
var ErrTooManyChildRequests = errors.New("too many recursive requests")

// Command describes one internal call replayed through the same
// authorization and execution pipeline as an external request.
type Command struct {
	Method string
	Path   string
	Body   store.Document
	Query  url.Values
	User   *User
}

// Result is what a child request produced.
type Result struct {
	Status int
	Item   store.Document
	Items  []store.Document
}

// ChildCaller executes an internal request against the engine without a
// transport round trip. The server implements it.
type ChildCaller interface {
	Call(ctx context.Context, cmd Command) (*Result, error)
}

// ChildDepth reads the current recursion depth from a context.
func ChildDepth(ctx context.Context) int {
	depth, _ := ctx.Value(childDepthKey).(int)
	return depth
}

// EnterChild increments the recursion depth, failing when the cap is hit.
func EnterChild(ctx context.Context) (context.Context, error) {
	depth := ChildDepth(ctx)
	if depth >= MaxChildDepth {
		return nil, ErrTooManyChildRequests
	}
	return context.WithValue(ctx, childDepthKey, depth+1), nil
}
