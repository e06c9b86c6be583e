package pipeline

import (
	"context"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
)

// Handler runs one ActionNode variant's work. Common
// pre/post (Start/Finish/Fail bracketing) is handled by the Executor;
// Handle only needs to return the terminal status or an error.
type Handler interface {
	Handle(ctx context.Context, pctx *Context, a *action.Action, g *actiongraph.Graph) (action.Status, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, pctx *Context, a *action.Action, g *actiongraph.Graph) (action.Status, error)

func (f HandlerFunc) Handle(ctx context.Context, pctx *Context, a *action.Action, g *actiongraph.Graph) (action.Status, error) {
	return f(ctx, pctx, a, g)
}

// HandlerRegistry resolves the Handler responsible for each node kind.
type HandlerRegistry map[action.Kind]Handler

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() HandlerRegistry {
	return make(HandlerRegistry)
}

// Register associates kind with h.
func (r HandlerRegistry) Register(kind action.Kind, h Handler) {
	r[kind] = h
}
