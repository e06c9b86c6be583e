package handlers

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/eventbus"
)

// nodeEvent builds the common Event envelope for a.
func nodeEvent(a *action.Action) eventbus.Event {
	return eventbus.Event{NodeID: a.Node.Identity(), Label: a.Node.Label(), Time: time.Now()}
}

// publish is a best-effort Bus.Publish: a nil bus is a no-op, and a
// publish error (a slow or gone subscriber) is logged, never returned,
// since event delivery must never fail a node's own outcome.
func publish(ctx context.Context, bus *eventbus.Bus, log hclog.Logger, event interface{}) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, event); err != nil && log != nil {
		log.Debug("event publish failed", "error", err)
	}
}
