// Package handlers implements the six ActionNode variants' Handle logic
// as pipeline.Handler values, wired into a pipeline.HandlerRegistry by
// cmd/moon.
//
// Grounded on the original core.Engine.Execute per-task-kind switch and
// runcache.TaskCache/taskhash.Tracker, generalized from "one RunTask kind"
// to the full six-variant action graph this spec builds.
package handlers

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/pipeline"
)

// SyncWorkspaceHandler runs the SyncWorkspace root node: it only ensures
// the cache directory is tagged per the cachedir specification, since
// config loading/project discovery happen before the action graph is
// even built in this design.
type SyncWorkspaceHandler struct {
	Cache *cacheengine.Engine
	Bus   *eventbus.Bus
	Log   hclog.Logger
}

func (h *SyncWorkspaceHandler) Handle(ctx context.Context, pctx *pipeline.Context, a *action.Action, g *actiongraph.Graph) (action.Status, error) {
	publish(ctx, h.Bus, h.Log, eventbus.WorkspaceSyncing{Event: nodeEvent(a)})

	err := h.Cache.EnsureCacheDirTag()

	publish(ctx, h.Bus, h.Log, eventbus.WorkspaceSynced{Event: nodeEvent(a), Changed: err == nil})
	if err != nil {
		return action.StatusFailed, err
	}
	return action.StatusPassed, nil
}
