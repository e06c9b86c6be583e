package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/ci"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/statestore"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/workspace"
)

// SyncProjectHandler reconciles a single project's generated config for
// its runtime, persisting the resulting snapshot for drift detection
// on the next run.
type SyncProjectHandler struct {
	Toolchains    *toolchain.Registry
	Workspace     workspace.Graph
	WorkspaceRoot string
	States        *statestore.Store
	Bus           *eventbus.Bus
	Log           hclog.Logger
}

func (h *SyncProjectHandler) Handle(ctx context.Context, pctx *pipeline.Context, a *action.Action, g *actiongraph.Graph) (action.Status, error) {
	proj, ok := h.Workspace.Project(a.Node.ProjectID)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: unknown project %q", a.Node.ProjectID)
	}

	rt := a.Node.Runtime
	toolCap, ok := h.Toolchains.Lookup(rt)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: no toolchain registered for %s", rt)
	}

	publish(ctx, h.Bus, h.Log, eventbus.ProjectSyncing{Event: nodeEvent(a)})

	syncOp := action.NewOperation(action.OpSync)
	a.AddOperation(syncOp)

	projectRoot := filepath.Join(h.WorkspaceRoot, proj.Root)
	snapshot, err := toolCap.SyncProject(ctx, rt, projectRoot)
	syncOp.Finish(statusForErr(err))
	if err != nil {
		publish(ctx, h.Bus, h.Log, eventbus.ProjectSynced{Event: nodeEvent(a)})
		return action.StatusFailed, err
	}

	fileHashes := make(map[string]string, len(snapshot.Fields))
	for k, v := range snapshot.Fields {
		fileHashes[k] = fmt.Sprintf("%v", v)
	}
	deps := make([]string, len(proj.Dependencies))
	for i, d := range proj.Dependencies {
		deps[i] = d.String()
	}
	tags := make([]string, len(proj.Tags))
	for i, t := range proj.Tags {
		tags[i] = t.String()
	}

	record := statestore.ProjectSnapshot{
		ProjectID:    proj.ID.String(),
		Dependencies: deps,
		Tags:         tags,
		FileHashes:   fileHashes,
	}
	if saveErr := h.States.SaveProjectSnapshot(record); saveErr != nil {
		publish(ctx, h.Bus, h.Log, eventbus.ProjectSynced{Event: nodeEvent(a), Changed: snapshot.Changed})
		return action.StatusFailed, saveErr
	}

	publish(ctx, h.Bus, h.Log, eventbus.ProjectSynced{Event: nodeEvent(a), Changed: snapshot.Changed})

	// A project whose generated config still drifted while running under
	// CI means a developer forgot to commit a regenerated file locally;
	// moon treats that as a build-breaking condition rather than quietly
	// fixing it up on the CI runner.
	if snapshot.Changed && ci.IsCI() {
		return action.StatusInvalid, fmt.Errorf("handlers: project %q config drifted during CI sync", proj.ID)
	}
	return action.StatusPassed, nil
}
