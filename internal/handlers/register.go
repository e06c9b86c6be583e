package handlers

import (
	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/process"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/vcs"
	"github.com/moonrepo/moon/internal/workspace"
)

// Deps collects the collaborators every handler needs, so cmd/moon can
// construct the full registry in one call.
type Deps struct {
	Toolchains    *toolchain.Registry
	Workspace     workspace.Graph
	WorkspaceRoot string
	Cache         *cacheengine.Engine
	Processes     *process.Manager
	VCS           vcs.Provider
	Bus           *eventbus.Bus
	Log           hclog.Logger
}

// NewRegistry builds a pipeline.HandlerRegistry with all six ActionNode
// variants wired to their handler.
func NewRegistry(d Deps) pipeline.HandlerRegistry {
	reg := pipeline.NewHandlerRegistry()

	if d.VCS == nil {
		d.VCS = vcs.Disabled
	}

	reg.Register(action.KindSyncWorkspace, &SyncWorkspaceHandler{
		Cache: d.Cache, Bus: d.Bus, Log: d.Log,
	})
	reg.Register(action.KindSetupToolchain, &SetupToolchainHandler{
		Toolchains: d.Toolchains, Bus: d.Bus, Log: d.Log,
	})
	reg.Register(action.KindInstallWorkspaceDeps, &InstallDepsHandler{
		Toolchains: d.Toolchains, Workspace: d.Workspace, WorkspaceRoot: d.WorkspaceRoot,
		Cache: d.Cache, Bus: d.Bus, Log: d.Log,
	})
	reg.Register(action.KindInstallProjectDeps, &InstallDepsHandler{
		Toolchains: d.Toolchains, Workspace: d.Workspace, WorkspaceRoot: d.WorkspaceRoot,
		Cache: d.Cache, Bus: d.Bus, Log: d.Log,
	})
	reg.Register(action.KindSyncProject, &SyncProjectHandler{
		Toolchains: d.Toolchains, Workspace: d.Workspace, WorkspaceRoot: d.WorkspaceRoot,
		States: d.Cache.States(), Bus: d.Bus, Log: d.Log,
	})
	reg.Register(action.KindRunTask, &RunTaskHandler{
		Toolchains: d.Toolchains, Workspace: d.Workspace, WorkspaceRoot: d.WorkspaceRoot,
		Cache: d.Cache, Processes: d.Processes, VCS: d.VCS, Bus: d.Bus, Log: d.Log,
	})

	return reg
}
