package handlers

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/workspace"
)

// fakeCapability is a toolchain.Capability test double with just enough
// behavior wired to exercise install_deps.go and run_task.go: the rest of
// the interface is no-ops.
type fakeCapability struct {
	depConfig    toolchain.DependencyConfig
	hasDepConfig bool
	manifest     string

	installCalls int32
	installErr   error

	syncSnapshot toolchain.ProjectSnapshot
	syncErr      error

	runCommand toolchain.Command
}

func (f *fakeCapability) Setup(context.Context, runtimespec.Runtime) (bool, error) { return false, nil }

func (f *fakeCapability) GetDependencyConfigs(runtimespec.Runtime) (toolchain.DependencyConfig, bool) {
	return f.depConfig, f.hasDepConfig
}

func (f *fakeCapability) InstallDeps(context.Context, runtimespec.Runtime, string) (toolchain.InstallResult, error) {
	atomic.AddInt32(&f.installCalls, 1)
	return toolchain.InstallResult{Installed: true}, f.installErr
}

func (f *fakeCapability) SyncProject(context.Context, runtimespec.Runtime, string) (toolchain.ProjectSnapshot, error) {
	return f.syncSnapshot, f.syncErr
}

func (f *fakeCapability) HashManifestDeps(runtimespec.Runtime, string) (interface{}, error) {
	return f.manifest, nil
}

func (f *fakeCapability) HashRunTarget(runtimespec.Runtime, string) (interface{}, error) {
	return nil, nil
}

func (f *fakeCapability) CreateRunTargetCommand(runtimespec.Runtime, string, []string) (toolchain.Command, error) {
	return f.runCommand, nil
}

func newTestEngine(t *testing.T) *cacheengine.Engine {
	t.Helper()
	return cacheengine.New(filepath.Join(t.TempDir(), "cache"), cacheengine.ModeReadWrite, nil, nil)
}

func TestInstallDepsHandlerRunsWhenNoPriorState(t *testing.T) {
	fake := &fakeCapability{hasDepConfig: true, manifest: "v1"}
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)

	ws := workspace.NewInMemoryGraph()
	ws.AddProject(&workspace.ProjectDefinition{ID: id.Id("app"), Root: "app"})

	h := &InstallDepsHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: t.TempDir(),
		Cache: newTestEngine(t),
	}
	a := action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.installCalls))
}

func TestInstallDepsHandlerSkipsWhenUnchanged(t *testing.T) {
	fake := &fakeCapability{hasDepConfig: true, manifest: "v1"}
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)

	ws := workspace.NewInMemoryGraph()
	h := &InstallDepsHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: t.TempDir(),
		Cache: newTestEngine(t),
	}
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	first := action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false)
	status, err := h.Handle(context.Background(), pctx, first, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	second := action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false)
	status, err = h.Handle(context.Background(), pctx, second, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusSkipped, status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.installCalls), "install should only run once across two unchanged calls")
}

func TestInstallDepsHandlerRerunsWhenManifestChanges(t *testing.T) {
	fake := &fakeCapability{hasDepConfig: true, manifest: "v1"}
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)

	ws := workspace.NewInMemoryGraph()
	h := &InstallDepsHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: t.TempDir(),
		Cache: newTestEngine(t),
	}
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	_, err := h.Handle(context.Background(), pctx, action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false), nil)
	require.NoError(t, err)

	fake.manifest = "v2"
	status, err := h.Handle(context.Background(), pctx, action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false), nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.installCalls))
}

func TestInstallDepsHandlerRespectsSkipEnv(t *testing.T) {
	fake := &fakeCapability{hasDepConfig: true, manifest: "v1"}
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)

	ws := workspace.NewInMemoryGraph()
	h := &InstallDepsHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: t.TempDir(),
		Cache: newTestEngine(t),
	}
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	os.Setenv(skipInstallDepsEnv, "1")
	defer os.Unsetenv(skipInstallDepsEnv)

	status, err := h.Handle(context.Background(), pctx, action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false), nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusSkipped, status)
	assert.Zero(t, atomic.LoadInt32(&fake.installCalls))
}

func TestInstallDepsHandlerNoConfigIsPassthrough(t *testing.T) {
	fake := &fakeCapability{hasDepConfig: false}
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)

	ws := workspace.NewInMemoryGraph()
	h := &InstallDepsHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: t.TempDir(),
		Cache: newTestEngine(t),
	}
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, action.NewAction(action.NewInstallWorkspaceDeps(runtimespec.System), false), nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)
	assert.Zero(t, atomic.LoadInt32(&fake.installCalls))
}
