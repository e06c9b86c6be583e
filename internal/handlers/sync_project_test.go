package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/statestore"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/workspace"
)

func newSyncTestHandler(t *testing.T, fake *fakeCapability) (*SyncProjectHandler, workspace.Graph, string) {
	t.Helper()
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)

	ws := workspace.NewInMemoryGraph()
	ws.AddProject(&workspace.ProjectDefinition{
		ID: id.Id("app"), Root: "app",
		Dependencies: []id.Id{id.Id("lib")},
		Tags:         []id.Id{id.Id("node")},
	})

	root := t.TempDir()
	cacheDir := filepath.Join(root, ".moon", "cache")
	h := &SyncProjectHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: root,
		States: statestore.NewStore(cacheDir),
	}
	return h, ws, cacheDir
}

func TestSyncProjectHandlerPersistsSnapshot(t *testing.T) {
	fake := &fakeCapability{syncSnapshot: toolchain.ProjectSnapshot{
		Changed: false,
		Fields:  map[string]interface{}{"packageJson": "abc123"},
	}}
	h, _, cacheDir := newSyncTestHandler(t, fake)

	a := action.NewAction(action.NewSyncProject(runtimespec.System, id.Id("app")), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	snap, ok, err := statestore.NewStore(cacheDir).LoadProjectSnapshot("app")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"lib"}, snap.Dependencies)
	assert.Equal(t, []string{"node"}, snap.Tags)
	assert.Equal(t, "abc123", snap.FileHashes["packageJson"])
}

func TestSyncProjectHandlerInvalidWhenChangedDuringCI(t *testing.T) {
	fake := &fakeCapability{syncSnapshot: toolchain.ProjectSnapshot{Changed: true}}
	h, _, _ := newSyncTestHandler(t, fake)

	os.Setenv("CI", "true")
	defer os.Unsetenv("CI")

	a := action.NewAction(action.NewSyncProject(runtimespec.System, id.Id("app")), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.Error(t, err)
	assert.Equal(t, action.StatusInvalid, status)
}

func TestSyncProjectHandlerChangedOutsideCIPasses(t *testing.T) {
	fake := &fakeCapability{syncSnapshot: toolchain.ProjectSnapshot{Changed: true}}
	h, _, _ := newSyncTestHandler(t, fake)

	a := action.NewAction(action.NewSyncProject(runtimespec.System, id.Id("app")), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)
}

func TestSyncProjectHandlerUnknownProjectFails(t *testing.T) {
	fake := &fakeCapability{}
	reg := toolchain.NewRegistry()
	reg.Register("system", fake)
	ws := workspace.NewInMemoryGraph()

	h := &SyncProjectHandler{
		Toolchains: reg, Workspace: ws, WorkspaceRoot: t.TempDir(),
		States: statestore.NewStore(t.TempDir()),
	}
	a := action.NewAction(action.NewSyncProject(runtimespec.System, id.Id("missing")), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.Error(t, err)
	assert.Equal(t, action.StatusFailed, status)
}
