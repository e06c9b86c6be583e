package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/process"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/target"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/toolchain/system"
	"github.com/moonrepo/moon/internal/workspace"
)

func newRunTaskHandler(t *testing.T, ws *workspace.InMemoryGraph) *RunTaskHandler {
	t.Helper()
	reg := toolchain.NewRegistry()
	reg.Register("system", system.New())

	return &RunTaskHandler{
		Toolchains:    reg,
		Workspace:     ws,
		WorkspaceRoot: t.TempDir(),
		Cache:         newTestEngine(t),
		Processes:     process.NewManager(hclog.NewNullLogger()),
	}
}

// enabledVCS is a fake vcs.Provider that reports an always-usable
// repository, standing in for a real git checkout in tests that exercise
// the VCS-gated caching path without shelling out to git.
type enabledVCS struct{}

func (enabledVCS) ChangedFiles(string, bool) ([]string, error) { return nil, nil }
func (enabledVCS) RepoRoot() string                             { return "" }
func (enabledVCS) CurrentBranch() (string, error)               { return "main", nil }
func (enabledVCS) IsEnabled() bool                              { return true }

func withProject(t *testing.T, def *workspace.TaskDefinition) *workspace.InMemoryGraph {
	t.Helper()
	ws := workspace.NewInMemoryGraph()
	ws.AddProject(&workspace.ProjectDefinition{ID: id.Id("app"), Root: "."})
	require.NoError(t, ws.AddTask(id.Id("app"), def))
	return ws
}

func TestRunTaskHandlerPassesAndRecordsHash(t *testing.T) {
	def := &workspace.TaskDefinition{
		ID: id.Id("build"), Command: "true", RunInCI: true, Runtime: runtimespec.System,
	}
	ws := withProject(t, def)
	h := newRunTaskHandler(t, ws)

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("build")}
	a := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	st, ok := pctx.TargetState(tgt.String())
	require.True(t, ok)
	assert.NotEmpty(t, st.Hash)
	assert.Equal(t, "passed", st.Status)
}

func TestRunTaskHandlerCapturesNonZeroExit(t *testing.T) {
	def := &workspace.TaskDefinition{
		ID: id.Id("lint"), Command: "false", RunInCI: true, Runtime: runtimespec.System,
	}
	ws := withProject(t, def)
	h := newRunTaskHandler(t, ws)

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("lint")}
	a := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.Error(t, err)
	assert.Equal(t, action.StatusFailed, status)

	var exitErr *process.ChildExit
	assert.ErrorAs(t, err, &exitErr)
}

func TestRunTaskHandlerSkipsWhenNotRunInCI(t *testing.T) {
	def := &workspace.TaskDefinition{
		ID: id.Id("dev"), Command: "true", RunInCI: false, Runtime: runtimespec.System,
	}
	ws := withProject(t, def)
	h := newRunTaskHandler(t, ws)

	os.Setenv("CI", "true")
	defer os.Unsetenv("CI")

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("dev")}
	a := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusSkipped, status)
}

func TestRunTaskHandlerCachesOnlyWhenVCSEnabled(t *testing.T) {
	def := &workspace.TaskDefinition{
		ID:      id.Id("build"),
		Command: "sh", Args: []string{"-c", "echo hi > out.txt"},
		RunInCI: true, Runtime: runtimespec.System, Cache: true,
		Outputs: []string{"out.txt"},
	}
	ws := withProject(t, def)
	h := newRunTaskHandler(t, ws)

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("build")}

	// No VCS wired: cacheEnabled must stay false even though the task opts
	// into caching, so a hit on a prior run's digest is never consulted.
	a1 := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	status, err := h.Handle(context.Background(), pipeline.NewContext(t.TempDir(), t.TempDir()), a1, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	// Wiring an enabled VCS provider turns the gate on: a second run with
	// the same task and inputs hydrates from the archive this run stores.
	h.VCS = enabledVCS{}
	a2 := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	status, err = h.Handle(context.Background(), pipeline.NewContext(t.TempDir(), t.TempDir()), a2, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	a3 := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	status, err = h.Handle(context.Background(), pipeline.NewContext(t.TempDir(), t.TempDir()), a3, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusCached, status, "expected this run's digest to hit the archive the prior VCS-enabled run stored")
}

func TestRunTaskHandlerUnknownTaskFails(t *testing.T) {
	ws := workspace.NewInMemoryGraph()
	ws.AddProject(&workspace.ProjectDefinition{ID: id.Id("app"), Root: "."})
	h := newRunTaskHandler(t, ws)

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("missing")}
	a := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.Error(t, err)
	assert.Equal(t, action.StatusFailed, status)
}

func TestRunTaskHandlerInjectsAffectedFilesAsEnv(t *testing.T) {
	def := &workspace.TaskDefinition{
		ID: id.Id("build"), Command: "true", RunInCI: true, Runtime: runtimespec.System,
		AffectedFiles: workspace.AffectedFilesEnv,
	}
	ws := workspace.NewInMemoryGraph()
	ws.AddProject(&workspace.ProjectDefinition{ID: id.Id("app"), Root: "apps/app"})
	require.NoError(t, ws.AddTask(id.Id("app"), def))
	h := newRunTaskHandler(t, ws)
	require.NoError(t, os.MkdirAll(filepath.Join(h.WorkspaceRoot, "apps", "app"), 0o755))

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("build")}
	a := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	pctx := pipeline.NewContext(h.WorkspaceRoot, t.TempDir())
	pctx.TouchedFiles = []string{"apps/app/src/index.ts", "apps/other/README.md"}

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)
}

func TestRunTaskHandlerAcquiresNamedMutex(t *testing.T) {
	def := &workspace.TaskDefinition{
		ID: id.Id("publish"), Command: "true", RunInCI: true, Mutex: "npm-publish", Runtime: runtimespec.System,
	}
	ws := withProject(t, def)
	h := newRunTaskHandler(t, ws)

	tgt := target.Target{Scope: target.ScopeProject, Project: id.Id("app"), Task: id.Id("publish")}
	a := action.NewAction(action.NewRunTask(tgt, runtimespec.System, action.RunTaskOptions{}), false)
	pctx := pipeline.NewContext(t.TempDir(), t.TempDir())

	status, err := h.Handle(context.Background(), pctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, action.StatusPassed, status)

	mu := pctx.NamedMutex("npm-publish")
	locked := mu.TryLock()
	assert.True(t, locked, "mutex must be released once the handler returns")
	if locked {
		mu.Unlock()
	}
}
