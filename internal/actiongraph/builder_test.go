package actiongraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/target"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/toolchain/node"
	"github.com/moonrepo/moon/internal/toolchain/system"
	"github.com/moonrepo/moon/internal/workspace"
)

func nodeRuntime() runtimespec.Runtime {
	return runtimespec.Runtime{Toolchain: "node", Version: runtimespec.Version{Kind: runtimespec.VersionToolchain, Spec: "18.0.0"}}
}

func newFixtureWorkspace() *workspace.InMemoryGraph {
	ws := workspace.NewInMemoryGraph()
	rt := nodeRuntime()

	ws.AddProject(&workspace.ProjectDefinition{ID: "app", Dependencies: []id.Id{"lib"}})
	ws.AddProject(&workspace.ProjectDefinition{ID: "lib"})

	_ = ws.AddTask("lib", &workspace.TaskDefinition{ID: "build", Command: "tsc", Runtime: rt})
	_ = ws.AddTask("app", &workspace.TaskDefinition{
		ID: "build", Command: "webpack", Runtime: rt,
		Deps: []workspace.TaskDependencyConfig{{Target: "^:build"}},
	})
	return ws
}

func newFixtureRegistry() *toolchain.Registry {
	reg := toolchain.NewRegistry()
	reg.Register("node", node.New("/workspace"))
	reg.Register("system", system.New())
	return reg
}

func TestBuildInsertsSyncWorkspaceRoot(t *testing.T) {
	ws := newFixtureWorkspace()
	b := New(ws, newFixtureRegistry())

	g, err := b.Build([]target.Target{target.MustParse("app:build")}, BuildOptions{})
	require.NoError(t, err)

	found := false
	for _, id := range g.OrderedIDs() {
		a, _ := g.Action(id)
		if a.Node.Kind == action.KindSyncWorkspace {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildWiresTaskDependencyEdge(t *testing.T) {
	ws := newFixtureWorkspace()
	b := New(ws, newFixtureRegistry())

	g, err := b.Build([]target.Target{target.MustParse("app:build")}, BuildOptions{})
	require.NoError(t, err)

	appBuildID := action.NewRunTask(target.MustParse("app:build"), nodeRuntime(), action.RunTaskOptions{}).Identity()
	libBuildID := action.NewRunTask(target.MustParse("lib:build"), nodeRuntime(), action.RunTaskOptions{}).Identity()

	deps := g.DependenciesOf(appBuildID)
	assert.Contains(t, deps, libBuildID)
}

func TestBuildDetectsTaskCycle(t *testing.T) {
	ws := workspace.NewInMemoryGraph()
	rt := nodeRuntime()
	ws.AddProject(&workspace.ProjectDefinition{ID: "a"})
	_ = ws.AddTask("a", &workspace.TaskDefinition{
		ID: "one", Runtime: rt,
		Deps: []workspace.TaskDependencyConfig{{Target: "~:two"}},
	})
	_ = ws.AddTask("a", &workspace.TaskDefinition{
		ID: "two", Runtime: rt,
		Deps: []workspace.TaskDependencyConfig{{Target: "~:one"}},
	})

	b := New(ws, newFixtureRegistry())
	_, err := b.Build([]target.Target{target.MustParse("a:one")}, BuildOptions{CurrentProject: "a"})
	require.Error(t, err)

	var cycleErr *action.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.NotEmpty(t, cycleErr.Participants)
}

func TestBuildDropsOptionalMissingDependency(t *testing.T) {
	ws := workspace.NewInMemoryGraph()
	rt := nodeRuntime()
	ws.AddProject(&workspace.ProjectDefinition{ID: "a"})
	_ = ws.AddTask("a", &workspace.TaskDefinition{
		ID: "build", Runtime: rt,
		Deps: []workspace.TaskDependencyConfig{{Target: "a:nonexistent", Optional: true}},
	})

	b := New(ws, newFixtureRegistry())
	g, err := b.Build([]target.Target{target.MustParse("a:build")}, BuildOptions{})
	require.NoError(t, err)
	assert.True(t, g.Len() > 0)
}

func TestBuildFailsOnMissingRequiredDependency(t *testing.T) {
	ws := workspace.NewInMemoryGraph()
	rt := nodeRuntime()
	ws.AddProject(&workspace.ProjectDefinition{ID: "a"})
	_ = ws.AddTask("a", &workspace.TaskDefinition{
		ID: "build", Runtime: rt,
		Deps: []workspace.TaskDependencyConfig{{Target: "a:nonexistent"}},
	})

	b := New(ws, newFixtureRegistry())
	_, err := b.Build([]target.Target{target.MustParse("a:build")}, BuildOptions{})
	assert.Error(t, err)
}

func TestBuildDedupesSharedInstallNode(t *testing.T) {
	ws := newFixtureWorkspace()
	b := New(ws, newFixtureRegistry())

	g, err := b.Build([]target.Target{target.MustParse("app:build"), target.MustParse("lib:build")}, BuildOptions{})
	require.NoError(t, err)

	installNodes := 0
	for _, id := range g.OrderedIDs() {
		a, _ := g.Action(id)
		if a.Node.Kind == action.KindInstallWorkspaceDeps {
			installNodes++
		}
	}
	assert.Equal(t, 1, installNodes, "shared runtime must dedupe to a single install node")
}
