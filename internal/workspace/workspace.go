// Package workspace declares the workspace graph collaborator (C5): the
// upstream, static view of projects/tasks/dependencies the action graph
// builder (internal/actiongraph) consumes. Config parsing that produces
// this view is out of scope; this package only names the interface and
// supplies an in-memory reference implementation for tests.
//
// Grounded on the original internal/graph.CompleteGraph (WorkspaceGraph
// dag.AcyclicGraph, WorkspaceInfos Catalog, TaskDefinitions map) and
// internal/workspace.Catalog, generalized from turbo's
// package.json/turbo.json-derived view to moon's project/task/runtime
// model.
package workspace

import (
	"fmt"
	"sort"

	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/runtimespec"
)

// TaskDependencyConfig drives an edge in the action graph.
type TaskDependencyConfig struct {
	Target   string
	Args     []string
	Env      map[string]string
	Optional bool
}

// AffectedFilesMode controls how a RunTask injects the touched-files
// subset relevant to its project: not at all, as
// trailing args, as an env var, or both.
type AffectedFilesMode string

const (
	AffectedFilesNone AffectedFilesMode = ""
	AffectedFilesArgs AffectedFilesMode = "args"
	AffectedFilesEnv  AffectedFilesMode = "env"
	AffectedFilesBoth AffectedFilesMode = "both"
)

// TaskDefinition is the static definition of one project's task, as
// resolved by config parsing.
type TaskDefinition struct {
	ID             id.Id
	Command        string
	Args           []string
	Env            map[string]string
	Deps           []TaskDependencyConfig
	Inputs         []string
	Outputs        []string
	Runtime        runtimespec.Runtime
	Interactive    bool
	Persistent     bool
	Mutex          string
	RunInCI        bool
	AllowFailure   bool
	Cache          bool
	AffectedFiles  AffectedFilesMode
}

// ProjectDefinition is the static definition of one project.
type ProjectDefinition struct {
	ID           id.Id
	Root         string // workspace-relative
	Dependencies []id.Id
	Tags         []id.Id
	Tasks        map[id.Id]*TaskDefinition
}

// Graph is the workspace graph collaborator: the fixed query surface the
// action graph builder needs. Config-parsing implementations (reading
// moon.yml/workspace.yml) live outside this repo; only the contract and
// an in-memory double are defined here.
type Graph interface {
	// Project returns the named project's definition, or false if it
	// doesn't exist.
	Project(projectID id.Id) (*ProjectDefinition, bool)
	// Projects returns every project in the workspace, in an
	// unspecified order (callers sort when order matters).
	Projects() []*ProjectDefinition
	// ProjectsWithTag returns every project carrying tag.
	ProjectsWithTag(tag id.Id) []*ProjectDefinition
	// ProjectsWithTask returns every project that defines taskID.
	ProjectsWithTask(taskID id.Id) []*ProjectDefinition
	// Task returns a project's task definition, or false if undefined.
	Task(projectID, taskID id.Id) (*TaskDefinition, bool)
}

// InMemoryGraph is a reference Graph implementation backed by plain Go
// maps, used by tests and by the in-process moon CLI wiring in cmd/moon.
type InMemoryGraph struct {
	projects map[id.Id]*ProjectDefinition
}

// NewInMemoryGraph returns an empty graph ready for AddProject calls.
func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{projects: make(map[id.Id]*ProjectDefinition)}
}

// AddProject registers a project definition, replacing any existing
// definition with the same ID.
func (g *InMemoryGraph) AddProject(def *ProjectDefinition) {
	if def.Tasks == nil {
		def.Tasks = make(map[id.Id]*TaskDefinition)
	}
	g.projects[def.ID] = def
}

// AddTask attaches a task definition to an already-registered project.
func (g *InMemoryGraph) AddTask(projectID id.Id, def *TaskDefinition) error {
	proj, ok := g.projects[projectID]
	if !ok {
		return fmt.Errorf("workspace: unknown project %q", projectID)
	}
	proj.Tasks[def.ID] = def
	return nil
}

func (g *InMemoryGraph) Project(projectID id.Id) (*ProjectDefinition, bool) {
	p, ok := g.projects[projectID]
	return p, ok
}

func (g *InMemoryGraph) Projects() []*ProjectDefinition {
	out := make([]*ProjectDefinition, 0, len(g.projects))
	for _, p := range g.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *InMemoryGraph) ProjectsWithTag(tag id.Id) []*ProjectDefinition {
	var out []*ProjectDefinition
	for _, p := range g.Projects() {
		for _, t := range p.Tags {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (g *InMemoryGraph) ProjectsWithTask(taskID id.Id) []*ProjectDefinition {
	var out []*ProjectDefinition
	for _, p := range g.Projects() {
		if _, ok := p.Tasks[taskID]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (g *InMemoryGraph) Task(projectID, taskID id.Id) (*TaskDefinition, bool) {
	p, ok := g.projects[projectID]
	if !ok {
		return nil, false
	}
	t, ok := p.Tasks[taskID]
	return t, ok
}
