package actiongraph

import (
	"fmt"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/id"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/target"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/util"
	"github.com/moonrepo/moon/internal/workspace"
)

// BuildOptions parameterize a single Build call.
type BuildOptions struct {
	// CurrentProject resolves Scope==ScopeSelf/ScopeDeps on the initial
	// locators (the project the CLI was invoked from).
	CurrentProject id.Id
	AffectedOnly   bool
	TouchedFiles   []string
	Interactive    bool
	Persistent     bool
}

// Builder constructs action graphs from a workspace graph and a toolchain
// registry. One Builder can run many independent Build calls.
type Builder struct {
	ws         workspace.Graph
	toolchains *toolchain.Registry
}

// New returns a Builder reading project/task definitions from ws and
// resolving toolchain capabilities from toolchains.
func New(ws workspace.Graph, toolchains *toolchain.Registry) *Builder {
	return &Builder{ws: ws, toolchains: toolchains}
}

// build holds the per-Build mutable state: the graph under construction,
// memoization tables for each node kind, and the gray/black cycle-detection
// bookkeeping for the two recursive node kinds (SyncProject, RunTask).
type build struct {
	opts BuildOptions

	g Graph

	setupIDs map[string]string // runtime key -> SetupToolchain id
	instWIDs map[string]string // runtime key -> InstallWorkspaceDeps id
	instPIDs map[string]string // runtime key|project -> InstallProjectDeps id

	syncDone     map[string]string // runtime key|project -> SyncProject id
	syncVisiting map[string]bool
	syncLabel    map[string]string

	taskDone     map[string]string // project:task -> RunTask id
	taskVisiting map[string]bool
	taskLabel    map[string]string
}

// Build constructs the action graph for locators under opts.
func (b *Builder) Build(locators []target.Target, opts BuildOptions) (*Graph, error) {
	st := &build{
		opts:         opts,
		g:            *newGraph(),
		setupIDs:     make(map[string]string),
		instWIDs:     make(map[string]string),
		instPIDs:     make(map[string]string),
		syncDone:     make(map[string]string),
		syncVisiting: make(map[string]bool),
		syncLabel:    make(map[string]string),
		taskDone:     make(map[string]string),
		taskVisiting: make(map[string]bool),
		taskLabel:    make(map[string]string),
	}

	// Rule 1: a single SyncWorkspace root is always present.
	st.g.insert(action.NewSyncWorkspace(), false)

	var affected util.Set[id.Id]
	if opts.AffectedOnly {
		affected = affectedProjects(b.ws, opts.TouchedFiles)
	}

	for _, loc := range locators {
		pairs, err := b.expandScope(loc, opts.CurrentProject, nil)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			if opts.AffectedOnly && !affected.Has(p.Project) {
				continue
			}
			if _, err := b.resolveTask(st, p.Project, p.Task, nil); err != nil {
				return nil, err
			}
		}
	}

	return &st.g, nil
}

// projTask names one project/task pair, the unit BFS/DFS traversal works
// over once a Target's scope has been expanded (rule 7).
type projTask struct {
	Project id.Id
	Task    id.Id
}

// expandScope resolves a Target's scope (rule 7) into concrete project/task
// pairs, excluding self per "Self-edges are eliminated". excludeProject, if
// non-empty, is additionally dropped from tag/all expansions — used when
// expanding a task-dependency target so the owning task never depends on
// itself.
func (b *Builder) expandScope(t target.Target, currentProject id.Id, excludeProject *id.Id) ([]projTask, error) {
	switch t.Scope {
	case target.ScopeProject:
		return []projTask{{Project: t.Project, Task: t.Task}}, nil

	case target.ScopeSelf:
		if currentProject == "" {
			return nil, fmt.Errorf("actiongraph: target %q has no current project to resolve against", t)
		}
		return []projTask{{Project: currentProject, Task: t.Task}}, nil

	case target.ScopeDeps:
		if currentProject == "" {
			return nil, fmt.Errorf("actiongraph: target %q has no current project to resolve against", t)
		}
		proj, ok := b.ws.Project(currentProject)
		if !ok {
			return nil, fmt.Errorf("actiongraph: unknown project %q", currentProject)
		}
		out := make([]projTask, 0, len(proj.Dependencies))
		for _, dep := range proj.Dependencies {
			out = append(out, projTask{Project: dep, Task: t.Task})
		}
		return out, nil

	case target.ScopeTag:
		projects := b.ws.ProjectsWithTag(t.Tag)
		out := make([]projTask, 0, len(projects))
		for _, p := range projects {
			if excludeProject != nil && p.ID == *excludeProject {
				continue
			}
			if _, ok := p.Tasks[t.Task]; ok {
				out = append(out, projTask{Project: p.ID, Task: t.Task})
			}
		}
		return out, nil

	case target.ScopeAll:
		projects := b.ws.ProjectsWithTask(t.Task)
		out := make([]projTask, 0, len(projects))
		for _, p := range projects {
			if excludeProject != nil && p.ID == *excludeProject {
				continue
			}
			out = append(out, projTask{Project: p.ID, Task: t.Task})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("actiongraph: target %q has an invalid scope", t)
	}
}

// ensureSetupToolchain inserts SetupToolchain{rt} with an edge to
// SyncWorkspace (rule 2), memoized per distinct runtime.
func (b *Builder) ensureSetupToolchain(st *build, rt runtimespec.Runtime) string {
	key := rt.Key()
	if id, ok := st.setupIDs[key]; ok {
		return id
	}
	nodeID, _ := st.g.insert(action.NewSetupToolchain(rt), false)
	st.setupIDs[key] = nodeID
	rootID, _ := st.g.insert(action.NewSyncWorkspace(), false)
	st.g.addEdge(nodeID, rootID)
	return nodeID
}

// ensureInstallNodes inserts the Install* node(s) this runtime's toolchain
// capability needs (rule 3), scoped per GetDependencyConfigs. Returns nil
// if the toolchain has no install step (e.g. the system runtime).
func (b *Builder) ensureInstallNodes(st *build, rt runtimespec.Runtime, project id.Id) []string {
	setupID := b.ensureSetupToolchain(st, rt)

	toolCap, ok := b.toolchains.Lookup(rt)
	if !ok {
		return nil
	}
	cfg, ok := toolCap.GetDependencyConfigs(rt)
	if !ok {
		return nil
	}

	switch cfg.Scope {
	case toolchain.ScopeWorkspace:
		key := rt.Key()
		if id, ok := st.instWIDs[key]; ok {
			return []string{id}
		}
		nodeID, _ := st.g.insert(action.NewInstallWorkspaceDeps(rt), false)
		st.instWIDs[key] = nodeID
		st.g.addEdge(nodeID, setupID)
		return []string{nodeID}

	case toolchain.ScopePerProject:
		key := rt.Key() + "|" + string(project)
		if id, ok := st.instPIDs[key]; ok {
			return []string{id}
		}
		nodeID, _ := st.g.insert(action.NewInstallProjectDeps(rt, project), false)
		st.instPIDs[key] = nodeID
		st.g.addEdge(nodeID, setupID)
		return []string{nodeID}

	default: // toolchain.ScopeNone
		return nil
	}
}

// ensureSyncProject inserts SyncProject{rt,project} (rule 4), with edges to
// SetupToolchain and to every project dependency's SyncProject. Detects
// project-dependency cycles via a gray/black marker set: a
// project currently "gray" (syncVisiting) re-encountered mid-traversal is a
// cycle; a "black" (syncDone) project is safe to reuse.
func (b *Builder) ensureSyncProject(st *build, rt runtimespec.Runtime, project id.Id, path []string) (string, error) {
	key := rt.Key() + "|" + string(project)
	label := fmt.Sprintf("SyncProject(%s)", project)

	if id, ok := st.syncDone[key]; ok {
		return id, nil
	}
	if st.syncVisiting[key] {
		return "", cycleFrom(path, key, st.syncLabel, label)
	}

	st.syncVisiting[key] = true
	st.syncLabel[key] = label
	defer delete(st.syncVisiting, key)

	nodeID, _ := st.g.insert(action.NewSyncProject(rt, project), false)
	setupID := b.ensureSetupToolchain(st, rt)
	st.g.addEdge(nodeID, setupID)

	if proj, ok := b.ws.Project(project); ok {
		for _, dep := range proj.Dependencies {
			if dep == project {
				continue // self-edge elimination
			}
			depID, err := b.ensureSyncProject(st, rt, dep, append(path, key))
			if err != nil {
				return "", err
			}
			st.g.addEdge(nodeID, depID)
		}
	}

	st.syncDone[key] = nodeID
	return nodeID, nil
}

// resolveTask inserts RunTask{project,task} and everything it transitively
// needs (rules 4-9): its SyncProject, its runtime's Install* nodes, and
// every task-dependency's RunTask, honoring TaskDependencyConfig.optional
// (rule 6) and eliminating self-edges (rule 7). Task-dependency cycles are
// caught by the same gray/black scheme as ensureSyncProject.
func (b *Builder) resolveTask(st *build, project, task id.Id, path []string) (string, error) {
	key := string(project) + ":" + string(task)

	if id, ok := st.taskDone[key]; ok {
		return id, nil
	}
	if st.taskVisiting[key] {
		return "", cycleFrom(path, key, st.taskLabel, fmt.Sprintf("RunTask(%s:%s)", project, task))
	}

	def, ok := b.ws.Task(project, task)
	if !ok {
		return "", fmt.Errorf("actiongraph: task %q not found in project %q", task, project)
	}

	st.taskVisiting[key] = true
	st.taskLabel[key] = fmt.Sprintf("RunTask(%s:%s)", project, task)
	defer delete(st.taskVisiting, key)

	rt := def.Runtime
	tgt := target.Target{Scope: target.ScopeProject, Project: project, Task: task}
	runNode := action.NewRunTask(tgt, rt, action.RunTaskOptions{
		Args:        def.Args,
		Env:         def.Env,
		Interactive: def.Interactive || st.opts.Interactive,
		Persistent:  def.Persistent || st.opts.Persistent,
	})
	runID, _ := st.g.insert(runNode, def.AllowFailure)

	syncID, err := b.ensureSyncProject(st, rt, project, nil)
	if err != nil {
		return "", err
	}
	st.g.addEdge(runID, syncID)

	for _, instID := range b.ensureInstallNodes(st, rt, project) {
		st.g.addEdge(runID, instID)
	}

	for _, dep := range def.Deps {
		depTarget, perr := target.Parse(dep.Target)
		if perr != nil {
			if dep.Optional {
				continue
			}
			return "", fmt.Errorf("actiongraph: task %s: %w", key, perr)
		}

		selfProject := project
		pairs, serr := b.expandScope(depTarget, project, &selfProject)
		if serr != nil {
			if dep.Optional {
				continue
			}
			return "", serr
		}

		for _, p := range pairs {
			if p.Project == project && p.Task == task {
				continue // self-edge elimination
			}
			childID, rerr := b.resolveTask(st, p.Project, p.Task, append(path, key))
			if rerr != nil {
				if dep.Optional {
					continue
				}
				return "", rerr
			}
			st.g.addEdge(runID, childID)
		}
	}

	st.taskDone[key] = runID
	return runID, nil
}

// cycleFrom builds an *action.CycleError from the path of keys currently
// being resolved plus the key that closes the cycle, rendering each as its
// recorded node label so the cycle prints as a readable list of node
// labels.
func cycleFrom(path []string, closingKey string, labels map[string]string, closingLabel string) error {
	start := 0
	for i, k := range path {
		if k == closingKey {
			start = i
			break
		}
	}
	participants := make([]string, 0, len(path)-start+1)
	for _, k := range path[start:] {
		participants = append(participants, labels[k])
	}
	participants = append(participants, closingLabel)
	return &action.CycleError{Participants: participants}
}
