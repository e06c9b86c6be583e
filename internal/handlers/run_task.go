package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/ci"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/fileglob"
	"github.com/moonrepo/moon/internal/hashing"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/process"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/target"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/vcs"
	"github.com/moonrepo/moon/internal/workspace"
)

// RunTaskHandler executes a project's task: it builds a content-addressed
// hash over the task's inputs and upstream state, checks the cache engine
// for a hit before ever invoking a process, and otherwise runs the task
// and archives its outputs.
type RunTaskHandler struct {
	Toolchains    *toolchain.Registry
	Workspace     workspace.Graph
	WorkspaceRoot string
	Cache         *cacheengine.Engine
	Processes     *process.Manager
	VCS           vcs.Provider
	Bus           *eventbus.Bus
	Log           hclog.Logger
}

// cacheEnabled reports whether this task's cache should be consulted:
// the task opts in, and the workspace is under a VCS moon can use to
// detect drift against (an uncontrolled working tree makes "unchanged
// since last run" unknowable).
func (h *RunTaskHandler) cacheEnabled(def *workspace.TaskDefinition) bool {
	v := h.VCS
	if v == nil {
		v = vcs.Disabled
	}
	return def.Cache && v.IsEnabled()
}

func (h *RunTaskHandler) Handle(ctx context.Context, pctx *pipeline.Context, a *action.Action, g *actiongraph.Graph) (action.Status, error) {
	tgt := a.Node.Target
	def, ok := h.Workspace.Task(tgt.Project, tgt.Task)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: unknown task %s", tgt)
	}

	if !def.RunInCI && ci.IsCI() {
		return action.StatusSkipped, nil
	}

	proj, ok := h.Workspace.Project(tgt.Project)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: unknown project %q", tgt.Project)
	}
	projectRoot := filepath.Join(h.WorkspaceRoot, proj.Root)

	rt := a.Node.Runtime
	toolCap, ok := h.Toolchains.Lookup(rt)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: no toolchain registered for %s", rt)
	}

	publish(ctx, h.Bus, h.Log, eventbus.TargetRunning{Event: nodeEvent(a)})

	hashOp := action.NewOperation(action.OpHashGeneration)
	a.AddOperation(hashOp)
	digest, err := h.hashTarget(toolCap, rt, tgt, def, projectRoot, a, g, pctx)
	hashOp.Finish(statusForErr(err))
	if err != nil {
		return h.finishTarget(ctx, pctx, a, tgt, "", action.StatusFailed, err)
	}

	cacheEnabled := h.cacheEnabled(def)
	if cacheEnabled {
		if status, hydrated := h.tryHydrate(digest, projectRoot, a); hydrated {
			return h.finishTarget(ctx, pctx, a, tgt, digest, status, nil)
		}
	}

	if def.Mutex != "" {
		mu := pctx.NamedMutex(def.Mutex)
		mutexOp := action.NewOperation(action.OpMutexAcquisition)
		a.AddOperation(mutexOp)
		mu.Lock()
		mutexOp.Finish(action.StatusPassed)
		defer mu.Unlock()
	}

	program := def.Command
	if program == "" {
		program = string(def.ID)
	}
	args := def.Args
	if def.AffectedFiles == workspace.AffectedFilesArgs || def.AffectedFiles == workspace.AffectedFilesBoth {
		args = append(append([]string{}, args...), affectedFilesFor(pctx.TouchedFiles, projectRoot, h.WorkspaceRoot)...)
	}
	cmdSpec, err := toolCap.CreateRunTargetCommand(rt, projectRoot, append([]string{program}, args...))
	if err != nil {
		return h.finishTarget(ctx, pctx, a, tgt, digest, action.StatusFailed, err)
	}
	if def.AffectedFiles == workspace.AffectedFilesEnv || def.AffectedFiles == workspace.AffectedFilesBoth {
		if cmdSpec.Env == nil {
			cmdSpec.Env = map[string]string{}
		}
		cmdSpec.Env["MOON_AFFECTED_FILES"] = strings.Join(affectedFilesFor(pctx.TouchedFiles, projectRoot, h.WorkspaceRoot), ",")
	}

	status, runErr := h.run(ctx, cmdSpec, projectRoot, tgt, def, a)
	if runErr == nil && cacheEnabled && h.Cache.Mode().IsWritable() {
		h.archiveOutputs(digest, projectRoot, def, a)
	}
	return h.finishTarget(ctx, pctx, a, tgt, digest, status, runErr)
}

// hashTarget assembles the content-addressed digest this run compares
// for cache hits: the command itself, declared inputs, upstream
// dependency hashes, and any toolchain-specific content.
func (h *RunTaskHandler) hashTarget(
	toolCap toolchain.Capability,
	rt runtimespec.Runtime,
	tgt target.Target,
	def *workspace.TaskDefinition,
	projectRoot string,
	a *action.Action,
	g *actiongraph.Graph,
	pctx *pipeline.Context,
) (string, error) {
	hasher := hashing.CreateHasher(tgt.String())

	if err := hasher.HashContent("command", map[string]interface{}{
		"command": def.Command,
		"args":    def.Args,
		"env":     def.Env,
	}); err != nil {
		return "", err
	}

	inputFiles, err := fileglob.Expand(projectRoot, def.Inputs, nil)
	if err != nil {
		return "", err
	}
	inputContents := make(map[string]string, len(inputFiles))
	for _, rel := range inputFiles {
		data, readErr := os.ReadFile(filepath.Join(projectRoot, rel))
		if readErr != nil {
			continue // deleted between glob expansion and read; not fatal
		}
		inputContents[rel] = fmt.Sprintf("%x", data)
	}
	if err := hasher.HashContent("inputs", inputContents); err != nil {
		return "", err
	}

	if extra, err := toolCap.HashRunTarget(rt, projectRoot); err == nil {
		_ = hasher.HashContent("toolchain", extra)
	}

	var upstream []string
	if g != nil {
		for _, depID := range g.DependenciesOf(a.Node.Identity()) {
			depAction, ok := g.Action(depID)
			if !ok || depAction.Node.Kind != action.KindRunTask {
				continue
			}
			if st, ok := pctx.TargetState(depAction.Node.Target.String()); ok {
				upstream = append(upstream, st.Hash)
			}
		}
	}
	if err := hasher.HashContent("upstream", upstream); err != nil {
		return "", err
	}

	return h.Cache.Hashes().SaveManifest(hasher)
}

func (h *RunTaskHandler) tryHydrate(digest, projectRoot string, a *action.Action) (action.Status, bool) {
	hydrateOp := action.NewOperation(action.OpOutputHydration)
	a.AddOperation(hydrateOp)

	if hydrated, _, err := h.Cache.FetchLocal(digest, projectRoot); err == nil && hydrated {
		hydrateOp.Finish(action.StatusPassed)
		return action.StatusCached, true
	}
	if hydrated, _, err := h.Cache.FetchRemote(digest, projectRoot); err == nil && hydrated {
		hydrateOp.Finish(action.StatusPassed)
		return action.StatusCachedFromRemote, true
	}
	hydrateOp.Finish(action.StatusSkipped)
	return action.StatusPending, false
}

func (h *RunTaskHandler) run(ctx context.Context, cmdSpec toolchain.Command, projectRoot string, tgt target.Target, def *workspace.TaskDefinition, a *action.Action) (action.Status, error) {
	runOp := action.NewOperation(action.OpTaskExecution)
	a.AddOperation(runOp)

	// Built with exec.Command, not exec.CommandContext: ctx cancellation
	// (timeout or global signal) is driven through Processes.Exec's
	// graceful-stop path instead of exec.Cmd's default immediate,
	// single-process kill.
	cmd := exec.Command(cmdSpec.Program, cmdSpec.Args...)
	cmd.Dir = projectRoot
	cmd.Env = buildEnv(cmdSpec, projectRoot, tgt, def, h.WorkspaceRoot)

	var out, errOut bytes.Buffer
	if def.Interactive || def.Persistent {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &errOut
	}

	err := h.Processes.Exec(ctx, cmd)

	meta := action.ProcessMeta{Command: cmdSpec.Program, Stdout: out.String(), Stderr: errOut.String()}
	status := action.StatusPassed
	if err != nil {
		status = action.StatusFailed
		if exitErr, ok := err.(*process.ChildExit); ok {
			meta.ExitCode = exitErr.ExitCode
		}
	}
	runOp.Meta = meta
	runOp.Finish(status)
	return status, err
}

func (h *RunTaskHandler) archiveOutputs(digest, projectRoot string, def *workspace.TaskDefinition, a *action.Action) {
	outputs, err := fileglob.Expand(projectRoot, def.Outputs, nil)
	if err != nil || len(outputs) == 0 {
		return
	}
	archiveOp := action.NewOperation(action.OpArchiveCreation)
	a.AddOperation(archiveOp)
	archiveOp.Finish(statusForErr(h.Cache.StoreOutputs(digest, projectRoot, outputs)))
}

func (h *RunTaskHandler) finishTarget(ctx context.Context, pctx *pipeline.Context, a *action.Action, tgt target.Target, digest string, status action.Status, err error) (action.Status, error) {
	pctx.SetTargetState(tgt.String(), pipeline.TargetState{Status: status.String(), Hash: digest})
	publish(ctx, h.Bus, h.Log, eventbus.TargetRan{Event: nodeEvent(a), Status: status.String(), Err: err})
	return status, err
}

func buildEnv(cmdSpec toolchain.Command, projectRoot string, tgt target.Target, def *workspace.TaskDefinition, workspaceRoot string) []string {
	env := os.Environ()
	builtins := map[string]string{
		"PWD":                  projectRoot,
		"MOON_PROJECT_ID":      tgt.Project.String(),
		"MOON_PROJECT_ROOT":    projectRoot,
		"MOON_PROJECT_SOURCE":  strippedRoot(projectRoot, workspaceRoot),
		"MOON_TARGET":          tgt.String(),
		"MOON_WORKSPACE_ROOT":  workspaceRoot,
		"MOON_WORKING_DIR":     projectRoot,
		"MOON_CACHE_DIR":       filepath.Join(workspaceRoot, ".moon", "cache"),
		"MOON_PROJECT_SNAPSHOT": filepath.Join(workspaceRoot, ".moon", "cache", "states", "projects", tgt.Project.String(), "snapshot.json"),
	}
	if proto, ok := os.LookupEnv("PROTO_VERSION"); ok {
		builtins["PROTO_VERSION"] = proto
	}

	// User- and toolchain-supplied env is applied first so the MOON_* and
	// PWD built-ins always win on key collision, never the other way round.
	merged := make(map[string]string, len(def.Env)+len(cmdSpec.Env)+len(builtins))
	for k, v := range def.Env {
		merged[k] = v
	}
	for k, v := range cmdSpec.Env {
		merged[k] = v
	}
	for k, v := range builtins {
		merged[k] = v
	}
	for k, v := range merged {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// affectedFilesFor narrows the run's touched files down to the ones that
// fall under projectRoot, relative to it; an empty result becomes ["."]
// so a task's affected-files injection always has at least one entry.
func affectedFilesFor(touchedFiles []string, projectRoot, workspaceRoot string) []string {
	relRoot := strippedRoot(projectRoot, workspaceRoot)
	var out []string
	for _, f := range touchedFiles {
		f = filepath.ToSlash(f)
		if relRoot == "" || relRoot == "." || f == relRoot || strings.HasPrefix(f, relRoot+"/") {
			rel := strings.TrimPrefix(strings.TrimPrefix(f, relRoot), "/")
			if rel == "" {
				rel = "."
			}
			out = append(out, rel)
		}
	}
	if len(out) == 0 {
		out = []string{"."}
	}
	return out
}

func strippedRoot(projectRoot, workspaceRoot string) string {
	rel, err := filepath.Rel(workspaceRoot, projectRoot)
	if err != nil {
		return projectRoot
	}
	return filepath.ToSlash(rel)
}
