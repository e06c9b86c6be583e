package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/hashing"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/statestore"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/workspace"
)

// skipInstallDepsEnv lets an enclosing moon invocation (or a user
// debugging a build) force every install step to be skipped.
const skipInstallDepsEnv = "MOON_SKIP_INSTALL_DEPS"

// installingDepsEnv marks that an install is already underway somewhere
// in this process tree, so a nested invocation does not race it.
const installingDepsEnv = "MOON_INSTALLING_DEPS"

// depsRecord is the durable hash this handler compares against to decide
// whether an install actually needs to rerun.
type depsRecord struct {
	Hash string `json:"hash"`
}

// InstallDepsHandler runs InstallWorkspaceDeps and InstallProjectDeps
// nodes: it hashes the toolchain's manifest/lockfile, compares it with
// the last recorded hash, and only invokes the capability's InstallDeps
// when something changed.
type InstallDepsHandler struct {
	Toolchains    *toolchain.Registry
	Workspace     workspace.Graph
	WorkspaceRoot string
	Cache         *cacheengine.Engine
	Bus           *eventbus.Bus
	Log           hclog.Logger
}

func (h *InstallDepsHandler) Handle(ctx context.Context, pctx *pipeline.Context, a *action.Action, g *actiongraph.Graph) (action.Status, error) {
	rt := a.Node.Runtime
	toolCap, ok := h.Toolchains.Lookup(rt)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: no toolchain registered for %s", rt)
	}

	cfg, ok := toolCap.GetDependencyConfigs(rt)
	if !ok {
		// The builder never creates an install node for a toolchain with
		// no dependency configs, but a future caller might; treat it as
		// nothing to do rather than failing the run.
		return action.StatusPassed, nil
	}

	if os.Getenv(skipInstallDepsEnv) != "" {
		return action.StatusSkipped, nil
	}
	if os.Getenv(installingDepsEnv) != "" {
		return action.StatusSkipped, nil
	}

	dir := h.WorkspaceRoot
	stateKey := rt.Key()
	if a.Node.Kind == action.KindInstallProjectDeps {
		proj, ok := h.Workspace.Project(a.Node.ProjectID)
		if !ok {
			return action.StatusFailed, fmt.Errorf("handlers: unknown project %q", a.Node.ProjectID)
		}
		dir = filepath.Join(h.WorkspaceRoot, proj.Root)
		stateKey = rt.Key() + "|" + proj.ID.String()
	}

	publish(ctx, h.Bus, h.Log, eventbus.DependenciesInstalling{Event: nodeEvent(a)})

	hashOp := action.NewOperation(action.OpHashGeneration)
	a.AddOperation(hashOp)

	digest, err := hashDeps(h.Cache.Hashes(), toolCap, rt, dir, cfg, stateKey)
	hashOp.Finish(statusForErr(err))
	if err != nil {
		publish(ctx, h.Bus, h.Log, eventbus.DependenciesInstalled{Event: nodeEvent(a), Err: err})
		return action.StatusFailed, err
	}

	statePath := h.Cache.States().ToolchainDepsPath(stateKey)
	var prev depsRecord
	readErr := statestore.ReadJSON(statePath, &prev)
	changed := os.IsNotExist(readErr) || prev.Hash != digest
	if readErr != nil && !os.IsNotExist(readErr) {
		return action.StatusFailed, readErr
	}

	if !changed {
		publish(ctx, h.Bus, h.Log, eventbus.DependenciesInstalled{Event: nodeEvent(a)})
		return action.StatusSkipped, nil
	}

	os.Setenv(installingDepsEnv, "1")
	defer os.Unsetenv(installingDepsEnv)

	installOp := action.NewOperation(action.OpProcessExecution)
	a.AddOperation(installOp)

	result, err := toolCap.InstallDeps(ctx, rt, dir)
	installOp.Finish(statusForErr(err))
	for _, rec := range result.Operations {
		op := action.NewOperation(action.OpProcessExecution)
		op.Meta = action.ProcessMeta{Command: rec.Command, ExitCode: rec.ExitCode}
		op.Finish(statusForExitCode(rec.ExitCode))
		a.AddOperation(op)
	}

	if err == nil && h.Cache.Mode().IsWritable() {
		if writeErr := statestore.WriteJSON(statePath, depsRecord{Hash: digest}); writeErr != nil && h.Log != nil {
			h.Log.Warn("failed to persist install-deps state", "error", writeErr)
		}
	}

	publish(ctx, h.Bus, h.Log, eventbus.DependenciesInstalled{Event: nodeEvent(a), Err: err})
	if err != nil {
		return action.StatusFailed, err
	}
	return action.StatusPassed, nil
}

// hashDeps builds the content-addressed digest InstallDeps compares
// against: the toolchain's manifest content plus the lockfile's raw
// bytes, if present.
func hashDeps(store *hashing.Store, toolCap toolchain.Capability, rt runtimespec.Runtime, dir string, cfg toolchain.DependencyConfig, stateKey string) (string, error) {
	hasher := hashing.CreateHasher(stateKey)

	manifestContent, err := toolCap.HashManifestDeps(rt, dir)
	if err != nil {
		return "", fmt.Errorf("handlers: hash manifest deps: %w", err)
	}
	if err := hasher.HashContent("manifest", manifestContent); err != nil {
		return "", err
	}

	if cfg.Lockfile != "" {
		lockBytes, err := os.ReadFile(filepath.Join(dir, cfg.Lockfile))
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("handlers: read lockfile: %w", err)
		}
		if err := hasher.HashContent("lockfile", string(lockBytes)); err != nil {
			return "", err
		}
	}

	return store.SaveManifest(hasher)
}

func statusForErr(err error) action.Status {
	if err != nil {
		return action.StatusFailed
	}
	return action.StatusPassed
}

func statusForExitCode(code int) action.Status {
	if code != 0 {
		return action.StatusFailed
	}
	return action.StatusPassed
}
