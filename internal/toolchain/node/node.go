// Package node implements toolchain.Capability for the node runtime,
// installing/hashing via npm's conventional manifest/lockfile pair.
//
// Grounded on the original internal/packagemanager package-manager
// table (npm.go's Command/Specfile/Lockfile trio), adapted from a
// static capability table into toolchain.Capability's method set.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/toolchain"
)

const (
	specfile = "package.json"
	lockfile = "package-lock.json"
)

// Capability is the node toolchain adapter, installing dependencies at
// the workspace root via npm.
type Capability struct {
	// WorkspaceRoot is where InstallDeps/HashManifestDeps resolve the
	// workspace-scoped lockfile from.
	WorkspaceRoot string
}

// New returns a node Capability rooted at workspaceRoot.
func New(workspaceRoot string) *Capability {
	return &Capability{WorkspaceRoot: workspaceRoot}
}

func (c *Capability) Setup(_ context.Context, _ runtimespec.Runtime) (bool, error) {
	// Managed Node version installs are handled by an external toolchain
	// host (out of scope); assume the pinned version is already present.
	return false, nil
}

func (c *Capability) GetDependencyConfigs(_ runtimespec.Runtime) (toolchain.DependencyConfig, bool) {
	return toolchain.DependencyConfig{
		Lockfile: lockfile,
		Manifest: specfile,
		Scope:    toolchain.ScopeWorkspace,
	}, true
}

func (c *Capability) InstallDeps(ctx context.Context, _ runtimespec.Runtime, dir string) (toolchain.InstallResult, error) {
	cmd := exec.CommandContext(ctx, "npm", "install")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	record := toolchain.OperationRecord{Label: "npm install", Command: "npm install"}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			record.ExitCode = exitErr.ExitCode()
		}
		return toolchain.InstallResult{Operations: []toolchain.OperationRecord{record}}, fmt.Errorf("node: npm install: %w: %s", err, out)
	}
	return toolchain.InstallResult{Installed: true, Operations: []toolchain.OperationRecord{record}}, nil
}

func (c *Capability) SyncProject(_ context.Context, _ runtimespec.Runtime, projectRoot string) (toolchain.ProjectSnapshot, error) {
	manifestPath := filepath.Join(projectRoot, specfile)
	if _, err := os.Stat(manifestPath); err != nil {
		return toolchain.ProjectSnapshot{}, nil
	}
	// A full sync would reconcile workspaces/devDependencies entries;
	// the reference adapter only reports presence, leaving reconciliation
	// to a richer node-specific implementation outside this repo's scope.
	return toolchain.ProjectSnapshot{Changed: false}, nil
}

func (c *Capability) HashManifestDeps(_ runtimespec.Runtime, dir string) (interface{}, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockfile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{"lockfile": ""}, nil
		}
		return nil, fmt.Errorf("node: read lockfile: %w", err)
	}
	return map[string]string{"lockfile": string(data)}, nil
}

func (c *Capability) HashRunTarget(_ runtimespec.Runtime, projectRoot string) (interface{}, error) {
	data, err := os.ReadFile(filepath.Join(projectRoot, specfile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("node: read package.json: %w", err)
	}
	var parsed struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("node: parse package.json: %w", err)
	}
	return parsed, nil
}

func (c *Capability) CreateRunTargetCommand(_ runtimespec.Runtime, _ string, args []string) (toolchain.Command, error) {
	if len(args) == 0 {
		return toolchain.Command{}, fmt.Errorf("node: task has no script/command")
	}
	return toolchain.Command{
		Program: "npm",
		Args:    append([]string{"run"}, args...),
		Env:     map[string]string{},
	}, nil
}
