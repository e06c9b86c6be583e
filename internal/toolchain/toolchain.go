// Package toolchain declares the capability interface: the
// fixed dispatch surface the action graph builder and handlers use to
// deal with a concrete language toolchain (node, system, ...) without
// ever switching on a concrete type. The pipeline receives, per runtime,
// a value implementing Capability.
//
// Grounded on the original internal/packagemanager.PackageManager (a
// capability table of functions/strings describing one package manager),
// generalized from "one package manager" to moon's full capability
// surface (setup, sync, two hashing hooks, command assembly), per
// the "Dynamic dispatch over toolchains" design note: model
// concrete toolchains as tagged values behind a fixed interface rather
// than trait objects.
package toolchain

import (
	"context"

	"github.com/moonrepo/moon/internal/runtimespec"
)

// DependencyScope says where a toolchain installs its dependencies:
// once for the whole workspace, once per project, or not at all.
type DependencyScope int

const (
	// ScopeNone means this toolchain never needs an install step (e.g.
	// the system runtime).
	ScopeNone DependencyScope = iota
	// ScopeWorkspace means dependencies are installed once, at the
	// workspace root (e.g. a single root lockfile).
	ScopeWorkspace
	// ScopePerProject means dependencies are installed independently
	// per project.
	ScopePerProject
)

// DependencyConfig names the lockfile/manifest pair a toolchain's
// install step consults, and the scope at which installation happens.
type DependencyConfig struct {
	Lockfile string
	Manifest string
	Scope    DependencyScope
}

// InstallResult reports what InstallDeps did, so the handler can decide
// status and build operations from it.
type InstallResult struct {
	Installed bool
	Operations []OperationRecord
}

// OperationRecord is a minimal description of work a capability method
// performed, folded into the calling Action's Operations by the handler.
type OperationRecord struct {
	Label    string
	Command  string
	ExitCode int
}

// ProjectSnapshot is what SyncProject returns for persistence by the
// state store.
type ProjectSnapshot struct {
	Changed bool
	Fields  map[string]interface{}
}

// Command is the process invocation CreateRunTargetCommand assembles,
// before the task runner layers on shell wrapping and env built-ins.
type Command struct {
	Program string
	Args    []string
	Env     map[string]string
}

// Capability is the fixed operation set a concrete toolchain (node,
// system, ...) must implement. The pipeline and handlers depend only on
// this interface, never on a concrete toolchain type.
type Capability interface {
	// Setup installs or verifies the toolchain itself for rt (e.g.
	// downloading a pinned Node version). Returns true if an install
	// action actually occurred.
	Setup(ctx context.Context, rt runtimespec.Runtime) (installed bool, err error)

	// GetDependencyConfigs returns the lockfile/manifest/scope this
	// toolchain installs dependencies from, or ok=false if it has no
	// install step (e.g. the system runtime).
	GetDependencyConfigs(rt runtimespec.Runtime) (cfg DependencyConfig, ok bool)

	// InstallDeps runs the toolchain's install command rooted at dir
	// (a project root, or the workspace root for ScopeWorkspace).
	InstallDeps(ctx context.Context, rt runtimespec.Runtime, dir string) (InstallResult, error)

	// SyncProject reconciles a project's manifests/config for rt,
	// returning whether anything changed on disk.
	SyncProject(ctx context.Context, rt runtimespec.Runtime, projectRoot string) (ProjectSnapshot, error)

	// HashManifestDeps contributes toolchain-specific content to an
	// install node's hash, e.g. the resolved manifest file's bytes.
	HashManifestDeps(rt runtimespec.Runtime, dir string) (interface{}, error)

	// HashRunTarget contributes toolchain-specific content to a
	// RunTask's hash, beyond the generic TargetHasher record.
	HashRunTarget(rt runtimespec.Runtime, projectRoot string) (interface{}, error)

	// CreateRunTargetCommand assembles the base process invocation for
	// a RunTask, before env built-ins/shell wrapping are layered on.
	CreateRunTargetCommand(rt runtimespec.Runtime, projectRoot string, args []string) (Command, error)
}

// Registry looks up a Capability by toolchain id (runtimespec.Runtime.Toolchain).
type Registry struct {
	capabilities map[string]Capability
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register associates toolchainID with a Capability implementation.
func (r *Registry) Register(toolchainID string, cap Capability) {
	r.capabilities[toolchainID] = cap
}

// Lookup returns the Capability registered for rt.Toolchain.
func (r *Registry) Lookup(rt runtimespec.Runtime) (Capability, bool) {
	cap, ok := r.capabilities[rt.Toolchain]
	return cap, ok
}
