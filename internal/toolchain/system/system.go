// Package system implements toolchain.Capability for the "system"
// runtime: tasks that run with whatever is already on PATH, with no
// managed toolchain, no dependency install, and no project sync step.
// It's the default used by S1-S6 test scenarios and by any task that
// doesn't declare a runtime.
package system

import (
	"context"
	"fmt"

	"github.com/moonrepo/moon/internal/runtimespec"
	"github.com/moonrepo/moon/internal/toolchain"
)

// Capability is the no-op toolchain adapter.
type Capability struct{}

// New returns a system Capability.
func New() *Capability {
	return &Capability{}
}

func (c *Capability) Setup(_ context.Context, _ runtimespec.Runtime) (bool, error) {
	return false, nil
}

func (c *Capability) GetDependencyConfigs(_ runtimespec.Runtime) (toolchain.DependencyConfig, bool) {
	return toolchain.DependencyConfig{}, false
}

func (c *Capability) InstallDeps(_ context.Context, _ runtimespec.Runtime, _ string) (toolchain.InstallResult, error) {
	return toolchain.InstallResult{}, nil
}

func (c *Capability) SyncProject(_ context.Context, _ runtimespec.Runtime, _ string) (toolchain.ProjectSnapshot, error) {
	return toolchain.ProjectSnapshot{}, nil
}

func (c *Capability) HashManifestDeps(_ runtimespec.Runtime, _ string) (interface{}, error) {
	return nil, nil
}

func (c *Capability) HashRunTarget(_ runtimespec.Runtime, _ string) (interface{}, error) {
	return nil, nil
}

func (c *Capability) CreateRunTargetCommand(_ runtimespec.Runtime, projectRoot string, args []string) (toolchain.Command, error) {
	if len(args) == 0 {
		return toolchain.Command{}, fmt.Errorf("system: task has no command")
	}
	return toolchain.Command{Program: args[0], Args: args[1:], Env: map[string]string{}}, nil
}
