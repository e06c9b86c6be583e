package handlers

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/toolchain"
)

// SetupToolchainHandler installs or verifies the toolchain a Runtime
// names, delegating the concrete work to the registered Capability.
type SetupToolchainHandler struct {
	Toolchains *toolchain.Registry
	Bus        *eventbus.Bus
	Log        hclog.Logger
}

func (h *SetupToolchainHandler) Handle(ctx context.Context, pctx *pipeline.Context, a *action.Action, g *actiongraph.Graph) (action.Status, error) {
	toolCap, ok := h.Toolchains.Lookup(a.Node.Runtime)
	if !ok {
		return action.StatusFailed, fmt.Errorf("handlers: no toolchain registered for %s", a.Node.Runtime)
	}

	publish(ctx, h.Bus, h.Log, eventbus.ToolInstalling{Event: nodeEvent(a)})

	installed, err := toolCap.Setup(ctx, a.Node.Runtime)

	publish(ctx, h.Bus, h.Log, eventbus.ToolInstalled{Event: nodeEvent(a), Installed: installed})
	if err != nil {
		return action.StatusFailed, err
	}
	return action.StatusPassed, nil
}
