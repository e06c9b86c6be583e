// Command moon wires a full pipeline run end to end: load a workspace
// graph, build an action graph for the requested targets, and drive it
// through the pipeline executor to completion, printing each action's
// outcome as it lands.
//
// This is a manual/integration entrypoint, not a full CLI: it takes a
// handful of flags (workspace root, targets, concurrency, affected-only)
// rather than a command grammar with subcommands, prompts, or a TUI.
//
// Grounded on the original cmd/turbo/main.go + internal/cmd/root.go
// bootstrap shape (parse flags, build a CmdBase, register a signal
// watcher, run, exit with a status code), adapted from a cobra command
// tree to the single-purpose run this package performs.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/cacheengine"
	"github.com/moonrepo/moon/internal/cmdutil"
	"github.com/moonrepo/moon/internal/config"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/handlers"
	"github.com/moonrepo/moon/internal/pipeline"
	"github.com/moonrepo/moon/internal/process"
	"github.com/moonrepo/moon/internal/signals"
	"github.com/moonrepo/moon/internal/target"
	"github.com/moonrepo/moon/internal/toolchain"
	"github.com/moonrepo/moon/internal/toolchain/node"
	"github.com/moonrepo/moon/internal/toolchain/system"
	"github.com/moonrepo/moon/internal/vcs"
	"github.com/moonrepo/moon/internal/workspace"
)

// moonVersion is stamped at release time by the build; left as a constant
// here since this repo has no release pipeline of its own.
const moonVersion = "0.0.1"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	opts := config.Default(mustGetwd())

	flags := pflag.NewFlagSet("moon", pflag.ContinueOnError)
	opts.AddFlags(flags)
	baseRef := flags.String("base", "", "git ref touched files are diffed against; empty disables VCS-driven affected filtering")
	var rawTargets []string
	flags.StringArrayVar(&rawTargets, "target", nil, "target to run, e.g. app:build (repeatable)")
	if err := flags.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	helper := cmdutil.NewHelper(moonVersion)
	base := helper.GetCmdBase(opts)
	defer helper.Cleanup(base.UI)

	watcher := signals.NewWatcher()
	helper.RegisterCleanup(closerFunc(watcher.Close))

	ctx, cancel := context.WithCancel(context.Background())
	watcher.AddOnClose(cancel)
	defer cancel()

	if len(rawTargets) == 0 {
		base.LogError(fmt.Errorf("at least one --target is required, e.g. --target=app:build or --target=:build for every project"))
		return 1
	}
	locators := make([]target.Target, 0, len(rawTargets))
	for _, raw := range rawTargets {
		t, err := target.Parse(raw)
		if err != nil {
			base.LogError(fmt.Errorf("invalid --target %q: %w", raw, err))
			return 1
		}
		locators = append(locators, t)
	}

	if err := runPipeline(ctx, opts, *baseRef, locators, base, watcher); err != nil {
		base.LogError(err)
		return 1
	}
	return 0
}

// runPipeline assembles every pipeline collaborator from opts and drives
// one Executor.Run to completion.
func runPipeline(ctx context.Context, opts config.Options, baseRef string, locators []target.Target, base *cmdutil.CmdBase, watcher *signals.Watcher) error {
	ws := workspace.NewInMemoryGraph()

	toolchains := toolchain.NewRegistry()
	toolchains.Register("system", system.New())
	toolchains.Register("node", node.New(opts.WorkspaceRoot))

	repo := vcs.New(opts.WorkspaceRoot)
	var touchedFiles []string
	if opts.AffectedOnly && baseRef != "" && repo.IsEnabled() {
		files, err := repo.ChangedFiles(baseRef, true)
		if err != nil {
			return fmt.Errorf("resolving changed files: %w", err)
		}
		touchedFiles = files
	}

	mode := cacheengine.ModeReadWrite
	cache := cacheengine.New(opts.CacheDir, mode, nil, base.Logger.Named("cache"))
	processes := process.NewManager(base.Logger.Named("exec"))
	defer processes.Close()
	watcher.AddOnForceClose(processes.CloseImmediately)

	bus := eventbus.New(256)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go printEvents(events, base)

	builder := actiongraph.New(ws, toolchains)
	graph, err := builder.Build(locators, actiongraph.BuildOptions{
		AffectedOnly: opts.AffectedOnly,
		TouchedFiles: touchedFiles,
		Interactive:  opts.Interactive,
		Persistent:   opts.Persistent,
	})
	if err != nil {
		return fmt.Errorf("building action graph: %w", err)
	}

	pctx := pipeline.NewContext(opts.WorkspaceRoot, opts.CacheDir)
	pctx.TouchedFiles = touchedFiles

	reg := handlers.NewRegistry(handlers.Deps{
		Toolchains:    toolchains,
		Workspace:     ws,
		WorkspaceRoot: opts.WorkspaceRoot,
		Cache:         cache,
		Processes:     processes,
		VCS:           repo,
		Bus:           bus,
		Log:           base.Logger,
	})

	exec := pipeline.New(graph, pctx, reg, bus, pipeline.Options{
		Concurrency: opts.Concurrency,
		Log:         base.Logger,
	})

	if err := exec.Run(ctx); err != nil {
		return err
	}
	return summarize(graph, base)
}

// summarize reports a non-zero exit by returning an error once every
// action has reached a terminal status; Executor.Run itself never fails
// a run for individual action failures (see pipeline.Executor.Run).
func summarize(g *actiongraph.Graph, base *cmdutil.CmdBase) error {
	var failed []string
	for _, id := range g.OrderedIDs() {
		a, ok := g.Action(id)
		if !ok {
			continue
		}
		switch a.Status() {
		case action.StatusFailed, action.StatusAborted, action.StatusTimedOut:
			if !a.AllowFailure() {
				failed = append(failed, id)
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d action(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	base.LogInfo("all actions completed")
	return nil
}

// printEvents renders the subset of event types the run cares about to
// base.UI as they arrive, until events is closed by unsubscribe.
func printEvents(events <-chan interface{}, base *cmdutil.CmdBase) {
	for evt := range events {
		switch e := evt.(type) {
		case eventbus.ActionStarted:
			base.UI.Info(fmt.Sprintf("> %s", e.Label))
		case eventbus.ActionFinished:
			base.UI.Output(fmt.Sprintf("%s %s (%s)", statusGlyph(e.Status), e.Label, e.Status))
		}
	}
}

func statusGlyph(status string) string {
	switch status {
	case action.StatusPassed.String(), action.StatusCached.String(), action.StatusCachedFromRemote.String():
		return ">"
	case action.StatusSkipped.String():
		return "-"
	default:
		return "x"
	}
}

func mustGetwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// closerFunc adapts a bare func() into the io.Closer cmdutil.Helper's
// cleanup registry expects.
type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
