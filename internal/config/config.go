// Package config holds the options a caller of cmd/moon populates before
// building a pipeline run. Config-file parsing (moon.yml/workspace.yml)
// is out of scope here; this package only shapes the in-process options
// surface and its CLI-flag parity, mirroring the original options-struct-
// plus-AddFlags convention.
package config

import (
	"runtime"

	"github.com/spf13/pflag"

	"github.com/moonrepo/moon/internal/util"
)

// Options collects the knobs a pipeline run is parameterized by. A caller
// populates it directly (there is no file format to read here); AddFlags
// exists only so cmd/moon can bind these the same way a cache.Opts/
// runcache.Opts pair would, not because this package parses argv itself
// (full CLI grammar parsing is out of scope).
type Options struct {
	WorkspaceRoot string
	CacheDir      string
	Concurrency   int
	AffectedOnly  bool
	Interactive   bool
	Persistent    bool
	LogLevel      string
	NoColor       bool
}

// Default returns Options with the same defaults the original CmdBase
// construction falls back to: full CPU concurrency, cache directory
// nested under the workspace root.
func Default(workspaceRoot string) Options {
	return Options{
		WorkspaceRoot: workspaceRoot,
		CacheDir:      workspaceRoot + "/.moon/cache",
		Concurrency:   runtime.NumCPU(),
	}
}

// AddFlags registers Options' fields onto flags, for parity with this
// repo's CLI wiring convention. cmd/moon calls it on its own flag set.
func (o *Options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.WorkspaceRoot, "workspace-root", o.WorkspaceRoot, "root of the moon workspace")
	flags.StringVar(&o.CacheDir, "cache-dir", o.CacheDir, "directory the cache engine reads/writes")
	flags.Var(&util.ConcurrencyValue{Value: &o.Concurrency}, "concurrency", "maximum number of actions to run at once, as a count (4) or a percentage of CPU cores (50%)")
	flags.BoolVar(&o.AffectedOnly, "affected", o.AffectedOnly, "only run actions for projects with touched files")
	flags.StringVar(&o.LogLevel, "log", o.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&o.NoColor, "no-color", o.NoColor, "suppress color usage in the terminal")
}
