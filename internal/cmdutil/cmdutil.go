// Package cmdutil holds the small amount of setup cmd/moon needs before it
// can build a pipeline run: turning config.Options into a concrete UI and
// logger, the same split the original cmdutil.Helper draws between
// flag-derived configuration and the CmdBase it produces.
package cmdutil

import (
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/moonrepo/moon/internal/config"
	"github.com/moonrepo/moon/internal/logger"
	"github.com/moonrepo/moon/internal/ui"
)

// Helper turns config.Options into a CmdBase. It is not meant for reuse
// across runs — build one per invocation of cmd/moon.
type Helper struct {
	MoonVersion string

	cleanupsMu sync.Mutex
	cleanups   []io.Closer
}

// NewHelper returns a Helper stamped with moonVersion.
func NewHelper(moonVersion string) *Helper {
	return &Helper{MoonVersion: moonVersion}
}

// RegisterCleanup saves a function to be run after the pipeline run,
// even if it returns an error.
func (h *Helper) RegisterCleanup(closer io.Closer) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	h.cleanups = append(h.cleanups, closer)
}

// Cleanup runs the registered cleanup handlers, reporting failures to out
// rather than returning them — a run that already finished shouldn't fail
// because a log file couldn't be flushed.
func (h *Helper) Cleanup(out cli.Ui) {
	h.cleanupsMu.Lock()
	defer h.cleanupsMu.Unlock()
	for _, c := range h.cleanups {
		if err := c.Close(); err != nil {
			out.Warn(fmt.Sprintf("failed cleanup: %v", err))
		}
	}
}

// BuildUI constructs the cli.Ui for opts, honoring NO_COLOR/--no-color.
func (h *Helper) BuildUI(opts config.Options) cli.Ui {
	colorMode := ui.GetColorModeFromEnv()
	if opts.NoColor {
		colorMode = ui.ColorModeSuppressed
	}
	return ui.BuildColoredUi(colorMode)
}

// BuildLogger constructs the root hclog.Logger for opts.
func (h *Helper) BuildLogger(opts config.Options) hclog.Logger {
	return logger.New(logger.Options{Name: "moon", Level: opts.LogLevel})
}

// CmdBase bundles the components common to every pipeline run cmd/moon
// drives, handed to the run assembly code instead of threading UI/Logger
// through every function individually.
type CmdBase struct {
	UI          cli.Ui
	Logger      hclog.Logger
	MoonVersion string
}

// GetCmdBase builds a CmdBase from opts.
func (h *Helper) GetCmdBase(opts config.Options) *CmdBase {
	return &CmdBase{
		UI:          h.BuildUI(opts),
		Logger:      h.BuildLogger(opts),
		MoonVersion: h.MoonVersion,
	}
}

// LogError prints an error to the UI and the logger.
func (b *CmdBase) LogError(err error) {
	b.Logger.Error("error", "err", err)
	b.UI.Error(fmt.Sprintf("%s %v", ui.ERROR_PREFIX, err))
}

// LogWarning logs a warning and outputs it to the UI.
func (b *CmdBase) LogWarning(prefix string, err error) {
	b.Logger.Warn(prefix, "warning", err)
	if prefix != "" {
		prefix = prefix + ": "
	}
	b.UI.Warn(fmt.Sprintf("%s %s%v", ui.WARNING_PREFIX, prefix, err))
}

// LogInfo logs a message and outputs it to the UI.
func (b *CmdBase) LogInfo(msg string) {
	b.Logger.Info(msg)
	b.UI.Info(fmt.Sprintf("%s %s", ui.InfoPrefix, msg))
}
