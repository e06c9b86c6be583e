// Package logger builds the hclog.Logger shared by the pipeline executor,
// handlers, and cmd/moon: one named, leveled, concurrency-safe logger per
// process, with color and level driven by MOON_LOG / --log rather than a
// bespoke implementation.
package logger

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

const envLogLevel = "MOON_LOG"

// Options configures the root logger. Zero value is a sane default: level
// from MOON_LOG if set, otherwise off, writing to stderr.
type Options struct {
	Name   string
	Level  string
	Output io.Writer
}

// New builds the root logger. hclog.Logger is already safe for concurrent
// use across goroutines, so there is no need for a separate "concurrent"
// wrapper the way a fmt.Fprintf-based logger would.
func New(opts Options) hclog.Logger {
	name := opts.Name
	if name == "" {
		name = "moon"
	}

	levelStr := opts.Level
	if levelStr == "" {
		levelStr = os.Getenv(envLogLevel)
	}
	level := hclog.Off
	if levelStr != "" {
		level = hclog.LevelFromString(levelStr)
		if level == hclog.NoLevel {
			level = hclog.Info
		}
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	color := hclog.ColorOff
	if level != hclog.Off {
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Color:  color,
		Output: output,
	})
}

// NewNull returns a logger that discards everything, for tests and any
// path that hasn't been told to log anywhere.
func NewNull() hclog.Logger {
	return hclog.NewNullLogger()
}
