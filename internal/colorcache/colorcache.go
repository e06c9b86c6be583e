// Package colorcache assigns a stable terminal color to each project so
// that interleaved task output in cmd/moon stays visually distinguishable,
// the same trick turbo uses for interleaved package log prefixes.
package colorcache

import (
	"sync"

	"github.com/fatih/color"

	"github.com/moonrepo/moon/internal/util"
)

type colorFn = func(format string, a ...interface{}) string

func terminalColors() []colorFn {
	return []colorFn{color.CyanString, color.MagentaString, color.GreenString, color.YellowString, color.BlueString}
}

// Cache hands out a colorFn per project id, reusing the same one on repeat
// lookups so a project's output stays one color for the life of a run.
type Cache struct {
	mu     sync.Mutex
	index  int
	colors []colorFn
	byKey  map[string]colorFn
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		colors: terminalColors(),
		byKey:  make(map[string]colorFn),
	}
}

// PrefixColor returns the colorFn assigned to key, assigning the next one
// in rotation on first use.
func (c *Cache) PrefixColor(key string) colorFn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.byKey[key]; ok {
		return fn
	}
	fn := c.colors[util.PositiveMod(c.index, len(c.colors))]
	c.index++
	c.byKey[key] = fn
	return fn
}

// Prefix returns label wrapped in key's assigned color, ready to prepend to
// a line of task output.
func (c *Cache) Prefix(key, label string) string {
	return c.PrefixColor(key)("%s", label)
}
