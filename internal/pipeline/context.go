// Package pipeline implements the pipeline executor (C7): a bounded-
// concurrency walk of an actiongraph.Graph that releases each node once
// its predecessors are terminal, dispatches it to a registered Handler,
// and propagates failure per its contract (abort vs. skip, allow_failure
// masking).
//
// Grounded on the original core.Engine.Execute (semaphore-bounded
// dag.Walk over a visitor function) and taskhash.Tracker's single
// sync.RWMutex guarding several maps, generalized from "bound concurrency
// over an already-valid walk" to the richer node-release/abort/skip state
// machine this package implements.
package pipeline

import "sync"

// TargetState is the terminal record a finished RunTask node leaves behind
// for dependents and for cache-gate decisions.
type TargetState struct {
	Status string
	Hash   string
}

// Context is the pipeline's shared mutable state: an otherwise-immutable
// outer struct plus one sync.RWMutex guarding the two maps that change
// during a run.
type Context struct {
	WorkspaceRoot string
	CacheDir      string

	// TouchedFiles lists workspace-relative paths VCS reports changed
	// between two revisions, feeding
	// affected-only graph filtering and a RunTask's affected_files
	// injection. Set once before a run starts; never mutated concurrently.
	TouchedFiles []string

	mu           sync.RWMutex
	targetStates map[string]TargetState
	namedMutexes map[string]*sync.Mutex
}

// NewContext returns a Context rooted at workspaceRoot/cacheDir.
func NewContext(workspaceRoot, cacheDir string) *Context {
	return &Context{
		WorkspaceRoot: workspaceRoot,
		CacheDir:      cacheDir,
		targetStates:  make(map[string]TargetState),
		namedMutexes:  make(map[string]*sync.Mutex),
	}
}

// TargetState returns the recorded state for target, if any.
func (c *Context) TargetState(target string) (TargetState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.targetStates[target]
	return st, ok
}

// SetTargetState records target's terminal state. Callers must write this
// before releasing any dependent node that reads it.
func (c *Context) SetTargetState(target string, st TargetState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetStates[target] = st
}

// NamedMutex returns the named mutex, creating it on first use. Used by
// the task runner's optional mutex-acquisition step.
func (c *Context) NamedMutex(name string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.namedMutexes[name]
	if !ok {
		m = &sync.Mutex{}
		c.namedMutexes[name] = m
	}
	return m
}
