// Package eventbus is the typed pub/sub collaborator (C10): action
// lifecycle and progress events, fanned out to subscribers over Go
// channels.
//
// Grounded on the original runsummary.runState (a single executionEvent
// struct with a Status enum, fed through one callback per task) and
// internal/ui's concurrent renderer, generalized from one flat event shape
// to the full per-variant lifecycle pair set this pipeline needs, and from
// a single in-process callback to a multi-subscriber bus acknowledged with
// golang.org/x/sync/errgroup.
package eventbus

import "time"

// Event is the common envelope every published event carries. Concrete
// event kinds embed Event and add their own fields.
type Event struct {
	NodeID string
	Label  string
	Time   time.Time
}

// ActionStarted is emitted when a node's handler begins running.
type ActionStarted struct {
	Event
}

// ActionFinished is emitted once, when a node reaches a terminal status.
type ActionFinished struct {
	Event
	Status string
	Err    error
}

// ToolInstalling/ToolInstalled bracket a SetupToolchain node's work.
type ToolInstalling struct{ Event }
type ToolInstalled struct {
	Event
	Installed bool
}

// DependenciesInstalling/DependenciesInstalled bracket an
// InstallWorkspaceDeps/InstallProjectDeps node's work.
type DependenciesInstalling struct{ Event }
type DependenciesInstalled struct {
	Event
	Err error
}

// ProjectSyncing/ProjectSynced bracket a SyncProject node's work.
type ProjectSyncing struct{ Event }
type ProjectSynced struct {
	Event
	Changed bool
}

// WorkspaceSyncing/WorkspaceSynced bracket the SyncWorkspace node's work.
type WorkspaceSyncing struct{ Event }
type WorkspaceSynced struct {
	Event
	Changed bool
}

// TargetRunning/TargetRan bracket a RunTask node's work.
type TargetRunning struct{ Event }
type TargetRan struct {
	Event
	Status string
	Err    error
}

// JobProgress is emitted periodically (default every 30s) for each
// in-flight node, until the node terminates.
type JobProgress struct {
	Event
	Elapsed time.Duration
}

// StateChange describes a prev -> next status transition of a node. The
// pipeline executor does not publish it; transitions are visible only
// through ActionStarted/ActionFinished and the per-kind event pairs.
type StateChange struct {
	Event
	From string
	To   string
}
