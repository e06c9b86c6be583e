package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/moonrepo/moon/internal/process"
)

// CycleError is returned by the action graph builder when inserting an
// edge would create a cycle. Participants lists the node labels in cycle
// order, closing back on the first element.
type CycleError struct {
	Participants []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("action graph: cycle detected: %s", strings.Join(e.Participants, " -> "))
}

// MissingOutputsError is returned when a RunTask completes successfully but
// its declared non-negated output globs match no files.
type MissingOutputsError struct {
	Target string
	Globs  []string
}

func (e *MissingOutputsError) Error() string {
	return fmt.Sprintf("task %s: declared outputs matched no files: %s", e.Target, strings.Join(e.Globs, ", "))
}

// ProcessFailureError aliases process.ChildExit, the error a task's child
// process returns on non-zero exit.
type ProcessFailureError = process.ChildExit

// TimedOutError describes a node whose per-node timeout elapsed before its
// handler completed. The pipeline executor does not construct it: a timed-out
// node is marked StatusTimedOut and keeps the handler's own error.
type TimedOutError struct {
	Target  string
	Timeout time.Duration
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("target %s timed out after %s", e.Target, e.Timeout)
}
