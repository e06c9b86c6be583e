package action

import (
	"sync"
	"time"
)

// Action is the runtime record for a Node: its status, timing, and the
// Operations recorded while it ran. Lifecycle: created Pending by the
// builder, Running when dequeued by the executor, terminal on completion.
// An Action never transitions out of a terminal state.
type Action struct {
	Node Node

	mu           sync.Mutex
	status       Status
	startedAt    time.Time
	finishedAt   time.Time
	duration     time.Duration
	operations   []*Operation
	allowFailure bool
	flaky        bool
	err          error
}

// NewAction creates a Pending Action for node.
func NewAction(node Node, allowFailure bool) *Action {
	return &Action{
		Node:         node,
		status:       StatusPending,
		allowFailure: allowFailure,
	}
}

// Start transitions the action to Running and records the start time. It
// is a no-op if the action is already terminal.
func (a *Action) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.IsTerminal() {
		return
	}
	a.status = StatusRunning
	a.startedAt = time.Now()
}

// Finish transitions the action to a terminal status and records the
// finish time and duration. A second call is a no-op: actions never
// transition out of a terminal state.
func (a *Action) Finish(status Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status.IsTerminal() {
		return
	}
	a.status = status
	a.finishedAt = time.Now()
	a.duration = a.finishedAt.Sub(a.startedAt)
}

// Fail marks the action Failed and records err, unless allowFailure is
// set, in which case the action is still marked Failed but callers should
// consult AllowFailure() before propagating it to dependents.
func (a *Action) Fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.Finish(StatusFailed)
}

// AddOperation appends op to the action's operation log. Safe for
// concurrent use even though a single action is normally only touched by
// one worker goroutine at a time.
func (a *Action) AddOperation(op *Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.operations = append(a.operations, op)
}

// Operations returns a snapshot of the recorded operations.
func (a *Action) Operations() []*Operation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Operation, len(a.operations))
	copy(out, a.operations)
	return out
}

// Status returns the current status.
func (a *Action) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err returns the error recorded by Fail, if any.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// AllowFailure reports whether this action's failure should be masked from
// dependents.
func (a *Action) AllowFailure() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allowFailure
}

// Flaky reports whether this action was marked flaky (e.g. it failed on
// an earlier retry attempt but ultimately passed).
func (a *Action) Flaky() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flaky
}

// SetFlaky marks the action as flaky.
func (a *Action) SetFlaky() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flaky = true
}

// StartedAt returns the time Start() was called, the zero value if it
// hasn't been.
func (a *Action) StartedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startedAt
}

// FinishedAt returns the time the action became terminal, the zero value
// if it hasn't yet.
func (a *Action) FinishedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finishedAt
}

// Duration returns the action's recorded duration, valid once terminal.
func (a *Action) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}
