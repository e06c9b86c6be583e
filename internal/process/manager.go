package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// GracePeriod is how long a canceled or timed-out task gets to exit after
// its process group receives KillSignal before the manager force-kills it.
const GracePeriod = 5 * time.Second

// ErrClosing is returned when the process manager is in the process of closing,
// meaning that no more child processes can be Exec'd, and existing, non-failed
// child processes will be stopped with this error.
var ErrClosing = errors.New("process manager is already closing")

// ChildExit is returned when a child process exits with a non-zero exit code
type ChildExit struct {
	ExitCode int
	Command  string
}

func (ce *ChildExit) Error() string {
	return fmt.Sprintf("command %s exited (%d)", ce.Command, ce.ExitCode)
}

// Manager tracks all of the child processes that have been spawned
type Manager struct {
	done     bool
	children map[*Child]struct{}
	mu       sync.Mutex
	doneCh   chan struct{}
	logger   hclog.Logger
}

// NewManager creates a new properly-initialized Manager instance
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		children: make(map[*Child]struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Exec spawns a child process to run the given command, then blocks
// until it completes or ctx is done. cmd must not itself be built with
// exec.CommandContext: Exec drives ctx cancellation through the child's
// graceful-stop path (terminate the process group, wait GracePeriod,
// force-kill) rather than exec.Cmd's default of an immediate
// single-process kill. Returns a nil error if the child process finished
// successfully, ErrClosing if the manager closed or ctx was done during
// execution (a stopped child's exit code is not reported), and a
// ChildExit error if the child process exited with a non-zero exit code.
func (m *Manager) Exec(ctx context.Context, cmd *exec.Cmd) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return ErrClosing
	}

	child, err := newChild(NewInput{
		Cmd: cmd,
		// Run forever by default; ctx cancellation (timeout or global
		// signal) drives termination instead, below.
		Timeout: 0,
		// Grace period between the terminate signal and a force-kill.
		KillTimeout: GracePeriod,
		// Terminate the process group (SIGTERM on Unix, equivalent on
		// Windows), then force-kill if it hasn't exited by GracePeriod.
		KillSignal: terminateSignal(),
		Logger:     m.logger,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.children[child] = struct{}{}
	m.mu.Unlock()
	err = child.Start()
	if err != nil {
		m.mu.Lock()
		delete(m.children, child)
		m.mu.Unlock()
		return err
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			child.Stop()
		case <-stopped:
		}
	}()

	err = nil
	exitCode, ok := <-child.ExitCh()
	close(stopped)
	if !ok {
		err = ErrClosing
	} else if exitCode != ExitCodeOK {
		err = &ChildExit{
			ExitCode: exitCode,
			Command:  child.Command(),
		}
	}

	m.mu.Lock()
	delete(m.children, child)
	m.mu.Unlock()
	return err
}

// Close stops every child process gracefully (terminate signal, then
// GracePeriod, then force-kill) if it hasn't been done yet, and in either
// case blocks until they have all exited.
func (m *Manager) Close() {
	m.closeWith(false)
}

// CloseImmediately behaves like Close but skips each child's splay wait,
// for the re-entrant-signal escalation path: a user who has signaled
// twice no longer wants to wait out a staggered stop.
func (m *Manager) CloseImmediately() {
	m.closeWith(true)
}

func (m *Manager) closeWith(immediate bool) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		<-m.doneCh
		return
	}
	wg := sync.WaitGroup{}
	m.done = true
	for child := range m.children {
		child := child
		wg.Add(1)
		go func() {
			if immediate {
				child.StopImmediately()
			} else {
				child.Stop()
			}
			wg.Done()
		}()
	}
	m.mu.Unlock()
	wg.Wait()
	close(m.doneCh)
}
