package process

// Child wraps one task's child process and implements the terminate-then-
// force-kill contract a RunTask node needs on timeout, global cancel, or
// manager shutdown: send a signal to the whole process group, wait a grace
// period for it to exit on its own, then force-kill if it hasn't.
//
// Adapted from the process-group kill/wait state machine in
// hashicorp/consul-template's child package, trimmed to what a task runner
// needs: no restart support, and the command is always fully formed by the
// caller (toolchain.Command -> exec.Cmd) rather than built here.

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

var (
	// ErrMissingCommand is returned when no command is specified to run.
	ErrMissingCommand = errors.New("missing command")

	// ExitCodeOK is the exit code recorded for a clean exit.
	ExitCodeOK = 0

	// ExitCodeError is the exit code recorded when a child exits with an
	// error that carries no more specific status.
	ExitCodeError = 127
)

// Child manages one task's process group: starting it, signaling it, and
// waiting out its graceful-stop grace period.
type Child struct {
	sync.RWMutex

	timeout time.Duration

	killSignal  os.Signal
	killTimeout time.Duration

	splay time.Duration

	// cmd is the task's process under management.
	cmd *exec.Cmd

	// exitCh carries the process's exit code once it terminates.
	exitCh chan int

	// stopLock guards stopCh/stopped: stopCh lets a waiting splay be
	// interrupted, and stopped records whether Stop has already run, so a
	// concurrent Close and timeout don't double-signal the same group.
	stopLock sync.RWMutex
	stopCh   chan struct{}
	stopped  bool

	// setpgid controls whether the process is started in its own process
	// group, so a signal sent with a negated pid reaches every descendant
	// a task's command may have spawned (a shell wrapping the real
	// command, for instance), not just the direct child.
	setpgid bool

	Label string

	logger hclog.Logger
}

// NewInput configures a Child.
type NewInput struct {
	// Cmd is the unstarted, preconfigured command to run.
	Cmd *exec.Cmd

	// Timeout is this Child's own enforcement of a maximum runtime. Set to
	// 0 to rely entirely on the caller's context instead (the path
	// Manager.Exec uses for RunTask nodes, whose timeout is a
	// context.WithTimeout on the node's own cancellation tree).
	Timeout time.Duration

	// KillSignal is the signal sent to gracefully stop the process group.
	KillSignal os.Signal

	// KillTimeout is the grace period between KillSignal and a force-kill.
	KillTimeout time.Duration

	// Splay staggers the kill signal by a random duration up to this value,
	// so many tasks stopped at once (a global cancel fanning out across
	// the whole graph) don't all signal in the same instant. Zero disables
	// it.
	Splay time.Duration

	Logger hclog.Logger
}

// newChild constructs a Child from i. The process is not yet started.
func newChild(i NewInput) (*Child, error) {
	label := fmt.Sprintf("(%v) %v", i.Cmd.Dir, strings.Join(i.Cmd.Args, " "))
	child := &Child{
		cmd:         i.Cmd,
		timeout:     i.Timeout,
		killSignal:  i.KillSignal,
		killTimeout: i.KillTimeout,
		splay:       i.Splay,
		stopCh:      make(chan struct{}, 1),
		setpgid:     true,
		Label:       label,
		logger:      i.Logger.Named(label),
	}

	return child, nil
}

// ExitCh returns the channel the process's exit code is delivered on.
func (c *Child) ExitCh() <-chan int {
	c.RLock()
	defer c.RUnlock()
	return c.exitCh
}

// Pid returns the pid of the process, or 0 if it isn't running.
func (c *Child) Pid() int {
	c.RLock()
	defer c.RUnlock()
	return c.pid()
}

// Command returns the human-formatted command with arguments.
func (c *Child) Command() string {
	return c.Label
}

// Start starts the process. Errors returned here occurred before the
// command began executing; errors after that surface as a non-zero value
// on ExitCh.
func (c *Child) Start() error {
	c.Lock()
	defer c.Unlock()
	return c.start()
}

// Signal sends s to the process (group).
func (c *Child) Signal(s os.Signal) error {
	c.logger.Debug("sending signal", "signal", s.String())
	c.RLock()
	defer c.RUnlock()
	return c.signal(s)
}

// Kill sends KillSignal (or a forceful kill if unset), waits up to
// KillTimeout for the process group to exit on its own, and force-kills it
// otherwise. It never returns until the process is confirmed dead.
func (c *Child) Kill() {
	c.logger.Debug("killing process")
	c.Lock()
	defer c.Unlock()
	c.kill(false)
}

// Stop behaves like Kill but additionally marks this Child as stopped so
// its exit is not reported back over ExitCh — used when a node's own
// context cancels (timeout, global signal) or the manager is closing, as
// opposed to the process exiting on its own.
func (c *Child) Stop() {
	c.internalStop(false)
}

// StopImmediately behaves like Stop but skips the splay wait, for the
// re-entrant-signal escalation path (a second SIGINT during shutdown).
func (c *Child) StopImmediately() {
	c.internalStop(true)
}

func (c *Child) internalStop(immediately bool) {
	c.Lock()
	defer c.Unlock()

	c.stopLock.Lock()
	defer c.stopLock.Unlock()
	if c.stopped {
		return
	}
	c.kill(immediately)
	close(c.stopCh)
	c.stopped = true
}

func (c *Child) start() error {
	setSetpgid(c.cmd, c.setpgid)
	if err := c.cmd.Start(); err != nil {
		return err
	}

	exitCh := make(chan int, 1)
	go func() {
		var code int
		c.RLock()
		cmd := c.cmd
		c.RUnlock()

		var err error
		if cmd != nil {
			err = cmd.Wait()
		}
		if err == nil {
			code = ExitCodeOK
		} else {
			code = ExitCodeError
			if exiterr, ok := err.(*exec.ExitError); ok {
				if status, ok := exiterr.Sys().(syscall.WaitStatus); ok {
					code = status.ExitStatus()
				}
			}
		}

		// A Stop()-in-progress call owns reporting this exit; don't race it.
		c.stopLock.RLock()
		defer c.stopLock.RUnlock()
		if !c.stopped {
			select {
			case <-c.stopCh:
			case exitCh <- code:
			}
		}

		close(exitCh)
	}()

	c.exitCh = exitCh

	if c.timeout != 0 {
		select {
		case code := <-exitCh:
			if code != 0 {
				return fmt.Errorf("task %s exited with a non-zero status before its self-enforced timeout elapsed", c.Command())
			}
		case <-time.After(c.timeout):
			c.stopLock.Lock()
			defer c.stopLock.Unlock()
			if c.cmd != nil && c.cmd.Process != nil {
				c.cmd.Process.Kill()
			}
			return fmt.Errorf("task %s did not exit within %s", c.Command(), c.timeout)
		}
	}

	return nil
}

func (c *Child) pid() int {
	if !c.running() {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *Child) signal(s os.Signal) error {
	if !c.running() {
		return nil
	}

	sig, ok := s.(syscall.Signal)
	if !ok {
		return fmt.Errorf("bad signal: %s", s)
	}
	pid := c.cmd.Process.Pid
	if c.setpgid {
		// A negative pid targets the whole process group, reaching any
		// descendants the task's command spawned.
		pid = -(pid)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}

// kill sends killSignal to the process group, then waits up to killTimeout
// for it to exit before force-killing.
func (c *Child) kill(immediately bool) {
	if !c.running() {
		c.logger.Debug("kill called but process already exited")
		return
	} else if immediately {
		c.logger.Debug("kill called with immediate shutdown, skipping splay")
	} else {
		select {
		case <-c.stopCh:
		case <-c.randomSplay():
		}
	}

	var exited bool
	defer func() {
		if !exited {
			c.logger.Debug("grace period elapsed, force-killing")
			c.cmd.Process.Kill()
		}
		c.cmd = nil
	}()

	if c.killSignal == nil {
		return
	}

	if err := c.signal(c.killSignal); err != nil {
		c.logger.Debug("signal failed", "error", err)
		if processNotFoundErr(err) {
			exited = true
		}
		return
	}

	killCh := make(chan struct{}, 1)
	go func() {
		defer close(killCh)
		c.cmd.Process.Wait()
	}()

	select {
	case <-c.stopCh:
	case <-killCh:
		exited = true
	case <-time.After(c.killTimeout):
		c.logger.Debug("grace period elapsed without the process exiting")
	}
}

func (c *Child) running() bool {
	select {
	case <-c.exitCh:
		return false
	default:
	}
	return c.cmd != nil && c.cmd.Process != nil
}

func (c *Child) randomSplay() <-chan time.Time {
	if c.splay == 0 {
		return time.After(0)
	}

	ns := c.splay.Nanoseconds()
	offset := rand.Int63n(ns)
	t := time.Duration(offset)

	c.logger.Debug("waiting for splay", "duration", t.String())

	return time.After(t)
}
