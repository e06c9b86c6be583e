package pipeline

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/moonrepo/moon/internal/action"
	"github.com/moonrepo/moon/internal/actiongraph"
	"github.com/moonrepo/moon/internal/eventbus"
	"github.com/moonrepo/moon/internal/util"
)

// criticalKinds are the node kinds whose failure aborts the remainder of
// the run rather than merely skipping dependents.
var criticalKinds = map[action.Kind]bool{
	action.KindSetupToolchain:       true,
	action.KindInstallWorkspaceDeps: true,
}

// Options configures an Executor run.
type Options struct {
	// Concurrency bounds how many nodes run at once; <= 0 means 1.
	Concurrency int
	// ProgressInterval is how often JobProgress fires per in-flight node;
	// zero means every 30s, < 0 disables progress events.
	ProgressInterval time.Duration
	Log              hclog.Logger
}

// Executor walks an action graph, releasing nodes once their predecessors
// are terminal and dispatching each to its registered Handler.
type Executor struct {
	graph    *actiongraph.Graph
	pctx     *Context
	handlers HandlerRegistry
	bus      *eventbus.Bus
	opts     Options
	sem      *util.Semaphore
}

// New returns an Executor for g, dispatching through handlers and
// publishing lifecycle events on bus.
func New(g *actiongraph.Graph, pctx *Context, handlers HandlerRegistry, bus *eventbus.Bus, opts Options) *Executor {
	if opts.Log == nil {
		opts.Log = hclog.NewNullLogger()
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = 30 * time.Second
	}
	return &Executor{
		graph:    g,
		pctx:     pctx,
		handlers: handlers,
		bus:      bus,
		opts:     opts,
		sem:      util.NewSemaphore(opts.Concurrency),
	}
}

// Run executes every node in the graph, returning once all have reached a
// terminal status. Run itself never returns an error for individual node
// failures — inspect each action's Status()/Err() after Run returns; a
// node whose kind has no registered handler is marked Failed. Run returns
// nil.
func (e *Executor) Run(ctx context.Context) error {
	ids := e.graph.OrderedIDs()

	pending := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		deps := e.graph.DependenciesOf(id)
		pending[id] = len(deps)
		for _, d := range deps {
			dependents[d] = append(dependents[d], id)
		}
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &scheduler{
		e:          e,
		ctx:        execCtx,
		pending:    pending,
		dependents: dependents,
		results:    make(chan string, len(ids)),
		completed:  make(map[string]bool, len(ids)),
		launched:   make(map[string]bool, len(ids)),
		remaining:  len(ids),
	}

	for _, id := range ids {
		if pending[id] == 0 {
			s.tryLaunch(id)
		}
	}

	for s.remaining > 0 {
		select {
		case id := <-s.results:
			s.onResult(id)
		case <-execCtx.Done():
			s.cancelling = true
			// Keep draining results from already-launched nodes; newly
			// reached nodes are marked Cancelled by tryLaunch while
			// cancelling is set.
			select {
			case id := <-s.results:
				s.onResult(id)
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
	return nil
}

// scheduler owns all graph-walk bookkeeping. It is only ever touched from
// the single goroutine running Executor.Run, so it needs no locking of its
// own; only the Actions and Context it hands to handlers are safe for
// concurrent access from worker goroutines.
type scheduler struct {
	e          *Executor
	ctx        context.Context
	pending    map[string]int
	dependents map[string][]string
	results    chan string
	completed  map[string]bool
	launched   map[string]bool
	remaining  int
	aborted    bool
	cancelling bool
}

func (s *scheduler) tryLaunch(id string) {
	if s.launched[id] || s.completed[id] {
		return
	}
	s.launched[id] = true

	a, ok := s.e.graph.Action(id)
	if !ok {
		s.results <- id
		return
	}

	if s.aborted {
		a.Start()
		a.Finish(action.StatusAborted)
		s.results <- id
		return
	}
	if s.cancelling {
		a.Start()
		a.Finish(action.StatusCancelled)
		s.results <- id
		return
	}

	go s.run(id, a)
}

func (s *scheduler) run(id string, a *action.Action) {
	s.e.sem.Acquire()
	defer s.e.sem.Release()

	handler, ok := s.e.handlers[a.Node.Kind]
	if !ok {
		a.Start()
		a.Fail(errMissingHandler(a.Node.Kind))
		s.results <- id
		return
	}

	nodeCtx := s.ctx
	var nodeCancel context.CancelFunc
	if a.Node.Timeout > 0 {
		nodeCtx, nodeCancel = context.WithTimeout(s.ctx, a.Node.Timeout)
		defer nodeCancel()
	}

	stopProgress := s.startProgress(id, a)
	defer stopProgress()

	a.Start()
	if s.e.bus != nil {
		_ = s.e.bus.Publish(s.ctx, eventbus.ActionStarted{Event: eventbus.Event{NodeID: id, Label: a.Node.Label(), Time: time.Now()}})
	}

	status, err := handler.Handle(nodeCtx, s.e.pctx, a, s.e.graph)
	if err != nil {
		if nodeCtx.Err() != nil && a.Node.Timeout > 0 {
			// Finish first: Fail still records err, but its own Finish
			// is then a no-op, so the status stays TimedOut.
			a.Finish(action.StatusTimedOut)
			a.Fail(err)
		} else {
			a.Fail(err)
		}
	} else {
		a.Finish(status)
	}

	if s.e.bus != nil {
		fin := a.Status()
		_ = s.e.bus.Publish(s.ctx, eventbus.ActionFinished{
			Event:  eventbus.Event{NodeID: id, Label: a.Node.Label(), Time: time.Now()},
			Status: fin.String(),
			Err:    a.Err(),
		})
	}

	s.results <- id
}

func (s *scheduler) startProgress(id string, a *action.Action) func() {
	if s.e.opts.ProgressInterval <= 0 || s.e.bus == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.e.opts.ProgressInterval)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = s.e.bus.Publish(s.ctx, eventbus.JobProgress{
					Event:   eventbus.Event{NodeID: id, Label: a.Node.Label(), Time: time.Now()},
					Elapsed: time.Since(start),
				})
			}
		}
	}()
	return func() { close(stop) }
}

func (s *scheduler) onResult(id string) {
	if s.completed[id] {
		return
	}
	s.completed[id] = true
	s.remaining--

	a, _ := s.e.graph.Action(id)
	status := a.Status()
	hardFail := status.IsTerminal() && !status.IsSuccess() && !a.AllowFailure()

	if hardFail && criticalKinds[a.Node.Kind] {
		s.aborted = true
		s.propagateAbort(id)
	} else if hardFail {
		s.propagateSkip(id)
	}

	for _, dep := range s.dependents[id] {
		s.pending[dep]--
		if s.pending[dep] <= 0 {
			s.tryLaunch(dep)
		}
	}
}

// propagateSkip marks every transitive dependent of id Skipped immediately
// without waiting for those dependents' other predecessors.
func (s *scheduler) propagateSkip(id string) {
	for _, dep := range s.dependents[id] {
		if s.completed[dep] {
			continue
		}
		s.completed[dep] = true
		s.launched[dep] = true
		s.remaining--

		da, ok := s.e.graph.Action(dep)
		if ok {
			da.Start()
			da.Finish(action.StatusSkipped)
		}

		s.propagateSkip(dep)
		for _, grandDep := range s.dependents[dep] {
			s.pending[grandDep]--
			if s.pending[grandDep] <= 0 {
				s.tryLaunch(grandDep)
			}
		}
	}
}

// propagateAbort marks every transitive dependent of id Aborted immediately,
// without waiting for those dependents' other predecessors. Used instead of
// propagateSkip when the failing node is a critical kind (SetupToolchain,
// InstallWorkspaceDeps): its entire downstream can never meaningfully run,
// rather than merely being bypassed because one dependency failed.
func (s *scheduler) propagateAbort(id string) {
	for _, dep := range s.dependents[id] {
		if s.completed[dep] {
			continue
		}
		s.completed[dep] = true
		s.launched[dep] = true
		s.remaining--

		da, ok := s.e.graph.Action(dep)
		if ok {
			da.Start()
			da.Finish(action.StatusAborted)
		}

		s.propagateAbort(dep)
		for _, grandDep := range s.dependents[dep] {
			s.pending[grandDep]--
			if s.pending[grandDep] <= 0 {
				s.tryLaunch(grandDep)
			}
		}
	}
}
