// Package orchestrator runs the factory control plane: a single-threaded
// loop that dispatches backlog tasks to the worker pool, lands finished
// commits on trunk, and feeds the planner. Workers run concurrently but
// all state mutation happens on the control plane.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RevCBH/ralph/internal/config"
	"github.com/RevCBH/ralph/internal/escalate"
	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/git"
	"github.com/RevCBH/ralph/internal/merge"
	"github.com/RevCBH/ralph/internal/planner"
	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/provider"
	"github.com/RevCBH/ralph/internal/ratelimit"
	"github.com/RevCBH/ralph/internal/router"
	"github.com/RevCBH/ralph/internal/session"
	"github.com/RevCBH/ralph/internal/worker"
)

// Bounds on notice delivery goroutines. A slow webhook must never back
// up the control plane.
const (
	maxInflightNotices = 16
	noticeTimeout      = 30 * time.Second
)

// ErrStuck means work remains but no configured slot can serve it.
var ErrStuck = errors.New("stuck: no slot matches any remaining task")

// ErrAborted means shutdown was requested before convergence.
var ErrAborted = errors.New("shutdown before convergence")

// Orchestrator owns all mutable factory state. Construct with New, run
// once with Run. Not reusable.
type Orchestrator struct {
	cfg      *config.FactoryConfig
	bus      *events.Bus
	store    *prd.Store
	limiter  *ratelimit.Limiter
	router   *router.Router
	manager  *git.WorktreeManager
	pool     *worker.Pool
	merger   *merge.Coordinator
	planner  *planner.Planner
	notifier escalate.Notifier
	sessions *session.Manager

	specContent string
	sessionID   string
	startTime   time.Time

	// Control-plane state. Only Run's goroutine touches these.
	queue      []*router.FactoryTask
	inProgress map[string]*router.FactoryTask
	completed  map[string]bool
	retries    map[string]int
	lastErrors map[string]string
	taskRuns   map[string]int64
	dropped    []string
	failures   int

	shuttingDown atomic.Bool

	// Notices deliver on their own goroutines; the semaphore bounds
	// them and shutdown waits for the stragglers.
	notifySem chan struct{}
	notifyWG  sync.WaitGroup

	// Planner callbacks land here from the planner goroutine; the
	// control plane drains them each iteration.
	injectMu   sync.Mutex
	injections []prd.Item

	// invokers is the provider factory handed to workers and the
	// planner; swapped out in tests
	invokers worker.InvokerFactory

	sleep func(ctx context.Context, d time.Duration)
}

// New wires up the orchestrator's collaborators from config. The PRD
// files are loaded here; worktrees are created in Run.
func New(cfg *config.FactoryConfig, bus *events.Bus, invokers worker.InvokerFactory) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := prd.LoadStore(cfg.PrdFiles)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.SlotCapacities())

	o := &Orchestrator{
		cfg:        cfg,
		bus:        bus,
		store:      store,
		limiter:    limiter,
		router:     router.New(limiter, cfg.EscalateOnRetry, cfg.AutoRoute),
		manager:    git.NewWorktreeManager(cfg.RepoRoot, cfg.TrunkBranch),
		merger:     merge.NewCoordinator(cfg.RepoRoot, bus),
		notifier: escalate.FromConfig(escalate.Config{
			Terminal:     cfg.Notify.Terminal,
			WebhookURL:   cfg.Notify.WebhookURL,
			SlackWebhook: cfg.Notify.SlackWebhook,
		}),
		notifySem:  make(chan struct{}, maxInflightNotices),
		inProgress: make(map[string]*router.FactoryTask),
		completed:  make(map[string]bool),
		retries:    make(map[string]int),
		lastErrors: make(map[string]string),
		taskRuns:   make(map[string]int64),
		invokers:   invokers,
		sleep:      sleepCtx,
	}
	return o, nil
}

// RequestShutdown asks the control plane to stop after the current
// iteration. Safe to call from signal handlers.
func (o *Orchestrator) RequestShutdown() {
	o.shuttingDown.Store(true)
}

// Bus returns the event bus the orchestrator emits on.
func (o *Orchestrator) Bus() *events.Bus {
	return o.bus
}

// Run executes the factory until convergence or shutdown. Returns nil
// on convergence, ErrStuck when unservable work remains, ErrAborted on
// an interrupted run, or an initialization error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if len(o.cfg.SpecURLs) > 0 {
		fetcher := planner.NewSpecFetcher()
		o.specContent = fetcher.FetchAll(ctx, o.cfg.SpecURLs)
	}

	sessions, err := session.Open(o.cfg.SessionDBPath())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	o.sessions = sessions
	defer o.sessions.Close()

	o.sessionID, err = o.sessions.CreateSession(o.cfg.RepoRoot, o.cfg.TrunkBranch)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	pool, err := worker.NewPool(ctx, o.cfg, o.manager, o.bus, o.invokers)
	if err != nil {
		return err
	}
	o.pool = pool

	o.planner = planner.New(o.plannerOptions())

	o.emit(events.NewEvent(events.FactoryStarted, "").WithPayload(map[string]any{
		"workers": len(pool.Workers()),
		"session": o.sessionID,
	}))

	o.planner.Start(ctx)
	o.refreshQueue()

	loopErr := o.loop(ctx)

	o.shutdown(loopErr)
	return loopErr
}

// plannerOptions builds the planner wiring. The snapshot closure runs
// on the control plane; the callbacks run on the planner goroutine and
// only touch the injection buffer.
func (o *Orchestrator) plannerOptions() planner.Options {
	plannerInvoker := func() provider.Invoker {
		factory := o.invokers
		if factory == nil {
			factory = func(name string) (provider.Invoker, error) {
				return provider.ForProvider(name)
			}
		}
		inv, err := factory(router.ProviderClaude)
		if err != nil {
			return nil
		}
		return inv
	}()

	return planner.Options{
		Invoker: plannerInvoker,
		ProviderOpts: provider.Options{
			ProjectRoot: o.cfg.RepoRoot,
			Model:       o.cfg.PlannerModel,
			DryRun:      o.cfg.DryRun,
			TokenLimit:  o.cfg.TokenLimitFor(router.ProviderClaude, o.cfg.PlannerModel),
			Timeout:     o.cfg.ProviderTimeout,
		},
		Interval:    o.cfg.PlannerInterval,
		Threshold:   o.cfg.PlannerThreshold,
		SpecContent: o.specContent,
		Snapshot:    o.backlogSnapshot,
		OnNewTasks: func(tasks []prd.Item) {
			o.injectMu.Lock()
			o.injections = append(o.injections, tasks...)
			o.injectMu.Unlock()
		},
		OnSpecSatisfied: func() {},
		Bus:             o.bus,
	}
}

// backlogSnapshot builds the planner's immutable view of the backlog.
func (o *Orchestrator) backlogSnapshot() planner.BacklogView {
	view := planner.BacklogView{ExistingIDs: make(map[string]bool)}

	for _, f := range o.store.Files {
		if view.ProjectDescription == "" {
			view.ProjectDescription = f.Category
		}
	}
	for _, item := range o.store.AllItems() {
		view.ExistingIDs[item.ID] = true
		view.Items = append(view.Items, planner.ItemStatus{
			ID:       item.ID,
			Name:     item.DisplayName(),
			Status:   item.Status,
			Priority: item.Priority,
		})
	}
	for id := range o.completed {
		view.RecentCompletions = append(view.RecentCompletions, id)
	}
	return view
}

// notifyAsync delivers a notice without blocking the control plane.
// When the semaphore is full the notice is dropped rather than queued.
func (o *Orchestrator) notifyAsync(notice escalate.Notice) {
	select {
	case o.notifySem <- struct{}{}:
	default:
		return
	}
	o.notifyWG.Add(1)
	go func() {
		defer func() {
			<-o.notifySem
			o.notifyWG.Done()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), noticeTimeout)
		defer cancel()
		_ = o.notifier.Notify(ctx, notice)
	}()
}

// SlotSnapshots exposes limiter state for the dashboard slot panel.
func (o *Orchestrator) SlotSnapshots() []ratelimit.Snapshot {
	return o.limiter.Snapshots()
}

// pendingInjections reports whether planner tasks await draining.
func (o *Orchestrator) pendingInjections() bool {
	o.injectMu.Lock()
	defer o.injectMu.Unlock()
	return len(o.injections) > 0
}

// applyInjections drains planner-proposed tasks into the PRD and queue.
func (o *Orchestrator) applyInjections() {
	o.injectMu.Lock()
	pending := o.injections
	o.injections = nil
	o.injectMu.Unlock()

	if len(pending) == 0 {
		return
	}

	items := make([]*prd.Item, 0, len(pending))
	for i := range pending {
		items = append(items, &pending[i])
	}
	added, err := o.store.Append(items)
	if err != nil {
		o.emit(events.NewEvent(events.PlannerFailed, "").WithError(err))
		return
	}
	for _, item := range added {
		o.emit(events.NewEvent(events.TaskQueued, item.ID).
			WithPayload(map[string]any{"source": "planner"}))
	}
	o.refreshQueue()
}

// shutdown drains the pool, resets interrupted items, and closes the
// session. loopErr tells it how the run ended.
func (o *Orchestrator) shutdown(loopErr error) {
	o.planner.Wait()
	o.pool.Shutdown(o.cfg.Cleanup, o.manager)

	// Results that landed after the loop exited still hold slots.
	for _, res := range o.pool.DrainReady() {
		if slot := res.Task.AssignedSlot; slot != nil {
			o.limiter.Release(slot.Provider, slot.Model)
		}
	}

	o.notifyWG.Wait()

	for id := range o.inProgress {
		if err := o.store.SetStatus(id, prd.StatusPending); err != nil {
			o.emit(events.NewEvent(events.TaskQueued, id).WithError(err))
		}
	}

	status := session.StatusConverged
	eventType := events.FactoryConverged
	switch {
	case errors.Is(loopErr, ErrStuck):
		status = session.StatusStuck
		eventType = events.FactoryStuck
	case loopErr != nil:
		status = session.StatusStopped
		eventType = events.FactoryStopped
	}

	summary := o.summary()
	if err := o.sessions.CompleteSession(o.sessionID, status, session.Summary{
		Completed: summary.TasksCompleted,
		Failed:    summary.TasksFailed,
		Dropped:   summary.TasksDropped,
		Merged:    summary.SuccessfulMerges,
	}); err != nil {
		o.emit(events.NewEvent(events.FactoryStopped, "").WithError(err))
	}

	o.emit(events.NewEvent(eventType, "").WithPayload(summary))
}

func (o *Orchestrator) emit(e events.Event) {
	if o.bus != nil {
		o.bus.Emit(e)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
