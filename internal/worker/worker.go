// Package worker executes one backlog task at a time inside an
// isolated git worktree and reports the outcome to the orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RevCBH/ralph/internal/config"
	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/gate"
	"github.com/RevCBH/ralph/internal/git"
	"github.com/RevCBH/ralph/internal/learnings"
	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/provider"
	"github.com/RevCBH/ralph/internal/ratelimit"
	"github.com/RevCBH/ralph/internal/router"
)

// Status is a worker's lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusValidating Status = "validating"
	StatusMerging    Status = "merging"
)

// Result is the outcome of one task execution. Exactly one Result is
// produced per assignment, on every exit path.
type Result struct {
	Task     *router.FactoryTask
	WorkerID int

	// Success means the task produced a commit ready to merge
	Success bool

	// RateLimited means the provider hit a quota; not a real failure
	RateLimited bool

	// ValidationPassed is false only when the gates rejected the work
	ValidationPassed bool

	// CommitHash is the worktree commit to cherry-pick, "" on failure
	CommitHash string

	// Output is the provider's final message text
	Output string

	// Error summarizes the failure, "" on success
	Error string

	Duration time.Duration
}

// InvokerFactory resolves a provider name to an Invoker. Swapped out
// in tests.
type InvokerFactory func(name string) (provider.Invoker, error)

// Worker owns one worktree and executes tasks sequentially.
type Worker struct {
	ID int

	cfg      *config.FactoryConfig
	manager  *git.WorktreeManager
	gates    *gate.Runner
	recorder *learnings.Recorder
	bus      *events.Bus
	invokers InvokerFactory

	worktreePath string
	branch       string

	mu     sync.Mutex
	status Status
}

// newWorker builds a worker; the pool calls init before use.
func newWorker(id int, cfg *config.FactoryConfig, manager *git.WorktreeManager, bus *events.Bus, invokers InvokerFactory) *Worker {
	if invokers == nil {
		invokers = func(name string) (provider.Invoker, error) {
			return provider.ForProvider(name)
		}
	}
	return &Worker{
		ID:       id,
		cfg:      cfg,
		manager:  manager,
		gates:    gate.NewRunner(cfg.Gates.Timeout, cfg.Gates.FailFast),
		recorder: learnings.NewRecorder(cfg.RepoRoot),
		bus:      bus,
		invokers: invokers,
		branch:   fmt.Sprintf("ralph-factory/worker-%d", id),
		status:   StatusIdle,
	}
}

// init ensures the worker's worktree and branch exist.
func (w *Worker) init(ctx context.Context) error {
	path, err := w.manager.EnsureWorktree(ctx, fmt.Sprintf("worker-%d", w.ID), w.branch)
	if err != nil {
		return err
	}
	w.worktreePath = path
	w.emit(events.NewEvent(events.WorktreeCreated, "").WithWorker(w.ID).
		WithPayload(map[string]any{"path": path}))
	return nil
}

// Status returns the worker's current state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// WorktreePath returns the worker's working directory.
func (w *Worker) WorktreePath() string {
	return w.worktreePath
}

func (w *Worker) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// Execute runs one task on the assigned slot. It never panics and never
// returns an error: every failure mode is encoded in the Result. The
// worker is idle again by the time the Result is delivered.
func (w *Worker) Execute(ctx context.Context, task *router.FactoryTask, slot router.Slot) *Result {
	start := time.Now()
	w.setStatus(StatusRunning)
	defer w.setStatus(StatusIdle)

	result := &Result{Task: task, WorkerID: w.ID, ValidationPassed: true}
	fail := func(format string, args ...any) *Result {
		result.Error = fmt.Sprintf(format, args...)
		result.Duration = time.Since(start)
		return result
	}

	if _, err := w.manager.ResetToHead(ctx, w.worktreePath); err != nil {
		return fail("reset worktree: %v", err)
	}
	w.emit(events.NewEvent(events.WorktreeReset, task.Item.ID).WithWorker(w.ID))

	// Reload the item so retry prompts see the latest stored feedback.
	item := task.Item
	if file, err := prd.Load(task.PrdPath); err == nil {
		for i := range file.Items {
			if file.Items[i].ID == item.ID {
				item = file.Items[i]
				break
			}
		}
	}

	gates := w.gateCommands(item, task.Category)
	prompt := buildPrompt(promptInput{
		Item:       item,
		Category:   task.Category,
		RetryCount: task.RetryCount,
		Gates:      gates,
		LastError:  task.LastError,
	})

	invoker, err := w.invokers(slot.Provider)
	if err != nil {
		return fail("resolve provider %s: %v", slot.Provider, err)
	}

	w.emit(events.NewEvent(events.TaskProviderInvoke, item.ID).WithWorker(w.ID).
		WithPayload(map[string]any{"provider": slot.Provider, "model": slot.Model, "tier": string(slot.Tier)}))

	provResult := invoker.Invoke(ctx, prompt, provider.Options{
		ProjectRoot: w.worktreePath,
		Model:       slot.Model,
		DryRun:      w.cfg.DryRun,
		TokenLimit:  w.cfg.TokenLimitFor(slot.Provider, slot.Model),
		Timeout:     w.cfg.ProviderTimeout,
	})
	result.Output = provResult.Output

	w.emit(events.NewEvent(events.TaskProviderDone, item.ID).WithWorker(w.ID).
		WithPayload(map[string]any{"success": provResult.Success}))

	if count := w.recorder.Record(item.ID, provResult.Raw); count > 0 {
		w.emit(events.NewEvent(events.TaskProviderDone, item.ID).WithWorker(w.ID).
			WithPayload(map[string]any{"learnings": count}))
	}

	if !provResult.Success {
		if ratelimit.Detect(provResult.Raw) {
			result.RateLimited = true
			return fail("provider rate limited: %s", firstLine(provResult.Error))
		}
		return fail("provider failed: %s", firstLine(provResult.Error))
	}

	if !provider.HasCompletionMarker(provResult.Output) && !provider.HasCompletionMarker(provResult.Raw) {
		return fail("provider did not signal completion")
	}

	if len(gates) > 0 {
		w.setStatus(StatusValidating)
		gateResult := w.gates.Run(ctx, w.worktreePath, gates)
		if !gateResult.Passed {
			result.ValidationPassed = false
			w.emit(events.NewEvent(events.TaskValidationFail, item.ID).WithWorker(w.ID).
				WithPayload(map[string]any{"failed_gates": gateResult.FailedGates}))
			return fail("validation failed: %s", strings.Join(gateResult.FailedGates, ", "))
		}
		w.emit(events.NewEvent(events.TaskValidationOK, item.ID).WithWorker(w.ID))
	}

	w.setStatus(StatusMerging)
	message := fmt.Sprintf("Ralph: %s (%s-%s)", item.DisplayName(), task.Category, item.ID)
	hash, err := w.manager.CommitAll(ctx, w.worktreePath, message)
	if err != nil {
		if errors.Is(err, git.ErrNoChanges) {
			return fail("provider signalled completion but made no changes")
		}
		return fail("commit: %v", err)
	}

	result.Success = true
	result.CommitHash = hash
	result.Duration = time.Since(start)
	w.emit(events.NewEvent(events.TaskCommitted, item.ID).WithWorker(w.ID).
		WithPayload(map[string]any{"commit": hash}))
	return result
}

// gateCommands merges per-item overrides with the configured gates.
// Returns nil when validation is skipped globally or for this item.
func (w *Worker) gateCommands(item *prd.Item, category string) []string {
	if w.cfg.SkipValidation || item.SkipsValidation() {
		return nil
	}
	if item.Validation != nil && len(item.Validation.Gates) > 0 {
		return item.Validation.Gates
	}
	return w.cfg.GatesFor(category)
}

func (w *Worker) emit(e events.Event) {
	if w.bus != nil {
		w.bus.Emit(e)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
