package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/RevCBH/ralph/internal/escalate"
	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/router"
	"github.com/RevCBH/ralph/internal/worker"
)

// Pacing delays for the idle branches of the main loop.
const (
	plannerWarmupDelay = 3 * time.Second
	backoffWaitDelay   = 5 * time.Second
	idleDelay          = 2 * time.Second
)

// loop is the control plane. It exits on convergence (nil), shutdown
// (ErrAborted), or a stuck backlog (ErrStuck).
func (o *Orchestrator) loop(ctx context.Context) error {
	for {
		if o.shuttingDown.Load() || ctx.Err() != nil {
			return ErrAborted
		}

		o.applyInjections()
		if o.converged() {
			return nil
		}

		assigned := o.tryAssignTasks(ctx)

		if o.pool.ActiveCount() > 0 {
			result, err := o.pool.AwaitAnyCompletion(ctx)
			if err != nil {
				return ErrAborted
			}
			o.handleResult(ctx, result)
			continue
		}

		if assigned > 0 {
			continue
		}

		if len(o.queue) == 0 && len(o.inProgress) == 0 {
			if o.specContent != "" && !o.planner.HasEvaluated() {
				o.sleep(ctx, plannerWarmupDelay)
				o.refreshQueue()
				continue
			}
			return nil
		}

		switch {
		case len(o.limiter.AvailableSlots()) == 0 && len(o.queue) > 0:
			o.sleep(ctx, backoffWaitDelay)
		case len(o.queue) > 0 && len(o.inProgress) == 0:
			return ErrStuck
		default:
			o.sleep(ctx, idleDelay)
		}
	}
}

// converged reports whether the run is finished.
func (o *Orchestrator) converged() bool {
	if o.planner != nil && o.planner.SpecSatisfied() && len(o.inProgress) == 0 {
		return true
	}
	if len(o.queue) == 0 && len(o.inProgress) == 0 && !o.pendingInjections() {
		if o.specContent == "" || (o.planner != nil && o.planner.HasEvaluated()) {
			return true
		}
	}
	return false
}

// tryAssignTasks walks the queue in order and hands tasks to idle
// workers while slots are acquirable. Returns the number assigned.
func (o *Orchestrator) tryAssignTasks(ctx context.Context) int {
	assigned := 0

	remaining := o.queue[:0]
	for i, task := range o.queue {
		w := o.pool.GetIdleWorker()
		if w == nil || o.pool.ActiveCount() >= o.cfg.MaxWorkers {
			remaining = append(remaining, o.queue[i:]...)
			break
		}

		slot := o.router.FindAvailableSlot(task.Tier)
		if slot == nil {
			remaining = append(remaining, task)
			continue
		}
		if !o.limiter.TryAcquire(slot.Provider, slot.Model) {
			remaining = append(remaining, task)
			continue
		}

		id := task.Item.ID
		o.inProgress[id] = task
		if err := o.store.SetStatus(id, prd.StatusInProgress); err != nil {
			o.emit(events.NewEvent(events.TaskAssigned, id).WithError(err))
		}

		if runID, err := o.sessions.StartTask(o.sessionID, id, slot.Provider, slot.Model, string(slot.Tier), w.ID); err == nil {
			o.taskRuns[id] = runID
		}

		if err := o.pool.AssignTask(ctx, w, task, *slot); err != nil {
			// Roll back; the task stays queued.
			delete(o.inProgress, id)
			o.limiter.Release(slot.Provider, slot.Model)
			_ = o.store.SetStatus(id, prd.StatusPending)
			remaining = append(remaining, task)
			continue
		}
		assigned++
	}
	o.queue = remaining
	return assigned
}

// handleResult processes one worker completion on the control plane.
func (o *Orchestrator) handleResult(ctx context.Context, res *worker.Result) {
	task := res.Task
	id := task.Item.ID
	delete(o.inProgress, id)

	slot := task.AssignedSlot
	if slot != nil {
		o.limiter.Release(slot.Provider, slot.Model)
	}

	if res.RateLimited {
		if slot != nil {
			o.limiter.ReportRateLimit(slot.Provider, slot.Model)
		}
		o.emit(events.NewEvent(events.TaskRateLimited, id).WithWorker(res.WorkerID).
			WithPayload(map[string]any{"slot": slotKey(slot)}))
		o.finishTaskRun(id, "rate_limited", "", res.Error)
		o.requeue(task, res.Error, false)
		return
	}

	// The provider answered; backoff state clears even on task failure.
	if slot != nil {
		o.limiter.ReportSuccess(slot.Provider, slot.Model)
	}

	if res.Success && res.CommitHash != "" {
		pick := o.merger.CherryPick(ctx, id, res.CommitHash)
		if pick.Success {
			if err := o.store.MarkComplete(id); err != nil {
				o.emit(events.NewEvent(events.TaskCompleted, id).WithError(err))
			}
			o.completed[id] = true
			delete(o.lastErrors, id)
			o.finishTaskRun(id, "completed", pick.CommitHash, "")
			o.emit(events.NewEvent(events.TaskCompleted, id).WithWorker(res.WorkerID).
				WithPayload(map[string]any{"commit": pick.CommitHash, "duration": res.Duration.String()}))
			o.planner.MaybeRefill(ctx, len(o.queue)+len(o.inProgress))
			o.refreshQueue()
			return
		}

		reason := "merge failed"
		if pick.Conflict {
			reason = "merge conflict with trunk"
		} else if pick.Err != nil {
			reason = fmt.Sprintf("merge failed: %v", pick.Err)
		}
		o.finishTaskRun(id, "merge_failed", "", reason)
		o.requeue(task, reason, true)
		return
	}

	o.finishTaskRun(id, "failed", "", res.Error)
	o.requeue(task, res.Error, true)
}

// requeue returns a task to the queue. bumpRetry distinguishes real
// failures from rate limiting; past the retry limit the task is
// dropped and escalated to the notifier.
func (o *Orchestrator) requeue(task *router.FactoryTask, reason string, bumpRetry bool) {
	id := task.Item.ID
	o.lastErrors[id] = reason

	withWorker := func(e events.Event) events.Event {
		if task.AssignedWorker != nil {
			return e.WithWorker(*task.AssignedWorker)
		}
		return e
	}

	retryCount := o.retries[id]
	if bumpRetry {
		o.failures++
		retryCount++
		o.retries[id] = retryCount

		if retryCount > o.cfg.RetryLimit {
			o.dropped = append(o.dropped, id)
			_ = o.store.SetStatus(id, prd.StatusPending)
			o.emit(withWorker(events.NewEvent(events.TaskDropped, id).
				WithPayload(map[string]any{"retries": retryCount - 1, "reason": reason})))
			o.notifyAsync(escalate.Notice{
				Severity: escalate.SeverityCritical,
				TaskID:   id,
				Title:    "Task dropped after exhausting retries",
				Message:  reason,
				Context: map[string]string{
					"retries": strconv.Itoa(retryCount - 1),
					"tier":    string(task.Tier),
				},
			})
			return
		}
		o.emit(withWorker(events.NewEvent(events.TaskRetry, id).
			WithPayload(map[string]any{"retry": retryCount, "reason": reason})))
	}

	if err := o.store.SetStatus(id, prd.StatusPending); err != nil {
		o.emit(events.NewEvent(events.TaskRetry, id).WithError(err))
	}

	item, file := o.store.Find(id)
	if item == nil {
		return
	}
	category := item.Category
	if category == "" {
		category = file.Category
	}
	rebuilt := o.router.BuildFactoryTask(prd.ReadyItem{Item: item, File: file, Category: category}, retryCount)
	rebuilt.LastError = reason
	o.queue = append(o.queue, rebuilt)
	o.sortQueue()
}

// refreshQueue rebuilds the queue from the PRD's ready set, skipping
// anything already queued, running, completed, or dropped.
func (o *Orchestrator) refreshQueue() {
	queued := make(map[string]bool, len(o.queue))
	for _, task := range o.queue {
		queued[task.Item.ID] = true
	}

	ready := o.store.Ready(prd.ReadyFilter{
		Category: o.cfg.Category,
		Priority: o.cfg.Priority,
	})
	for _, r := range ready {
		id := r.Item.ID
		if queued[id] || o.completed[id] {
			continue
		}
		if _, running := o.inProgress[id]; running {
			continue
		}
		if o.retries[id] > o.cfg.RetryLimit {
			continue
		}

		task := o.router.BuildFactoryTask(r, o.retries[id])
		task.LastError = o.lastErrors[id]
		o.queue = append(o.queue, task)
		queued[id] = true
		o.emit(events.NewEvent(events.TaskQueued, id).
			WithPayload(map[string]any{"tier": string(task.Tier), "score": task.Score}))
	}
	o.sortQueue()
}

// priorityRank orders priorities for the queue sort. Unknown values
// sort with medium.
func priorityRank(priority string) int {
	switch priority {
	case "high":
		return 0
	case "low":
		return 2
	default:
		return 1
	}
}

// sortQueue orders by priority ascending then complexity descending.
// The sort is stable so equal tasks keep their arrival order.
func (o *Orchestrator) sortQueue() {
	sort.SliceStable(o.queue, func(i, j int) bool {
		pi, pj := priorityRank(o.queue[i].Item.Priority), priorityRank(o.queue[j].Item.Priority)
		if pi != pj {
			return pi < pj
		}
		return o.queue[i].Score > o.queue[j].Score
	})
}

func (o *Orchestrator) finishTaskRun(id, status, commitHash, errMsg string) {
	runID, ok := o.taskRuns[id]
	if !ok {
		return
	}
	delete(o.taskRuns, id)
	if err := o.sessions.FinishTask(runID, status, commitHash, errMsg); err != nil {
		o.emit(events.NewEvent(events.TaskCompleted, id).WithError(err))
	}
}

func slotKey(slot *router.Slot) string {
	if slot == nil {
		return ""
	}
	return slot.Key()
}
