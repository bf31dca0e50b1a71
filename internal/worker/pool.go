package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RevCBH/ralph/internal/config"
	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/git"
	"github.com/RevCBH/ralph/internal/router"
)

// ErrEmptyRoster means no worker survived initialization.
var ErrEmptyRoster = errors.New("worker pool: no workers initialized")

// ErrPoolSaturated means the concurrency ceiling was reached.
var ErrPoolSaturated = errors.New("worker pool: at capacity")

// Pool holds a fixed roster of workers. Results from all workers arrive
// on one shared completion channel.
type Pool struct {
	workers []*Worker
	results chan *Result
	max     int
	bus     *events.Bus

	mu     sync.Mutex
	active int
	wg     sync.WaitGroup
}

// NewPool creates maxWorkers workers and initializes their worktrees.
// Workers whose worktree setup fails are dropped from the roster; an
// empty final roster is an error.
func NewPool(ctx context.Context, cfg *config.FactoryConfig, manager *git.WorktreeManager, bus *events.Bus, invokers InvokerFactory) (*Pool, error) {
	pool := &Pool{
		results: make(chan *Result, cfg.MaxWorkers),
		max:     cfg.MaxWorkers,
		bus:     bus,
	}

	for id := 0; id < cfg.MaxWorkers; id++ {
		w := newWorker(id, cfg, manager, bus, invokers)
		if err := w.init(ctx); err != nil {
			if bus != nil {
				bus.Emit(events.NewEvent(events.WorktreeRemoved, "").WithWorker(id).WithError(err))
			}
			continue
		}
		pool.workers = append(pool.workers, w)
	}

	if len(pool.workers) == 0 {
		return nil, ErrEmptyRoster
	}
	return pool, nil
}

// Workers returns the surviving roster.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// GetIdleWorker returns an idle worker, or nil when all are busy.
func (p *Pool) GetIdleWorker() *Worker {
	for _, w := range p.workers {
		if w.Status() == StatusIdle {
			return w
		}
	}
	return nil
}

// ActiveCount returns the number of in-flight executions.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// AssignTask starts executing the task on the worker. Non-blocking: the
// Result arrives later via AwaitAnyCompletion. Assignment is refused at
// the concurrency ceiling or when the worker is busy.
func (p *Pool) AssignTask(ctx context.Context, w *Worker, task *router.FactoryTask, slot router.Slot) error {
	p.mu.Lock()
	if p.active >= p.max {
		p.mu.Unlock()
		return ErrPoolSaturated
	}
	if w.Status() != StatusIdle {
		p.mu.Unlock()
		return fmt.Errorf("worker %d is not idle", w.ID)
	}
	p.active++
	p.mu.Unlock()

	task.AssignedSlot = &slot
	workerID := w.ID
	task.AssignedWorker = &workerID

	if p.bus != nil {
		p.bus.Emit(events.NewEvent(events.TaskAssigned, task.Item.ID).WithWorker(w.ID).
			WithPayload(map[string]any{"slot": slot.Key(), "tier": string(slot.Tier)}))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		result := w.Execute(ctx, task, slot)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()

		p.results <- result
	}()
	return nil
}

// AwaitAnyCompletion blocks until a worker finishes and returns its
// Result. Returns ctx.Err() when the context ends first.
func (p *Pool) AwaitAnyCompletion(ctx context.Context) (*Result, error) {
	select {
	case result := <-p.results:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DrainReady returns any results already buffered, without blocking.
func (p *Pool) DrainReady() []*Result {
	var out []*Result
	for {
		select {
		case result := <-p.results:
			out = append(out, result)
		default:
			return out
		}
	}
}

// Shutdown waits for in-flight executions, then optionally removes the
// worktrees. The background context is used for cleanup so teardown
// still runs after the run context is cancelled.
func (p *Pool) Shutdown(cleanupWorktrees bool, manager *git.WorktreeManager) {
	p.wg.Wait()

	if !cleanupWorktrees {
		return
	}
	ctx := context.Background()
	for _, w := range p.workers {
		if w.worktreePath == "" {
			continue
		}
		if err := manager.RemoveWorktree(ctx, w.worktreePath); err == nil && p.bus != nil {
			p.bus.Emit(events.NewEvent(events.WorktreeRemoved, "").WithWorker(w.ID))
		}
	}
}
