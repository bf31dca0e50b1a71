package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/ralph/internal/git"
	"github.com/RevCBH/ralph/internal/provider"
)

func testPool(t *testing.T, maxWorkers int, inv provider.Invoker) *Pool {
	t.Helper()
	scriptedGit(t)

	cfg := testConfig(t)
	cfg.MaxWorkers = maxWorkers
	manager := git.NewWorktreeManager(cfg.RepoRoot, cfg.TrunkBranch)

	pool, err := NewPool(context.Background(), cfg, manager, nil, stubFactory(inv))
	require.NoError(t, err)
	return pool
}

func TestNewPoolRoster(t *testing.T) {
	pool := testPool(t, 3, nil)
	assert.Len(t, pool.Workers(), 3)
	assert.Equal(t, 0, pool.ActiveCount())
	assert.NotNil(t, pool.GetIdleWorker())
}

func TestNewPoolEmptyRoster(t *testing.T) {
	stub := scriptedGit(t)
	stub.Script("worktree add", "", errors.New("fatal: cannot create worktree"))

	cfg := testConfig(t)
	manager := git.NewWorktreeManager(cfg.RepoRoot, cfg.TrunkBranch)

	_, err := NewPool(context.Background(), cfg, manager, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyRoster)
}

func TestAssignAndAwait(t *testing.T) {
	inv := &stubInvoker{result: provider.Result{
		Success: true,
		Output:  "<complete>DONE</complete>",
	}}
	pool := testPool(t, 2, inv)

	// The stub git never reports changes, so the run fails at commit;
	// what matters here is that exactly one result arrives.
	w := pool.GetIdleWorker()
	require.NotNil(t, w)

	task := testTask("T-1")
	require.NoError(t, pool.AssignTask(context.Background(), w, task, testSlot))

	require.NotNil(t, task.AssignedSlot)
	assert.Equal(t, "claude:sonnet", task.AssignedSlot.Key())
	require.NotNil(t, task.AssignedWorker)
	assert.Equal(t, w.ID, *task.AssignedWorker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := pool.AwaitAnyCompletion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T-1", result.Task.Item.ID)
	assert.Equal(t, w.ID, result.WorkerID)
}

func TestAssignBusyWorkerRefused(t *testing.T) {
	gate := make(chan struct{})
	inv := &stubInvoker{
		result: provider.Result{Success: true, Output: "<complete>DONE</complete>"},
		block:  gate,
	}
	pool := testPool(t, 2, inv)

	w := pool.Workers()[0]
	require.NoError(t, pool.AssignTask(context.Background(), w, testTask("T-1"), testSlot))

	// Busy worker refuses a second assignment.
	require.Eventually(t, func() bool { return w.Status() != StatusIdle }, time.Second, 5*time.Millisecond)
	err := pool.AssignTask(context.Background(), w, testTask("T-2"), testSlot)
	assert.Error(t, err)

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = pool.AwaitAnyCompletion(ctx)
	require.NoError(t, err)
}

func TestAssignAtCeiling(t *testing.T) {
	gate := make(chan struct{})
	inv := &stubInvoker{
		result: provider.Result{Success: true, Output: "<complete>DONE</complete>"},
		block:  gate,
	}
	pool := testPool(t, 2, inv)
	pool.max = 1

	require.NoError(t, pool.AssignTask(context.Background(), pool.Workers()[0], testTask("T-1"), testSlot))

	err := pool.AssignTask(context.Background(), pool.Workers()[1], testTask("T-2"), testSlot)
	assert.ErrorIs(t, err, ErrPoolSaturated)
	assert.Equal(t, 1, pool.ActiveCount())

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = pool.AwaitAnyCompletion(ctx)
	require.NoError(t, err)
}

func TestDrainReady(t *testing.T) {
	inv := &stubInvoker{result: provider.Result{Success: true, Output: "<complete>DONE</complete>"}}
	pool := testPool(t, 2, inv)

	assert.Empty(t, pool.DrainReady(), "nothing buffered yet")

	require.NoError(t, pool.AssignTask(context.Background(), pool.Workers()[0], testTask("T-1"), testSlot))
	pool.wg.Wait()

	results := pool.DrainReady()
	require.Len(t, results, 1)
	assert.Equal(t, "T-1", results[0].Task.Item.ID)
}

func TestShutdownWaitsForInflight(t *testing.T) {
	gate := make(chan struct{})
	inv := &stubInvoker{
		result: provider.Result{Success: true, Output: "<complete>DONE</complete>"},
		block:  gate,
	}
	pool := testPool(t, 1, inv)

	require.NoError(t, pool.AssignTask(context.Background(), pool.Workers()[0], testTask("T-1"), testSlot))

	done := make(chan struct{})
	go func() {
		pool.Shutdown(false, nil)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a task was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown never returned")
	}
}
