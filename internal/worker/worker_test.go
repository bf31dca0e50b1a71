package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/ralph/internal/config"
	"github.com/RevCBH/ralph/internal/git"
	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/provider"
	"github.com/RevCBH/ralph/internal/router"
	"github.com/RevCBH/ralph/internal/testutil"
)

// stubInvoker returns a fixed result; block, when set, holds the
// invocation until the channel is closed.
type stubInvoker struct {
	result provider.Result
	block  chan struct{}
}

func (s *stubInvoker) Invoke(ctx context.Context, prompt string, opts provider.Options) provider.Result {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return s.result
}

func (s *stubInvoker) Name() provider.Type { return "stub" }

func stubFactory(inv provider.Invoker) InvokerFactory {
	return func(name string) (provider.Invoker, error) { return inv, nil }
}

func testConfig(t *testing.T) *config.FactoryConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RepoRoot = t.TempDir()
	cfg.SkipValidation = true
	return cfg
}

func scriptedGit(t *testing.T) *testutil.StubRunner {
	t.Helper()
	stub := testutil.NewStubRunner()
	git.SetDefaultRunner(stub)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })
	stub.Script("rev-parse main", "trunkhead\n", nil)
	return stub
}

func testWorker(t *testing.T, cfg *config.FactoryConfig, inv provider.Invoker) *Worker {
	t.Helper()
	manager := git.NewWorktreeManager(cfg.RepoRoot, cfg.TrunkBranch)
	w := newWorker(0, cfg, manager, nil, stubFactory(inv))
	w.worktreePath = t.TempDir()
	return w
}

func testTask(id string) *router.FactoryTask {
	return &router.FactoryTask{
		Item:     &prd.Item{ID: id, Name: "Test task", Description: "do the thing"},
		Category: "core",
		Tier:     router.TierMedium,
	}
}

var testSlot = router.Slot{Provider: "claude", Model: "sonnet", Tier: router.TierMedium}

func TestExecuteSuccess(t *testing.T) {
	stub := scriptedGit(t)
	stub.Script("status --porcelain", " M main.go\n", nil)
	stub.Script("rev-parse HEAD", "workhash\n", nil)

	inv := &stubInvoker{result: provider.Result{
		Success: true,
		Output:  "implemented it\n<complete>DONE</complete>",
	}}
	w := testWorker(t, testConfig(t), inv)

	result := w.Execute(context.Background(), testTask("T-1"), testSlot)

	require.Empty(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "workhash", result.CommitHash)
	assert.True(t, result.ValidationPassed)
	assert.Equal(t, StatusIdle, w.Status(), "worker is idle once the result exists")

	// Worktree was reset to trunk before the provider ran.
	require.Len(t, stub.CallsMatching("reset --hard trunkhead"), 1)

	commits := stub.CallsMatching("commit -m")
	require.Len(t, commits, 1)
	assert.Contains(t, commits[0].Args, "Ralph: Test task (core-T-1)")
}

func TestExecuteNoCompletionMarker(t *testing.T) {
	scriptedGit(t)

	inv := &stubInvoker{result: provider.Result{Success: true, Output: "I made some progress"}}
	w := testWorker(t, testConfig(t), inv)

	result := w.Execute(context.Background(), testTask("T-1"), testSlot)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "did not signal completion")
}

func TestExecuteRateLimited(t *testing.T) {
	scriptedGit(t)

	inv := &stubInvoker{result: provider.Result{
		Success: false,
		Raw:     "API error: 429 too many requests",
		Error:   "exit status 1",
	}}
	w := testWorker(t, testConfig(t), inv)

	result := w.Execute(context.Background(), testTask("T-1"), testSlot)

	assert.False(t, result.Success)
	assert.True(t, result.RateLimited, "quota errors are not real failures")
}

func TestExecuteNoChanges(t *testing.T) {
	scriptedGit(t)
	// status --porcelain unscripted returns empty: clean worktree.

	inv := &stubInvoker{result: provider.Result{
		Success: true,
		Output:  "<complete>DONE</complete>",
	}}
	w := testWorker(t, testConfig(t), inv)

	result := w.Execute(context.Background(), testTask("T-1"), testSlot)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no changes")
}

func TestExecuteGateFailure(t *testing.T) {
	scriptedGit(t)

	cfg := testConfig(t)
	cfg.SkipValidation = false
	cfg.Gates.Commands = []string{"false"}

	inv := &stubInvoker{result: provider.Result{
		Success: true,
		Output:  "<complete>DONE</complete>",
	}}
	w := testWorker(t, cfg, inv)

	result := w.Execute(context.Background(), testTask("T-1"), testSlot)

	assert.False(t, result.Success)
	assert.False(t, result.ValidationPassed)
	assert.Contains(t, result.Error, "validation failed")
}

func TestExecuteResetFailure(t *testing.T) {
	stub := scriptedGit(t)
	stub.Script("reset --hard", "", errors.New("fatal: unable to reset"))

	inv := &stubInvoker{result: provider.Result{Success: true, Output: "<complete>DONE</complete>"}}
	w := testWorker(t, testConfig(t), inv)

	result := w.Execute(context.Background(), testTask("T-1"), testSlot)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "reset worktree")
}

func TestGateCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.SkipValidation = false
	cfg.Gates.Commands = []string{"go test ./..."}
	cfg.Gates.PerCategory = map[string][]string{"frontend": {"npm test"}}

	w := testWorker(t, cfg, nil)

	assert.Equal(t, []string{"go test ./..."}, w.gateCommands(&prd.Item{ID: "a"}, "core"))
	assert.Equal(t, []string{"npm test"}, w.gateCommands(&prd.Item{ID: "b"}, "frontend"))

	override := &prd.Item{ID: "c", Validation: &prd.ValidationOverride{Gates: []string{"make check"}}}
	assert.Equal(t, []string{"make check"}, w.gateCommands(override, "core"))

	skip := &prd.Item{ID: "d", Validation: &prd.ValidationOverride{Skip: true}}
	assert.Nil(t, w.gateCommands(skip, "core"))

	cfg.SkipValidation = true
	assert.Nil(t, w.gateCommands(&prd.Item{ID: "e"}, "core"))
}
