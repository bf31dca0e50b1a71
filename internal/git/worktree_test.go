package git

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureWorktreeNewBranch(t *testing.T) {
	stub := withStub(t)
	// Branch does not exist yet.
	stub.Script("rev-parse --verify refs/heads/ralph-factory/worker-0", "", errors.New("unknown revision"))

	m := NewWorktreeManager(t.TempDir(), "main")
	path, err := m.EnsureWorktree(context.Background(), "worker-0", "ralph-factory/worker-0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.WorktreeBase, "worker-0"), path)

	adds := stub.CallsMatching("worktree add -b ralph-factory/worker-0")
	require.Len(t, adds, 1, "new branch created from trunk:\n%s", stub)
	assert.Equal(t, "main", adds[0].Args[len(adds[0].Args)-1])
}

func TestEnsureWorktreeExistingBranch(t *testing.T) {
	stub := withStub(t)
	stub.Script("rev-parse --verify refs/heads/ralph-factory/worker-1", "deadbeef\n", nil)

	m := NewWorktreeManager(t.TempDir(), "main")
	_, err := m.EnsureWorktree(context.Background(), "worker-1", "ralph-factory/worker-1")
	require.NoError(t, err)

	adds := stub.CallsMatching("worktree add")
	require.Len(t, adds, 1)
	joined := strings.Join(adds[0].Args, " ")
	assert.NotContains(t, joined, " -b ", "existing branch is checked out, not recreated")
}

func TestResetToHeadOrder(t *testing.T) {
	stub := withStub(t)
	stub.Script("rev-parse main", "abc123\n", nil)

	m := NewWorktreeManager("/repo", "main")
	head, err := m.ResetToHead(context.Background(), "/repo/.ralph/worktrees/worker-0")
	require.NoError(t, err)
	assert.Equal(t, "abc123", head)

	require.Len(t, stub.CallsMatching("reset --hard abc123"), 1)
	require.Len(t, stub.CallsMatching("clean -fd"), 1)
}

func TestCommitAll(t *testing.T) {
	stub := withStub(t)
	stub.Script("status --porcelain", " M main.go\n", nil)
	stub.Script("rev-parse HEAD", "f00dface\n", nil)

	m := NewWorktreeManager("/repo", "main")
	hash, err := m.CommitAll(context.Background(), "/wt", "Ralph: First task (core-T-1)")
	require.NoError(t, err)
	assert.Equal(t, "f00dface", hash)

	commits := stub.CallsMatching("commit -m")
	require.Len(t, commits, 1)
	assert.Contains(t, commits[0].Args, "Ralph: First task (core-T-1)")
	assert.Contains(t, commits[0].Args, "--no-verify")
}

func TestCommitAllNoChanges(t *testing.T) {
	stub := withStub(t)
	// status --porcelain unscripted returns empty output.

	m := NewWorktreeManager("/repo", "main")
	_, err := m.CommitAll(context.Background(), "/wt", "msg")
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Empty(t, stub.CallsMatching("commit"), "clean worktree must not commit")
}

func TestRemoveWorktree(t *testing.T) {
	stub := withStub(t)

	m := NewWorktreeManager("/repo", "main")
	wt := filepath.Join(t.TempDir(), "worker-0")
	require.NoError(t, m.RemoveWorktree(context.Background(), wt))

	removes := stub.CallsMatching("worktree remove")
	require.Len(t, removes, 1)
	assert.Contains(t, removes[0].Args, "--force")
}
