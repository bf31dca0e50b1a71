package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoChanges is returned by CommitAll when the provider claimed
// completion but the worktree has nothing to commit.
var ErrNoChanges = errors.New("no changes to commit")

// ErrWorktreeSetup is returned when a worktree cannot be created or reused.
var ErrWorktreeSetup = errors.New("worktree setup failed")

// WorktreeManager handles per-worker worktrees on long-lived branches.
// Each worker owns one linked working directory tied to a branch named
// by the caller (ralph-factory/worker-<id> in factory mode).
type WorktreeManager struct {
	// RepoRoot is the absolute path to the main repository
	RepoRoot string

	// WorktreeBase is the base directory for worktrees (default: .ralph/worktrees/)
	WorktreeBase string

	// TrunkBranch is the integration branch workers start from
	TrunkBranch string
}

// NewWorktreeManager creates a worktree manager rooted at the repository.
func NewWorktreeManager(repoRoot, trunkBranch string) *WorktreeManager {
	return &WorktreeManager{
		RepoRoot:     repoRoot,
		WorktreeBase: filepath.Join(repoRoot, ".ralph", "worktrees"),
		TrunkBranch:  trunkBranch,
	}
}

// EnsureWorktree creates or reuses the worktree at relativePath on
// branchName. An existing valid linked worktree is reused as-is; a
// stale directory is removed and recreated at the current trunk HEAD.
func (m *WorktreeManager) EnsureWorktree(ctx context.Context, relativePath, branchName string) (string, error) {
	worktreePath := filepath.Join(m.WorktreeBase, relativePath)

	if err := os.MkdirAll(m.WorktreeBase, 0755); err != nil {
		return "", fmt.Errorf("%w: create base directory: %v", ErrWorktreeSetup, err)
	}

	if m.isLinkedWorktree(ctx, worktreePath) {
		return worktreePath, nil
	}

	// Stale directory that git no longer tracks: clear it and prune
	// the dangling worktree reference before recreating.
	if _, err := os.Stat(worktreePath); err == nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return "", fmt.Errorf("%w: remove stale directory: %v", ErrWorktreeSetup, err)
		}
		_, _ = gitExec(ctx, m.RepoRoot, "worktree", "prune")
	}

	var err error
	if BranchExists(ctx, m.RepoRoot, branchName) {
		_, err = gitExec(ctx, m.RepoRoot, "worktree", "add", worktreePath, branchName)
	} else {
		_, err = gitExec(ctx, m.RepoRoot, "worktree", "add", "-b", branchName, worktreePath, m.TrunkBranch)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWorktreeSetup, err)
	}

	return worktreePath, nil
}

// isLinkedWorktree reports whether path is a worktree git considers valid.
func (m *WorktreeManager) isLinkedWorktree(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	output, err := gitExec(ctx, m.RepoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "worktree ") {
			continue
		}
		entry := strings.TrimPrefix(line, "worktree ")
		entryResolved, err := filepath.EvalSymlinks(entry)
		if err != nil {
			entryResolved = entry
		}
		if entryResolved == resolved {
			return true
		}
	}
	return false
}

// ResetToHead hard-resets the worktree to the current trunk HEAD of the
// main repository and removes untracked files, so the worker starts
// from exactly the current integration state.
func (m *WorktreeManager) ResetToHead(ctx context.Context, worktreePath string) (string, error) {
	head, err := RevParse(ctx, m.RepoRoot, m.TrunkBranch)
	if err != nil {
		return "", fmt.Errorf("resolve trunk HEAD: %w", err)
	}

	if _, err := gitExec(ctx, worktreePath, "reset", "--hard", head); err != nil {
		return "", fmt.Errorf("reset worktree: %w", err)
	}
	if _, err := gitExec(ctx, worktreePath, "clean", "-fd"); err != nil {
		return "", fmt.Errorf("clean worktree: %w", err)
	}

	return head, nil
}

// CommitAll stages everything in the worktree and commits with the given
// message, returning the new commit hash. Returns ErrNoChanges when the
// worktree is clean.
func (m *WorktreeManager) CommitAll(ctx context.Context, worktreePath, message string) (string, error) {
	if _, err := gitExec(ctx, worktreePath, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add failed: %w", err)
	}

	dirty, err := HasUncommittedChanges(ctx, worktreePath)
	if err != nil {
		return "", err
	}
	if !dirty {
		return "", ErrNoChanges
	}

	if _, err := gitExec(ctx, worktreePath, "commit", "-m", message, "--no-verify"); err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}

	return RevParse(ctx, worktreePath, "HEAD")
}

// RemoveWorktree removes a worktree directory and its git registration.
func (m *WorktreeManager) RemoveWorktree(ctx context.Context, worktreePath string) error {
	if _, err := gitExec(ctx, m.RepoRoot, "worktree", "remove", worktreePath, "--force"); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	if err := os.RemoveAll(worktreePath); err != nil {
		return fmt.Errorf("failed to remove worktree directory: %w", err)
	}
	return nil
}
