package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes git commands.
type Runner interface {
	Exec(ctx context.Context, dir string, args ...string) (string, error)
}

// osRunner executes real git commands via exec.CommandContext.
type osRunner struct{}

func (osRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, stderr.String())
	}

	return stdout.String(), nil
}

var (
	defaultRunner Runner = osRunner{}
	runnerMu      sync.RWMutex
)

// DefaultRunner returns the current default runner.
func DefaultRunner() Runner {
	runnerMu.RLock()
	defer runnerMu.RUnlock()
	return defaultRunner
}

// SetDefaultRunner replaces the default runner. Intended for tests.
func SetDefaultRunner(runner Runner) {
	runnerMu.Lock()
	defer runnerMu.Unlock()
	if runner == nil {
		defaultRunner = osRunner{}
		return
	}
	defaultRunner = runner
}

// gitExec executes a git command in the specified directory and returns stdout.
// Returns an error with stderr content if the command fails.
func gitExec(ctx context.Context, dir string, args ...string) (string, error) {
	runnerMu.RLock()
	runner := defaultRunner
	runnerMu.RUnlock()
	return runner.Exec(ctx, dir, args...)
}

// RevParse resolves a ref to a commit hash in the given repository.
func RevParse(ctx context.Context, repoPath, ref string) (string, error) {
	output, err := gitExec(ctx, repoPath, "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// BranchExists checks if a branch exists locally.
func BranchExists(ctx context.Context, repoPath, branchName string) bool {
	_, err := gitExec(ctx, repoPath, "rev-parse", "--verify", "refs/heads/"+branchName)
	return err == nil
}

// HasUncommittedChanges checks if there are uncommitted changes.
func HasUncommittedChanges(ctx context.Context, worktreePath string) (bool, error) {
	output, err := gitExec(ctx, worktreePath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// UnmergedFiles returns paths with unresolved merge conflicts.
func UnmergedFiles(ctx context.Context, repoPath string) ([]string, error) {
	output, err := gitExec(ctx, repoPath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
