package git

import (
	"context"
	"fmt"
	"strings"
)

// CherryPickResult describes the outcome of a cherry-pick attempt.
type CherryPickResult struct {
	// Success is true when the commit landed on the target branch
	Success bool

	// CommitHash is the new commit on the target branch (success only)
	CommitHash string

	// Conflict is true when the pick stopped on merge conflicts
	Conflict bool

	// Err holds any non-conflict failure
	Err error
}

// CherryPick applies commitHash onto the currently checked-out branch of
// repoPath with -x to record the source commit. Conflicts are detected
// via the git error text and the unmerged-path probe, and the pick is
// aborted before returning so the repository is left clean.
func CherryPick(ctx context.Context, repoPath, commitHash string) CherryPickResult {
	_, err := gitExec(ctx, repoPath, "cherry-pick", "-x", commitHash)
	if err == nil {
		head, hashErr := RevParse(ctx, repoPath, "HEAD")
		if hashErr != nil {
			return CherryPickResult{Err: fmt.Errorf("cherry-pick landed but HEAD unreadable: %w", hashErr)}
		}
		return CherryPickResult{Success: true, CommitHash: head}
	}

	if isConflictError(err) {
		_ = AbortCherryPick(ctx, repoPath)
		return CherryPickResult{Conflict: true}
	}

	unmerged, probeErr := UnmergedFiles(ctx, repoPath)
	if probeErr == nil && len(unmerged) > 0 {
		_ = AbortCherryPick(ctx, repoPath)
		return CherryPickResult{Conflict: true}
	}

	_ = AbortCherryPick(ctx, repoPath)
	return CherryPickResult{Err: err}
}

// AbortCherryPick abandons an in-progress cherry-pick. Safe to call when
// no pick is in progress.
func AbortCherryPick(ctx context.Context, repoPath string) error {
	_, err := gitExec(ctx, repoPath, "cherry-pick", "--abort")
	return err
}

func isConflictError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conflict") || strings.Contains(msg, "could not apply")
}
