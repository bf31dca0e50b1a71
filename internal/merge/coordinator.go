// Package merge serializes landing worker commits onto the trunk
// branch. Workers build on isolated worktrees; only the coordinator
// touches trunk, one cherry-pick at a time.
package merge

import (
	"context"
	"sync"
	"time"

	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/git"
)

// Record is one merge attempt, kept for the run summary.
type Record struct {
	TaskID     string
	CommitHash string
	Success    bool
	Conflict   bool
	Error      string
	Time       time.Time
}

// Coordinator owns the trunk checkout. CherryPick is safe to call from
// any goroutine; attempts are serialized so trunk never sees two
// concurrent picks.
type Coordinator struct {
	repoRoot string
	bus      *events.Bus

	mu      sync.Mutex
	history []Record
	merged  int
}

// NewCoordinator creates a coordinator for the main repository checkout.
func NewCoordinator(repoRoot string, bus *events.Bus) *Coordinator {
	return &Coordinator{repoRoot: repoRoot, bus: bus}
}

// CherryPick lands a worker commit on trunk. On conflict the pick is
// aborted and trunk is left clean; the caller decides whether to retry
// the task. Never panics and never leaves a pick in progress.
func (c *Coordinator) CherryPick(ctx context.Context, taskID, commitHash string) git.CherryPickResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := git.CherryPick(ctx, c.repoRoot, commitHash)

	rec := Record{
		TaskID:     taskID,
		CommitHash: commitHash,
		Success:    result.Success,
		Conflict:   result.Conflict,
		Time:       time.Now(),
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	c.history = append(c.history, rec)

	switch {
	case result.Success:
		c.merged++
		c.emit(events.NewEvent(events.MergeSucceeded, taskID).
			WithPayload(map[string]any{"commit": result.CommitHash}))
	case result.Conflict:
		c.emit(events.NewEvent(events.MergeConflict, taskID).
			WithPayload(map[string]any{"commit": commitHash}))
	default:
		c.emit(events.NewEvent(events.MergeFailed, taskID).WithError(result.Err))
	}

	return result
}

// MergedCount returns the number of commits landed so far.
func (c *Coordinator) MergedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merged
}

// History returns a copy of all merge attempts in order.
func (c *Coordinator) History() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Coordinator) emit(e events.Event) {
	if c.bus != nil {
		c.bus.Emit(e)
	}
}
