// Package gate runs validation commands against a worktree before a
// task's changes are committed.
package gate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result holds the outcome of a full gate run.
type Result struct {
	// Passed is true when every gate command exited zero
	Passed bool

	// FailedGates lists the commands that failed, in run order
	FailedGates []string

	// Output is the combined output of all gate commands
	Output string

	// Duration is the total wall time of the run
	Duration time.Duration
}

// Runner executes shell gate commands in a working directory.
type Runner struct {
	// Timeout bounds each individual command
	Timeout time.Duration

	// FailFast stops the run at the first failing command
	FailFast bool
}

// NewRunner creates a gate runner. A zero timeout means no per-command
// deadline beyond the caller's context.
func NewRunner(timeout time.Duration, failFast bool) *Runner {
	return &Runner{Timeout: timeout, FailFast: failFast}
}

// Run executes the commands in order inside dir. Commands run through
// `sh -c` so pipelines and env expansions work. An empty command list
// passes trivially.
func (r *Runner) Run(ctx context.Context, dir string, commands []string) Result {
	start := time.Now()
	result := Result{Passed: true}

	var output strings.Builder
	for _, command := range commands {
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}

		out, err := r.runOne(ctx, dir, command)
		fmt.Fprintf(&output, "$ %s\n%s\n", command, out)

		if err != nil {
			result.Passed = false
			result.FailedGates = append(result.FailedGates, command)
			fmt.Fprintf(&output, "gate failed: %v\n", err)
			if r.FailFast {
				break
			}
		}

		if ctx.Err() != nil {
			result.Passed = false
			break
		}
	}

	result.Output = output.String()
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runOne(parent context.Context, dir, command string) (string, error) {
	ctx := parent
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("timed out after %s", r.Timeout)
	}
	return string(out), err
}
