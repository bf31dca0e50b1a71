package provider

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// runResult captures a finished CLI subprocess.
type runResult struct {
	stdout   string
	stderr   string
	err      error
	timedOut bool
}

// combined returns stdout and stderr joined for signal scanning.
func (r runResult) combined() string {
	if r.stderr == "" {
		return r.stdout
	}
	return r.stdout + "\n" + r.stderr
}

// runCLI executes the provider binary with the given argv in dir,
// applying the timeout when set. The process output is captured rather
// than streamed; workers run many providers concurrently and the
// orchestrator owns the terminal.
func runCLI(ctx context.Context, binary string, args []string, dir string, env []string, timeout time.Duration) runResult {
	cmdCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, binary, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := runResult{
		stdout: stdout.String(),
		stderr: stderr.String(),
		err:    err,
	}
	if err != nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		result.timedOut = true
	}
	return result
}
