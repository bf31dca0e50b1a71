package provider

import (
	"context"
	"fmt"
)

// CursorInvoker runs the Cursor agent CLI in headless print mode.
type CursorInvoker struct {
	command string
}

// NewCursor creates a Cursor invoker. An empty command defaults to
// "cursor-agent".
func NewCursor(command string) *CursorInvoker {
	if command == "" {
		command = "cursor-agent"
	}
	return &CursorInvoker{command: command}
}

// Name returns TypeCursor
func (p *CursorInvoker) Name() Type {
	return TypeCursor
}

// Invoke executes the Cursor agent with the prompt as a positional
// argument after -p, forcing non-interactive text output.
func (p *CursorInvoker) Invoke(ctx context.Context, prompt string, opts Options) Result {
	if opts.DryRun {
		return dryRunResult(p.Name())
	}

	args := []string{"-p", "--output-format", "text", "--force"}
	if opts.Model != "" && opts.Model != "default" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, prompt)

	run := runCLI(ctx, p.command, args, opts.ProjectRoot, nil, opts.Timeout)

	result := Result{
		Success: run.err == nil,
		Output:  run.stdout,
		Raw:     run.combined(),
	}
	if run.err != nil {
		if run.timedOut {
			result.Error = fmt.Sprintf("cursor-agent timed out after %s", opts.Timeout)
		} else {
			result.Error = fmt.Sprintf("cursor-agent exited with error: %v", run.err)
		}
	}
	return result
}
