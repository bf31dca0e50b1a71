package provider

import (
	"context"
	"fmt"
)

// CodexInvoker runs the OpenAI Codex CLI in non-interactive exec mode.
type CodexInvoker struct {
	command string
}

// NewCodex creates a Codex invoker. An empty command defaults to "codex".
func NewCodex(command string) *CodexInvoker {
	if command == "" {
		command = "codex"
	}
	return &CodexInvoker{command: command}
}

// Name returns TypeCodex
func (p *CodexInvoker) Name() Type {
	return TypeCodex
}

// Invoke executes `codex exec` with the prompt as a positional argument.
func (p *CodexInvoker) Invoke(ctx context.Context, prompt string, opts Options) Result {
	if opts.DryRun {
		return dryRunResult(p.Name())
	}

	args := []string{"exec", "--skip-git-repo-check"}
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
			result.Error = fmt.Sprintf("codex timed out after %s", opts.Timeout)
		} else {
			result.Error = fmt.Sprintf("codex exited with error: %v", run.err)
		}
	}
	return result
}
