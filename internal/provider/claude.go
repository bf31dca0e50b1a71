package provider

import (
	"context"
	"fmt"
	"os"
)

// ClaudeInvoker runs the Claude CLI in headless streaming mode.
type ClaudeInvoker struct {
	command string
}

// NewClaude creates a Claude invoker. An empty command defaults to "claude".
func NewClaude(command string) *ClaudeInvoker {
	if command == "" {
		command = "claude"
	}
	return &ClaudeInvoker{command: command}
}

// Name returns TypeClaude
func (p *ClaudeInvoker) Name() Type {
	return TypeClaude
}

// Invoke executes the Claude CLI with the prompt. Output is requested as
// line-delimited JSON events; the final assistant text is extracted from
// the stream and the raw stream kept for marker and rate-limit scans.
func (p *ClaudeInvoker) Invoke(ctx context.Context, prompt string, opts Options) Result {
	if opts.DryRun {
		return dryRunResult(p.Name())
	}

	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, "-p", prompt)

	env := os.Environ()
	if opts.TokenLimit > 0 {
		env = append(env, fmt.Sprintf("CLAUDE_CODE_MAX_OUTPUT_TOKENS=%d", opts.TokenLimit))
	}

	run := runCLI(ctx, p.command, args, opts.ProjectRoot, env, opts.Timeout)

	parsed := parseClaudeStream(run.stdout)
	result := Result{
		Success: run.err == nil,
		Output:  parsed.finalText,
		Raw:     run.combined(),
		Summary: parsed.summary,
	}
	if result.Output == "" {
		result.Output = run.stdout
	}

	if run.err != nil {
		if run.timedOut {
			result.Error = fmt.Sprintf("claude timed out after %s", opts.Timeout)
		} else {
			result.Error = fmt.Sprintf("claude exited with error: %v", run.err)
		}
	}
	return result
}
