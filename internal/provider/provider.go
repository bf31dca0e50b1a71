package provider

import (
	"context"
	"fmt"
	"time"
)

// Type identifies which LLM provider CLI to use
type Type string

const (
	TypeClaude Type = "claude"
	TypeGemini Type = "gemini"
	TypeCodex  Type = "codex"
	TypeCursor Type = "cursor"
)

// Options configures a single provider invocation.
type Options struct {
	// ProjectRoot is the working directory for the CLI (the worktree)
	ProjectRoot string

	// Model selects the provider model (slot model name)
	Model string

	// DryRun skips the CLI entirely and returns a synthetic completion
	DryRun bool

	// TokenLimit caps output tokens where the provider supports it
	TokenLimit int

	// Timeout bounds the CLI run; exceeding it is a hard failure
	Timeout time.Duration
}

// Result is the outcome of a provider invocation.
type Result struct {
	// Success is false on non-zero exit, timeout, or missing CLI
	Success bool

	// Output is the final assistant text extracted from the CLI output
	Output string

	// Raw is the combined stdout+stderr as emitted by the CLI. Rate
	// limit detection and the structured completion marker scan both
	// run over Raw as well as Output.
	Raw string

	// Summary is a provider-emitted structured summary, when available
	Summary string

	// Error describes the failure when Success is false
	Error string
}

// Invoker runs one provider CLI with a prompt.
type Invoker interface {
	// Invoke executes the provider in opts.ProjectRoot and returns the
	// captured result. Never panics; failures are reported in Result.
	Invoke(ctx context.Context, prompt string, opts Options) Result

	// Name returns the provider type identifier
	Name() Type
}

// ForProvider returns the invoker for a provider name.
func ForProvider(name string) (Invoker, error) {
	switch Type(name) {
	case TypeClaude:
		return NewClaude(""), nil
	case TypeGemini:
		return NewGemini(""), nil
	case TypeCodex:
		return NewCodex(""), nil
	case TypeCursor:
		return NewCursor(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}

// dryRunResult is returned by every adapter when opts.DryRun is set.
func dryRunResult(name Type) Result {
	output := fmt.Sprintf("%s\n[dry-run] %s invocation skipped, no work performed\n", MarkerCompleteDone, name)
	return Result{Success: true, Output: output, Raw: output}
}
