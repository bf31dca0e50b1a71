package provider

import (
	"context"
	"fmt"
)

// geminiModels maps slot model names to Gemini CLI model identifiers.
var geminiModels = map[string]string{
	"pro":   "gemini-2.5-pro",
	"flash": "gemini-2.5-flash",
}

// GeminiInvoker runs the Gemini CLI in headless auto-approval mode.
type GeminiInvoker struct {
	command string
}

// NewGemini creates a Gemini invoker. An empty command defaults to "gemini".
func NewGemini(command string) *GeminiInvoker {
	if command == "" {
		command = "gemini"
	}
	return &GeminiInvoker{command: command}
}

// Name returns TypeGemini
func (p *GeminiInvoker) Name() Type {
	return TypeGemini
}

// Invoke executes the Gemini CLI with the prompt as a positional
// argument. Gemini emits plain text; the whole stdout is the output.
func (p *GeminiInvoker) Invoke(ctx context.Context, prompt string, opts Options) Result {
	if opts.DryRun {
		return dryRunResult(p.Name())
	}

	var args []string
	if model := resolveGeminiModel(opts.Model); model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "--approval-mode", "yolo")
	args = append(args, prompt)

	run := runCLI(ctx, p.command, args, opts.ProjectRoot, nil, opts.Timeout)

	result := Result{
		Success: run.err == nil,
		Output:  run.stdout,
		Raw:     run.combined(),
	}
	if run.err != nil {
		if run.timedOut {
			result.Error = fmt.Sprintf("gemini timed out after %s", opts.Timeout)
		} else {
			result.Error = fmt.Sprintf("gemini exited with error: %v", run.err)
		}
	}
	return result
}

func resolveGeminiModel(slotModel string) string {
	if slotModel == "" || slotModel == "default" {
		return ""
	}
	if mapped, ok := geminiModels[slotModel]; ok {
		return mapped
	}
	return slotModel
}
