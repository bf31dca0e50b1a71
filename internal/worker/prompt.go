package worker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RevCBH/ralph/internal/prd"
)

// promptInput collects everything the task prompt is composed from.
type promptInput struct {
	Item       *prd.Item
	Category   string
	RetryCount int
	Gates      []string
	LastError  string
}

// buildPrompt composes the provider prompt: task identity and
// description, acceptance criteria, the gates the work must pass,
// prior-failure feedback on retries, and the completion contract.
func buildPrompt(in promptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task %s: %s\n\n", in.Item.ID, in.Item.DisplayName())
	if in.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", in.Category)
	}
	if in.Item.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", in.Item.Priority)
	}
	b.WriteString("\n## Description\n")
	b.WriteString(in.Item.Description)
	b.WriteString("\n")

	if len(in.Item.AcceptanceCriteria) > 0 {
		b.WriteString("\n## Acceptance criteria\n")
		for _, criterion := range in.Item.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", criterion)
		}
	}

	if len(in.Item.Steps) > 0 {
		b.WriteString("\n## Suggested steps\n")
		for i, step := range in.Item.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}

	if len(in.Gates) > 0 {
		b.WriteString("\n## Validation\n")
		b.WriteString("Your changes must pass these commands before they are accepted:\n")
		for _, cmd := range in.Gates {
			fmt.Fprintf(&b, "- `%s`\n", cmd)
		}
		b.WriteString("Run them yourself before finishing.\n")
	}

	if in.RetryCount > 0 {
		fmt.Fprintf(&b, "\n## Previous attempts\nThis is retry %d. The previous attempt failed", in.RetryCount)
		if in.LastError != "" {
			fmt.Fprintf(&b, ": %s", in.LastError)
		}
		b.WriteString("\nAddress the failure above before anything else.\n")

		if feedback := rawFeedback(in.Item.ValidationResult); feedback != "" {
			fmt.Fprintf(&b, "\nPrevious validation result:\n%s\n", feedback)
		}
		if feedback := rawFeedback(in.Item.JudgeResult); feedback != "" {
			fmt.Fprintf(&b, "\nPrevious judge feedback:\n%s\n", feedback)
		}
	}

	b.WriteString("\n## Working notes\n")
	b.WriteString("If you learn something future tasks should know (a build quirk, a hidden dependency, a convention), wrap it in <learning>...</learning> tags.\n")

	b.WriteString("\n## Completion\n")
	b.WriteString("Work only inside the current directory. Do not run git commands; commits are handled for you.\n")
	b.WriteString("When the task is fully done, end your final message with:\n")
	b.WriteString("<complete>DONE</complete>\n")
	b.WriteString("Do not emit the marker unless every acceptance criterion is met.\n")

	return b.String()
}

// rawFeedback renders stored validation/judge JSON for the prompt.
func rawFeedback(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return strings.TrimSpace(string(raw))
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	return string(out)
}
