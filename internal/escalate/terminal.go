package escalate

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Terminal writes notices to stderr with visual severity indicators
type Terminal struct {
	out io.Writer
	mu  sync.Mutex // Protects concurrent writes
}

// NewTerminal creates a terminal notifier writing to stderr
func NewTerminal() *Terminal {
	return &Terminal{out: os.Stderr}
}

// NewTerminalWriter creates a terminal notifier writing to w
func NewTerminalWriter(w io.Writer) *Terminal {
	return &Terminal{out: w}
}

// Notify writes the notice to the terminal
func (t *Terminal) Notify(ctx context.Context, n Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := ""
	switch n.Severity {
	case SeverityCritical:
		prefix = "🚨 "
	case SeverityWarning:
		prefix = "⚠️  "
	default:
		prefix = "ℹ️  "
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n%s[%s] %s\n", prefix, n.Severity, n.Title)
	if n.TaskID != "" {
		fmt.Fprintf(t.out, "   Task: %s\n", n.TaskID)
	}
	fmt.Fprintf(t.out, "   %s\n", n.Message)

	for k, v := range n.Context {
		fmt.Fprintf(t.out, "   %s: %s\n", k, v)
	}

	return nil
}

// Name returns "terminal"
func (t *Terminal) Name() string {
	return "terminal"
}
