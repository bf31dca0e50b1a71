// Package escalate surfaces factory conditions that need a human, such
// as tasks dropped after exhausting retries or merge conflicts on trunk.
package escalate

import "context"

// Severity indicates how urgent the notice is
type Severity string

const (
	SeverityInfo     Severity = "info"     // FYI, no action needed
	SeverityWarning  Severity = "warning"  // May need attention
	SeverityCritical Severity = "critical" // Requires immediate action
)

// Notice represents something that needs user attention
type Notice struct {
	Severity Severity          // How urgent is this?
	TaskID   string            // Which task is affected, if any
	Title    string            // Short summary (one line)
	Message  string            // Detailed explanation
	Context  map[string]string // Additional context (provider, retry count, etc.)
}

// Notifier is the interface for delivering notices
type Notifier interface {
	// Notify delivers a notice to the user.
	// Implementations should respect context cancellation.
	Notify(ctx context.Context, n Notice) error

	// Name returns the notifier type for logging
	Name() string
}
