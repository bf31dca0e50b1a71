package prd

import (
	"encoding/json"
	"strings"
)

// Item is one unit of work in the backlog. The factory treats most
// fields as opaque; only status, passes and the result slots are ever
// mutated.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description"`

	// Priority is one of high, medium, low
	Priority string `json:"priority,omitempty"`

	Category string `json:"category,omitempty"`

	// Status is one of pending, in_progress, completed
	Status string `json:"status,omitempty"`

	// Passes is an orthogonal completion flag set by validation/judges
	Passes *bool `json:"passes,omitempty"`

	Dependencies       []string `json:"dependencies,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Steps              []string `json:"steps,omitempty"`

	EstimatedHours *float64 `json:"estimated_hours,omitempty"`

	// Provider overrides the routed provider for this item
	Provider string `json:"provider,omitempty"`

	// Validation overrides the gate configuration for this item
	Validation *ValidationOverride `json:"validation,omitempty"`

	// Complexity is a manual hint: low, medium, high
	Complexity string `json:"complexity,omitempty"`

	Judges []string `json:"judges,omitempty"`

	ValidationResult json.RawMessage `json:"validation_result,omitempty"`
	JudgeResult      json.RawMessage `json:"judge_result,omitempty"`

	CompletedAt string `json:"completed_at,omitempty"`
}

// ValidationOverride is a per-item validation gate override.
type ValidationOverride struct {
	Skip  bool     `json:"skip,omitempty"`
	Gates []string `json:"gates,omitempty"`
}

// Item status values
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// IsComplete reports whether the item is done: completed status or a
// true passes flag, whichever was set.
func (it *Item) IsComplete() bool {
	if it.Status == StatusCompleted {
		return true
	}
	return it.Passes != nil && *it.Passes
}

// IsPending reports whether the item still needs work. A false passes
// flag always means pending; otherwise pending/in_progress/unset
// statuses count as pending.
func (it *Item) IsPending() bool {
	if it.Passes != nil {
		return !*it.Passes
	}
	switch it.Status {
	case StatusPending, StatusInProgress, "":
		return true
	}
	return false
}

// DisplayName returns the item name, falling back to the ID.
func (it *Item) DisplayName() string {
	if strings.TrimSpace(it.Name) != "" {
		return it.Name
	}
	return it.ID
}

// SkipsValidation reports whether this item opts out of validation gates.
func (it *Item) SkipsValidation() bool {
	return it.Validation != nil && it.Validation.Skip
}
