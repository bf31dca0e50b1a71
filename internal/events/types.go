package events

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a single occurrence in the factory lifecycle
type Event struct {
	// Time is when the event occurred (set by bus on emit)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// Task is the backlog item ID this event relates to (empty for factory events)
	Task string `json:"task,omitempty"`

	// Worker is the worker ID (nil if not worker-related)
	Worker *int `json:"worker,omitempty"`

	// Payload contains event-specific data (type varies by event)
	Payload any `json:"payload,omitempty"`

	// Error contains error message if this is a failure event
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category
type EventType string

// Factory lifecycle events
const (
	FactoryStarted   EventType = "factory.started"
	FactoryConverged EventType = "factory.converged"
	FactoryStopped   EventType = "factory.stopped"
	FactoryStuck     EventType = "factory.stuck"
)

// Task lifecycle events
const (
	TaskQueued         EventType = "task.queued"
	TaskAssigned       EventType = "task.assigned"
	TaskProviderInvoke EventType = "task.provider.invoke"
	TaskProviderDone   EventType = "task.provider.done"
	TaskValidationOK   EventType = "task.validation.ok"
	TaskValidationFail EventType = "task.validation.fail"
	TaskCommitted      EventType = "task.committed"
	TaskCompleted      EventType = "task.completed"
	TaskRetry          EventType = "task.retry"
	TaskDropped        EventType = "task.dropped"
	TaskRateLimited    EventType = "task.ratelimited"
)

// Merge events
const (
	MergeSucceeded EventType = "merge.succeeded"
	MergeConflict  EventType = "merge.conflict"
	MergeFailed    EventType = "merge.failed"
)

// Planner events
const (
	PlannerEvaluating    EventType = "planner.evaluating"
	PlannerTasksInjected EventType = "planner.tasks.injected"
	PlannerSpecSatisfied EventType = "planner.spec.satisfied"
	PlannerFailed        EventType = "planner.failed"
)

// Worktree events
const (
	WorktreeCreated EventType = "worktree.created"
	WorktreeReset   EventType = "worktree.reset"
	WorktreeRemoved EventType = "worktree.removed"
)

// NewEvent creates an event with the given type and task ID
func NewEvent(eventType EventType, task string) Event {
	return Event{
		Type: eventType,
		Task: task,
	}
}

// WithWorker returns a copy of the event with the worker ID set
func (e Event) WithWorker(worker int) Event {
	e.Worker = &worker
	return e
}

// WithPayload returns a copy of the event with the payload set
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event with the error message set
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed") || e.Type == TaskValidationFail || e.Type == MergeConflict
}

// String returns a human-readable representation of the event
func (e Event) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))

	if e.Task != "" {
		parts = append(parts, e.Task)
	}
	if e.Worker != nil {
		parts = append(parts, fmt.Sprintf("worker=%d", *e.Worker))
	}
	if e.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", e.Error))
	}

	return strings.Join(parts, " ")
}
