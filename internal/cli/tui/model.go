// Package tui renders the live factory dashboard: one line per worker
// with its current task, slot, and phase, plus run counters.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RevCBH/ralph/internal/ratelimit"
)

// WorkerState tracks one worker's current assignment in the dashboard.
type WorkerState struct {
	ID        int
	TaskID    string
	Slot      string
	Tier      string
	Phase     string
	PhaseIcon string
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	// Configuration
	MaxWorkers int
	Styles     Styles

	// SlotFn polls limiter state for the slot panel; refreshed on
	// every tick when set.
	SlotFn func() []ratelimit.Snapshot

	// State
	ActiveWorkers  map[int]*WorkerState
	Slots          []ratelimit.Snapshot
	CompletedTasks int
	DroppedTasks   int
	Merges         int
	Conflicts      int
	Retries        int
	StartTime      time.Time
	LogLines       []string
	LogLimit       int
	Width          int
	Height         int

	// Control
	Quitting bool
	Done     bool
}

// NewModel creates a dashboard model for a pool of maxWorkers workers.
func NewModel(maxWorkers int) *Model {
	return &Model{
		MaxWorkers:    maxWorkers,
		Styles:        DefaultStyles(),
		ActiveWorkers: make(map[int]*WorkerState),
		StartTime:     time.Now(),
		LogLimit:      200,
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg is sent every second to update the timer
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the dashboard should exit
type DoneMsg struct{}

// TaskAssignedMsg indicates a task landed on a worker
type TaskAssignedMsg struct {
	Worker int
	TaskID string
	Slot   string
	Tier   string
}

// TaskPhaseMsg updates a worker's phase line
type TaskPhaseMsg struct {
	Worker    int
	TaskID    string
	Phase     string
	PhaseIcon string
}

// TaskFinishedMsg clears a worker; Completed distinguishes success
type TaskFinishedMsg struct {
	Worker    int
	Completed bool
	Retried   bool
	Dropped   bool
}

// MergeMsg records a cherry-pick outcome
type MergeMsg struct {
	Conflict bool
}

// LogMsg appends a line to the log pane
type LogMsg struct {
	Line string
}
