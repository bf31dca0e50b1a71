package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunSummary is the final accounting of a factory run.
type RunSummary struct {
	TasksCompleted   int           `json:"tasks_completed"`
	TasksFailed      int           `json:"tasks_failed"`
	TasksDropped     int           `json:"tasks_dropped"`
	SuccessfulMerges int           `json:"successful_merges"`
	MergeConflicts   int           `json:"merge_conflicts"`
	WorkersUsed      int           `json:"workers_used"`
	DroppedTasks     []string      `json:"dropped_tasks,omitempty"`
	SlotsInBackoff   []string      `json:"slots_in_backoff,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// summary snapshots the run counters. Called on the control plane.
func (o *Orchestrator) summary() RunSummary {
	s := RunSummary{
		TasksCompleted: len(o.completed),
		TasksFailed:    o.failures,
		TasksDropped:   len(o.dropped),
		DroppedTasks:   append([]string(nil), o.dropped...),
		Elapsed:        time.Since(o.startTime).Round(time.Second),
	}
	if o.pool != nil {
		s.WorkersUsed = len(o.pool.Workers())
	}
	for key := range o.limiter.KeysInBackoff() {
		s.SlotsInBackoff = append(s.SlotsInBackoff, key)
	}
	sort.Strings(s.SlotsInBackoff)
	for _, rec := range o.merger.History() {
		if rec.Success {
			s.SuccessfulMerges++
		}
		if rec.Conflict {
			s.MergeConflicts++
		}
	}
	return s
}

// Summary returns the run accounting for callers after Run finishes.
func (o *Orchestrator) Summary() RunSummary {
	return o.summary()
}

// String renders the summary as the end-of-run report.
func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tasks completed: %d, Successful merges: %d, Merge conflicts: %d",
		s.TasksCompleted, s.SuccessfulMerges, s.MergeConflicts)
	fmt.Fprintf(&b, "\nWorkers used: %d", s.WorkersUsed)
	if s.TasksDropped > 0 {
		fmt.Fprintf(&b, "\nDropped after retries: %s", strings.Join(s.DroppedTasks, ", "))
	}
	if len(s.SlotsInBackoff) > 0 {
		fmt.Fprintf(&b, "\nSlots still in backoff: %s", strings.Join(s.SlotsInBackoff, ", "))
	}
	fmt.Fprintf(&b, "\nElapsed: %s", s.Elapsed)
	return b.String()
}
