// Package planner drives the backlog-refill loop: when pending work
// runs low it asks an LLM whether the reference spec is satisfied and,
// if not, what tasks to add.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RevCBH/ralph/internal/events"
	"github.com/RevCBH/ralph/internal/prd"
	"github.com/RevCBH/ralph/internal/provider"
)

// ItemStatus is the one-line view of a backlog item in the prompt.
type ItemStatus struct {
	ID       string
	Name     string
	Status   string
	Priority string
}

// BacklogView is an immutable snapshot of backlog state taken on the
// control plane. The planner never reads orchestrator state directly.
type BacklogView struct {
	ProjectDescription string
	Items              []ItemStatus
	RecentCompletions  []string
	ExistingIDs        map[string]bool
}

// Options configures a Planner.
type Options struct {
	// Invoker is the LLM used for evaluations
	Invoker provider.Invoker

	// ProviderOpts carries the planner's model, timeout, and repo root
	ProviderOpts provider.Options

	// Interval is the minimum wall time between evaluations
	Interval time.Duration

	// Threshold triggers a refill when pending work drops below it
	Threshold int

	// SpecContent is pre-fetched reference spec text, "" when none
	SpecContent string

	// Snapshot returns the current backlog view; called on the
	// caller's goroutine before the evaluation starts
	Snapshot func() BacklogView

	// OnNewTasks receives sanitized injected tasks
	OnNewTasks func([]prd.Item)

	// OnSpecSatisfied fires once when the planner declares the spec done
	OnSpecSatisfied func()

	Bus *events.Bus
}

// Planner coordinates evaluations. At most one evaluation runs at a
// time; results reach the orchestrator only through the two callbacks.
type Planner struct {
	opts Options

	mu            sync.Mutex
	lastEval      time.Time
	hasEvaluated  bool
	specSatisfied bool
	evaluating    bool
	wg            sync.WaitGroup

	now func() time.Time
}

// New creates a planner. Snapshot must be non-nil; the callbacks may be
// nil when the caller does not care.
func New(opts Options) *Planner {
	return &Planner{opts: opts, now: time.Now}
}

// Start runs the startup evaluation when spec content is configured.
// It does not block.
func (p *Planner) Start(ctx context.Context) {
	if p.opts.SpecContent == "" {
		return
	}
	p.tryEvaluate(ctx, true)
}

// MaybeRefill evaluates if pending work is below the threshold and the
// interval has elapsed since the last evaluation. Non-blocking: the
// evaluation itself runs on its own goroutine.
func (p *Planner) MaybeRefill(ctx context.Context, pendingCount int) {
	if pendingCount >= p.opts.Threshold {
		return
	}
	p.tryEvaluate(ctx, false)
}

// tryEvaluate starts an evaluation goroutine if one is due.
func (p *Planner) tryEvaluate(ctx context.Context, force bool) {
	p.mu.Lock()
	if p.evaluating || p.specSatisfied {
		p.mu.Unlock()
		return
	}
	if !force && p.hasEvaluated && p.now().Sub(p.lastEval) < p.opts.Interval {
		p.mu.Unlock()
		return
	}
	p.evaluating = true
	p.mu.Unlock()

	view := p.opts.Snapshot()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.evaluate(ctx, view)
	}()
}

// Wait blocks until any in-flight evaluation finishes. Used at shutdown.
func (p *Planner) Wait() {
	p.wg.Wait()
}

// HasEvaluated reports whether at least one evaluation completed.
func (p *Planner) HasEvaluated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasEvaluated
}

// SpecSatisfied reports whether the planner has declared the spec done.
func (p *Planner) SpecSatisfied() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.specSatisfied
}

// evaluate runs one full planner cycle. Provider or parse failures
// yield an empty evaluation; the factory keeps running either way.
func (p *Planner) evaluate(ctx context.Context, view BacklogView) {
	p.emit(events.NewEvent(events.PlannerEvaluating, ""))

	prompt := buildPrompt(view, p.opts.SpecContent)
	result := p.opts.Invoker.Invoke(ctx, prompt, p.opts.ProviderOpts)

	var eval Evaluation
	if result.Success {
		eval = ParseEvaluation(result.Output)
	} else {
		p.emit(events.NewEvent(events.PlannerFailed, "").
			WithPayload(map[string]any{"error": result.Error}))
	}

	tasks := Sanitize(eval.NewTasks, view.ExistingIDs)

	if eval.SpecSatisfied {
		p.mu.Lock()
		p.specSatisfied = true
		p.mu.Unlock()
		p.emit(events.NewEvent(events.PlannerSpecSatisfied, ""))
		if p.opts.OnSpecSatisfied != nil {
			p.opts.OnSpecSatisfied()
		}
	}
	if len(tasks) > 0 {
		p.emit(events.NewEvent(events.PlannerTasksInjected, "").
			WithPayload(map[string]any{"count": len(tasks)}))
		if p.opts.OnNewTasks != nil {
			p.opts.OnNewTasks(tasks)
		}
	}

	// Marked done only after the callbacks have delivered their tasks,
	// so a caller that sees hasEvaluated also sees the injections.
	p.mu.Lock()
	p.hasEvaluated = true
	p.lastEval = p.now()
	p.evaluating = false
	p.mu.Unlock()
}

func (p *Planner) emit(e events.Event) {
	if p.opts.Bus != nil {
		p.opts.Bus.Emit(e)
	}
}

// buildPrompt assembles the evaluation prompt from the backlog view and
// any pre-fetched reference spec content.
func buildPrompt(view BacklogView, specContent string) string {
	var b strings.Builder

	b.WriteString("You are the planning agent for an autonomous development factory.\n")
	b.WriteString("Review the backlog below and decide whether the project specification is satisfied.\n\n")

	if view.ProjectDescription != "" {
		fmt.Fprintf(&b, "## Project\n%s\n\n", view.ProjectDescription)
	}

	if specContent != "" {
		fmt.Fprintf(&b, "## Reference specification\n%s\n\n", specContent)
	}

	b.WriteString("## Current backlog\n")
	if len(view.Items) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, item := range view.Items {
		status := item.Status
		if status == "" {
			status = prd.StatusPending
		}
		fmt.Fprintf(&b, "- %s [%s]", item.ID, status)
		if item.Priority != "" {
			fmt.Fprintf(&b, " (priority: %s)", item.Priority)
		}
		if item.Name != "" {
			fmt.Fprintf(&b, " %s", item.Name)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(view.RecentCompletions) > 0 {
		b.WriteString("## Recently completed\n")
		for _, id := range view.RecentCompletions {
			fmt.Fprintf(&b, "- %s\n", id)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Instructions\n")
	b.WriteString("Respond with a single JSON object, no other text:\n")
	b.WriteString("{\"specSatisfied\": <bool>, \"reasoning\": \"<short explanation>\", \"newTasks\": [{\"id\": \"...\", \"description\": \"...\", \"priority\": \"high|medium|low\", \"acceptance_criteria\": [\"...\"], \"estimated_hours\": <number>, \"complexity\": \"low|medium|high\"}]}\n")
	b.WriteString("Set specSatisfied to true only when every requirement is covered by a completed task.\n")
	b.WriteString("Propose newTasks only for genuine gaps; keep ids short and unique.\n")

	return b.String()
}
