package tui

import (
	"github.com/RevCBH/ralph/internal/events"
	tea "github.com/charmbracelet/bubbletea"
)

// Bridge connects the event bus to the bubbletea program
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a bridge for the given program
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{program: program}
}

// Handler returns an event handler function for the event bus
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		msg := b.eventToMsg(evt)
		if msg != nil {
			b.program.Send(msg)
		}
	}
}

// eventToMsg converts an events.Event to a tea.Msg
func (b *Bridge) eventToMsg(evt events.Event) tea.Msg {
	worker := -1
	if evt.Worker != nil {
		worker = *evt.Worker
	}
	payload, _ := evt.Payload.(map[string]any)

	switch evt.Type {
	case events.TaskAssigned:
		if worker < 0 {
			return nil
		}
		slot, _ := payload["slot"].(string)
		tier, _ := payload["tier"].(string)
		return TaskAssignedMsg{Worker: worker, TaskID: evt.Task, Slot: slot, Tier: tier}

	case events.TaskProviderInvoke:
		if worker < 0 {
			return nil
		}
		return TaskPhaseMsg{Worker: worker, TaskID: evt.Task, Phase: "invoking provider", PhaseIcon: IconProvider}

	case events.TaskValidationOK, events.TaskValidationFail:
		if worker < 0 {
			return nil
		}
		return TaskPhaseMsg{Worker: worker, TaskID: evt.Task, Phase: "running validation", PhaseIcon: IconValidate}

	case events.TaskCommitted:
		if worker < 0 {
			return nil
		}
		return TaskPhaseMsg{Worker: worker, TaskID: evt.Task, Phase: "merging onto trunk", PhaseIcon: IconMerge}

	case events.TaskCompleted:
		if worker < 0 {
			return nil
		}
		return TaskFinishedMsg{Worker: worker, Completed: true}

	case events.TaskRateLimited:
		if worker < 0 {
			return nil
		}
		return TaskFinishedMsg{Worker: worker}

	case events.TaskRetry:
		if worker < 0 {
			return LogMsg{Line: evt.String()}
		}
		return TaskFinishedMsg{Worker: worker, Retried: true}

	case events.TaskDropped:
		if worker < 0 {
			return LogMsg{Line: evt.String()}
		}
		return TaskFinishedMsg{Worker: worker, Dropped: true}

	case events.MergeSucceeded:
		return MergeMsg{}

	case events.MergeConflict:
		return MergeMsg{Conflict: true}

	case events.FactoryConverged, events.FactoryStopped, events.FactoryStuck:
		return DoneMsg{}

	case events.PlannerTasksInjected, events.PlannerSpecSatisfied, events.PlannerEvaluating:
		return LogMsg{Line: evt.String()}

	default:
		return nil
	}
}

// SendDone sends a DoneMsg to the program
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}
