package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		if m.SlotFn != nil {
			m.Slots = m.SlotFn()
		}
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case TaskAssignedMsg:
		m.ActiveWorkers[msg.Worker] = &WorkerState{
			ID:        msg.Worker,
			TaskID:    msg.TaskID,
			Slot:      msg.Slot,
			Tier:      msg.Tier,
			Phase:     "starting",
			PhaseIcon: IconWaiting,
		}

	case TaskPhaseMsg:
		if w, ok := m.ActiveWorkers[msg.Worker]; ok {
			if msg.TaskID != "" {
				w.TaskID = msg.TaskID
			}
			w.Phase = msg.Phase
			w.PhaseIcon = msg.PhaseIcon
		}

	case TaskFinishedMsg:
		delete(m.ActiveWorkers, msg.Worker)
		switch {
		case msg.Completed:
			m.CompletedTasks++
		case msg.Dropped:
			m.DroppedTasks++
		case msg.Retried:
			m.Retries++
		}

	case MergeMsg:
		if msg.Conflict {
			m.Conflicts++
		} else {
			m.Merges++
		}

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if len(m.LogLines) > m.LogLimit {
			m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
		}
	}

	return m, nil
}
