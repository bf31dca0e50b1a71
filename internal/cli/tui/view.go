package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// View implements tea.Model
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderWorkers())
	b.WriteString(m.renderSlots())
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderLog())
	b.WriteString(m.renderFooter())

	return b.String()
}

// renderHeader renders the title line with timer and pool size
func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	timer := fmt.Sprintf("[%s]", formatDuration(elapsed))
	workers := fmt.Sprintf("Workers: %d", m.MaxWorkers)

	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("Ralph Factory"),
		m.Styles.Timer.Render(timer),
		m.Styles.Workers.Render(workers),
	)
}

// renderWorkers renders one block per busy worker
func (m *Model) renderWorkers() string {
	if len(m.ActiveWorkers) == 0 {
		return "  No active workers\n\n"
	}

	ids := make([]int, 0, len(m.ActiveWorkers))
	for id := range m.ActiveWorkers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(m.renderWorker(m.ActiveWorkers[id]))
		b.WriteString("\n")
	}
	return b.String()
}

// renderWorker renders a single busy worker:
//
//	● worker-0 T-042 [claude:sonnet medium]
//	    🤖 invoking provider
func (m *Model) renderWorker(w *WorkerState) string {
	var b strings.Builder

	icon := m.Styles.WorkerActive.Render(IconActive)
	name := m.Styles.WorkerName.Render(fmt.Sprintf("worker-%d", w.ID))
	slot := m.Styles.SlotLabel.Render(fmt.Sprintf("[%s %s]", w.Slot, w.Tier))
	fmt.Fprintf(&b, "  %s %s %s %s\n", icon, name, w.TaskID, slot)

	phaseIcon := m.Styles.PhaseIcon.Render(w.PhaseIcon)
	phaseText := m.Styles.PhaseText.Render(w.Phase)
	fmt.Fprintf(&b, "      %s %s\n", phaseIcon, phaseText)

	return b.String()
}

// renderSlots renders per-key held/capacity counts and backoff state
func (m *Model) renderSlots() string {
	if len(m.Slots) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.Styles.LogTitle.Render("  Slots"))
	b.WriteString("\n")
	for _, s := range m.Slots {
		style := m.Styles.SlotLabel
		if s.InBackoff {
			style = m.Styles.StatusFailed
		}
		b.WriteString(style.Render("    " + s.String()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// renderStatusLine renders the run counters
func (m *Model) renderStatusLine() string {
	complete := m.Styles.StatusComplete.Render(fmt.Sprintf("%d done", m.CompletedTasks))
	dropped := m.Styles.StatusFailed.Render(fmt.Sprintf("%d dropped", m.DroppedTasks))
	active := m.Styles.StatusActive.Render(fmt.Sprintf("%d active", len(m.ActiveWorkers)))

	return fmt.Sprintf("  Tasks: %s | %s | %s | retries %d | merges %d (%d conflicts)",
		complete, dropped, active, m.Retries, m.Merges, m.Conflicts)
}

// renderLog renders the last few log lines
func (m *Model) renderLog() string {
	if len(m.LogLines) == 0 {
		return ""
	}

	show := 8
	if len(m.LogLines) < show {
		show = len(m.LogLines)
	}

	var b strings.Builder
	b.WriteString(m.Styles.LogTitle.Render("  Recent events"))
	b.WriteString("\n")
	for _, line := range m.LogLines[len(m.LogLines)-show:] {
		b.WriteString(m.Styles.LogLine.Render("  " + line))
		b.WriteString("\n")
	}
	return b.String()
}

// renderFooter renders the help text
func (m *Model) renderFooter() string {
	key := m.Styles.FooterKey.Render("q")
	return m.Styles.Footer.Render(fmt.Sprintf("  Press %s to quit", key))
}

// formatDuration formats a duration as HH:MM:SS
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	min := d / time.Minute
	d -= min * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, min, s)
}
