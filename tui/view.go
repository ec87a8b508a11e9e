package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mabroukmoatez/formly-saas-sub017/board"
	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.titleView())
	b.WriteByte('\n')
	b.WriteString(m.vp.View())
	b.WriteByte('\n')
	if m.mode == modeInput {
		b.WriteString(m.input.View())
		b.WriteByte('\n')
	}
	b.WriteString(m.toastView())
	b.WriteByte('\n')
	b.WriteString(m.helpView())
	return b.String()
}

func (m *Model) titleView() string {
	title := titleStyle.Render("Quality board")
	var parts []string
	if m.filter.Query != "" {
		parts = append(parts, fmt.Sprintf("search: %q", m.filter.Query))
	}
	if m.filter.CategoryID != 0 {
		if c, ok := m.ctrl.Category(m.filter.CategoryID); ok {
			parts = append(parts, "column: "+c.Name)
		}
	}
	if m.drag.Dragging() {
		parts = append(parts, "dragging")
	}
	if len(parts) == 0 {
		return title
	}
	return title + "  " + filterStyle.Render(strings.Join(parts, " · "))
}

func (m *Model) toastView() string {
	if len(m.toasts) == 0 {
		if m.err != nil {
			return errorToastStyle.Render(m.err.Error())
		}
		return ""
	}
	t := m.toasts[len(m.toasts)-1]
	if t.isErr {
		return errorToastStyle.Render("✗ " + t.text)
	}
	return successToastStyle.Render("✓ " + t.text)
}

func (m *Model) helpView() string {
	return helpStyle.Render(m.help.View(m.keys))
}

// renderContent redraws the board into the viewport. The detail view owns
// the viewport while it is open.
func (m *Model) renderContent() {
	if m.mode == modeDetail {
		return
	}
	if !m.loaded {
		m.vp.SetContent("Loading…")
		return
	}
	cols := m.columns()
	if len(cols) == 0 {
		m.vp.SetContent(filterStyle.Render("No columns yet. Press N to create one."))
		return
	}

	dragging := m.drag.Dragging()
	activeID := m.drag.ActiveID()
	rendered := make([]string, 0, len(cols))
	for ci, c := range cols {
		tasks := m.columnTasks(ci)
		lines := make([]string, 0, len(tasks)+columnHeaderLines+1)
		lines = append(lines,
			columnHeaderStyle.Render(truncate(fmt.Sprintf("%s (%d)", c.Name, len(tasks)), columnWidth)),
			ruleStyle.Render(strings.Repeat("─", columnWidth)),
		)
		for ri, t := range tasks {
			lines = append(lines, m.cardView(t, ci, ri, dragging, activeID))
		}
		if dragging && m.hoverCol == ci && m.hoverRow >= len(tasks) {
			lines = append(lines, hoverStyle.Render(truncate("↳ drop here", columnWidth)))
		}
		rendered = append(rendered, columnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	m.vp.SetContent(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	m.ensureVisible()
}

func (m *Model) cardView(t domain.Task, col, row int, dragging bool, activeID int64) string {
	text := cardText(t)
	switch {
	case dragging && t.ID == activeID:
		return draggedStyle.Render(truncate("⇅ "+text, columnWidth))
	case dragging && m.hoverCol == col && m.hoverRow == row:
		return hoverStyle.Render(truncate("→ "+text, columnWidth))
	case m.ctrl.Busy(board.TaskKey(t.ID)):
		return busyStyle.Render(truncate("… "+text, columnWidth))
	case !dragging && m.col == col && m.row == row:
		return selectedStyle.Render(truncate(text, columnWidth))
	default:
		return cardStyle.Render(truncate(text, columnWidth))
	}
}

func cardText(t domain.Task) string {
	marker := "○"
	switch t.Status {
	case domain.StatusInProgress:
		marker = "◐"
	case domain.StatusDone:
		marker = "●"
	}
	flag := ""
	switch t.Priority {
	case domain.PriorityHigh:
		flag = "!"
	case domain.PriorityUrgent:
		flag = "!!"
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", marker, t.Title, flag))
}

// ensureVisible scrolls the viewport to the selected row unless scrolling
// is locked by a drag.
func (m *Model) ensureVisible() {
	if m.scroll.Locked() {
		return
	}
	line := columnHeaderLines + m.row
	switch {
	case line < m.vp.YOffset:
		m.vp.SetYOffset(line)
	case line >= m.vp.YOffset+m.vp.Height:
		m.vp.SetYOffset(line - m.vp.Height + 1)
	}
}

func renderDetail(t domain.Task, width int) string {
	row := func(label, value string) string {
		return detailLabelStyle.Render(label) + value
	}
	lines := []string{
		titleStyle.Render(t.Title),
		"",
		row("Status", string(t.Status)),
		row("Priority", string(t.Priority)),
		row("Position", fmt.Sprint(t.EffectivePosition())),
	}
	if t.DueDate != nil {
		lines = append(lines, row("Due", *t.DueDate))
	}
	if t.StartDate != nil || t.EndDate != nil {
		lines = append(lines, row("Period", deref(t.StartDate)+" → "+deref(t.EndDate)))
	}
	if len(t.AssignedMembers) > 0 {
		names := make([]string, len(t.AssignedMembers))
		for i, mem := range t.AssignedMembers {
			names[i] = mem.Name
		}
		lines = append(lines, row("Members", strings.Join(names, ", ")))
	}
	if t.Description != "" {
		desc := t.Description
		if width > 0 {
			desc = lipgloss.NewStyle().Width(width).Render(desc)
		}
		lines = append(lines, "", desc)
	}
	if len(t.Checklist) > 0 {
		lines = append(lines, "", filterStyle.Render("Checklist"))
		for _, item := range t.Checklist {
			box := "[ ]"
			if item.Done {
				box = "[x]"
			}
			lines = append(lines, box+" "+item.Label)
		}
	}
	if len(t.Comments) > 0 {
		lines = append(lines, "", filterStyle.Render("Comments"))
		for _, c := range t.Comments {
			lines = append(lines, c.Author+": "+c.Body)
		}
	}
	if len(t.Attachments) > 0 {
		lines = append(lines, "", filterStyle.Render("Attachments"))
		for _, a := range t.Attachments {
			lines = append(lines, a.Name+" "+filterStyle.Render(a.URL))
		}
	}
	return strings.Join(lines, "\n")
}

func deref(s *string) string {
	if s == nil {
		return "…"
	}
	return *s
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
