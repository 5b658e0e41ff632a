package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"taskmaster/backend"
	"taskmaster/internal/dashboard"
	"taskmaster/internal/output"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 76
	}
	return m.width - 4
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd, ModeEdit:
		return m.renderFormDialog()
	case ModeFilter:
		return m.renderFilterDialog()
	case ModeSearch:
		return m.renderSearchDialog()
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeDetail:
		return m.detail + "\n\n" + m.helpStyle.Render("e: edit  y: copy title  any key: back")
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	case ModeConfirmDuplicate:
		return m.renderConfirmDuplicateDialog()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTaskList())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderHeader() string {
	s := m.ctl.Stats()
	var b strings.Builder
	b.WriteString(m.headerStyle.Render("TaskMaster"))
	fmt.Fprintf(&b, "  %d tasks  pending %d (%d%%)  completed %d (%d%%)  overdue %d\n",
		s.Total, s.Pending.Count, s.Pending.Percentage,
		s.Completed.Count, s.Completed.Percentage, s.Overdue.Count)

	var days []string
	for _, d := range m.ctl.WeeklyProgress() {
		days = append(days, fmt.Sprintf("%s %d/%d", d.Day, d.Completed, d.Completed+d.Pending))
	}
	b.WriteString(m.helpStyle.Render("This week: " + strings.Join(days, "  ")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", m.contentWidth()))
	return b.String()
}

func (m *Model) listHeight() int {
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) renderTaskList() string {
	if m.loading && len(m.visible) == 0 {
		return "Loading tasks...\n"
	}
	if len(m.visible) == 0 && m.ctl.State() == dashboard.StateErrored {
		return m.errorStyle.Render("Could not load tasks: "+utils.UserMessage(m.ctl.Err())) + "\n" +
			m.helpStyle.Render("Press r to retry") + "\n"
	}
	if len(m.visible) == 0 {
		if _, ok := m.ctl.SearchQuery(); ok {
			return "No tasks match the search\n"
		}
		return "No tasks\n"
	}

	rows := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	end := m.offset + rows
	if end > len(m.visible) {
		end = len(m.visible)
	}

	today := m.now()
	var b strings.Builder
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderTask(m.visible[i], i == m.cursor, today))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderTask(t backend.Task, selected bool, today time.Time) string {
	cursor := " "
	if selected {
		cursor = ">"
	}

	title := t.Title
	switch {
	case t.Status == backend.StatusCompleted:
		title = m.completedStyle.Render(title)
	case selected:
		title = m.selectedStyle.Render(title)
	}

	priority := string(t.Priority)
	if style, ok := m.priorityStyles[t.Priority]; ok {
		priority = style.Render(priority)
	}

	due := output.RelativeDue(t.DueDate, today)
	if views.IsOverdue(t, today) {
		due = m.overdueStyle.Render(due)
	}

	line := fmt.Sprintf("%s %s %s  %s  %s", cursor, output.StatusIcon(t.Status), title, priority, due)
	if len(t.Category) > 0 {
		line += "  " + m.helpStyle.Render(strings.Join(t.Category, ", "))
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}

func (m *Model) renderStatusBar() string {
	left := m.ctl.Filter().String()
	if q, ok := m.ctl.SearchQuery(); ok {
		left = "Search: " + q + " (esc to clear)"
	}
	if m.loading || m.ctl.State() == dashboard.StateLoading {
		left = "Loading...  " + left
	}

	right := "q:quit  ?:help"
	if m.message != "" {
		msg := m.message
		if m.isError {
			msg = m.errorStyle.Render(msg)
		}
		right = msg + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderFormDialog() string {
	title := "Add New Task"
	if m.form.editing != nil {
		title = "Edit: " + m.form.editing.Title
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	for i, in := range m.form.inputs {
		marker := "  "
		if i == m.form.focus {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%-12s %s\n", marker, fieldLabels[i]+":", in.View())
	}
	if m.form.err != "" {
		b.WriteString("\n" + m.errorStyle.Render(m.form.err) + "\n")
	}
	if m.form.busy {
		b.WriteString("\nSaving...\n")
	}
	b.WriteString("\n" + m.helpStyle.Render("Tab: next field  Enter: save  Esc: cancel"))
	return m.centerDialog(m.dialogStyle.Render(b.String()))
}

func (m *Model) renderFilterDialog() string {
	p := m.filterPanel
	rows := [rowCount][2]string{
		{"Status", views.StatusOptions[p.status]},
		{"Priority", views.PriorityOptions[p.priority]},
		{"Range", views.RangeOptions[p.dateRng]},
		{"Date", p.date.View()},
	}

	var b strings.Builder
	b.WriteString("Filter Tasks\n\n")
	for i, r := range rows {
		marker := "  "
		if i == p.row {
			marker = "> "
		}
		value := r[1]
		if i != rowDate {
			value = "< " + value + " >"
		}
		fmt.Fprintf(&b, "%s%-9s %s\n", marker, r[0]+":", value)
	}
	if p.err != "" {
		b.WriteString("\n" + m.errorStyle.Render(p.err) + "\n")
	}
	b.WriteString("\n" + m.helpStyle.Render("↑/↓: field  ←/→: change  Enter: apply  Esc: cancel"))
	return m.centerDialog(m.dialogStyle.Render(b.String()))
}

func (m *Model) renderSearchDialog() string {
	dialog := m.dialogStyle.Render(
		"Search Tasks\n\n" +
			m.searchInput.View() + "\n\n" +
			m.helpStyle.Render("Enter: search  Esc: cancel  empty: leave search"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  g/G    First/last task
  Enter  Show task details

Actions:
  a      Add new task
  e      Edit selected task
  space  Toggle task completion
  d      Delete task (with confirm)
  y      Copy task title
  r      Refresh

Views:
  f      Filter by status, priority, date
  R      Clear date filter
  /      Search tasks
  esc    Leave search

General:
  ?      Show this help
  q      Quit

Press any key to close`

	dialog := m.dialogStyle.Render(help)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := "selected task"
	if t, ok := m.Selected(); ok {
		title = fmt.Sprintf("%q", t.Title)
	}
	dialog := m.dialogStyle.Render(
		"Delete " + title + "?\n\n" +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmDuplicateDialog() string {
	var b strings.Builder
	if m.duplicate != nil {
		b.WriteString(m.duplicate.Error() + ":\n\n")
		for _, d := range m.duplicate.Duplicates {
			fmt.Fprintf(&b, "  %s %s\n", output.StatusIcon(d.Status), d.Title)
		}
	}
	b.WriteString("\nSave anyway?\n\n")
	b.WriteString(m.helpStyle.Render("y: save  n: back to form"))
	return m.centerDialog(m.dialogStyle.Render(b.String()))
}

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := lipgloss.Width(dialog)

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2

	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}
