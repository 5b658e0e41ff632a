// Package tui provides the terminal dashboard for task management.
package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskmaster/backend"
	"taskmaster/internal/dashboard"
	"taskmaster/internal/output"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// Dashboard is the controller surface the TUI drives. *dashboard.Controller
// implements it.
type Dashboard interface {
	Refresh() error
	CreateTask(in dashboard.TaskInput) (*backend.Task, error)
	UpdateTask(in dashboard.TaskInput) (*backend.Task, error)
	DeleteTask(id string) error
	ToggleStatus(id string) error
	ApplyFilter(spec views.FilterSpec) error
	ResetDateFilter()
	Search(query string) bool
	SearchQuery() (string, bool)
	Visible() []backend.Task
	Stats() views.Stats
	WeeklyProgress() []views.DayProgress
	Filter() views.FilterSpec
	State() dashboard.State
	Err() error
}

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeFilter
	ModeSearch
	ModeHelp
	ModeDetail
	ModeConfirmDelete
	ModeConfirmDuplicate
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeAdd:
		return "add"
	case ModeEdit:
		return "edit"
	case ModeFilter:
		return "filter"
	case ModeSearch:
		return "search"
	case ModeHelp:
		return "help"
	case ModeDetail:
		return "detail"
	case ModeConfirmDelete:
		return "confirm-delete"
	case ModeConfirmDuplicate:
		return "confirm-duplicate"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides time.Now for relative due dates.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) { m.copy = write }
}

// WithMarkdownStyle sets the glamour style of the detail view.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) { m.markdown = output.NewMarkdownRenderer(style) }
}

// Model represents the TUI state
type Model struct {
	ctl      Dashboard
	now      func() time.Time
	copy     func(string) error
	markdown *output.MarkdownRenderer

	// Data
	visible []backend.Task
	cursor  int
	offset  int

	// Mode and input
	mode        Mode
	form        taskForm
	filterPanel filterPanel
	searchInput textinput.Model
	searchSeq   int
	pending     *dashboard.TaskInput
	duplicate   *dashboard.DuplicateTitleError
	detail      string
	loading     bool

	// Status line
	message string
	isError bool

	// UI dimensions
	width  int
	height int

	// Styles
	headerStyle    lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	overdueStyle   lipgloss.Style
	helpStyle      lipgloss.Style
	errorStyle     lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	priorityStyles map[backend.Priority]lipgloss.Style
}

// Message types
type refreshedMsg struct {
	err error
}

type taskSavedMsg struct {
	input   dashboard.TaskInput
	editing bool
	task    *backend.Task
	err     error
}

type taskDeletedMsg struct {
	title string
	err   error
}

type statusToggledMsg struct {
	err error
}

type searchDoneMsg struct {
	seq    int
	query  string
	active bool
}

type yankedMsg struct {
	title string
	err   error
}

// New creates a new TUI model
func New(ctl Dashboard, opts ...Option) *Model {
	si := textinput.New()
	si.Placeholder = "Search title or description..."
	si.CharLimit = 256

	m := &Model{
		ctl:         ctl,
		now:         time.Now,
		copy:        clipboard.WriteAll,
		markdown:    output.NewMarkdownRenderer("dark"),
		form:        newTaskForm(),
		filterPanel: newFilterPanel(),
		searchInput: si,
		mode:        ModeNormal,
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		overdueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		priorityStyles: map[backend.Priority]lipgloss.Style{
			backend.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			backend.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			backend.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the dashboard in the alternate screen and blocks until the
// user quits.
func Run(m *Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(m, opts...).Run()
	return err
}

// Mode returns the current input mode.
func (m *Model) Mode() Mode {
	return m.mode
}

// Message returns the status line text.
func (m *Model) Message() string {
	return m.message
}

// Selected returns the task under the cursor.
func (m *Model) Selected() (backend.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return backend.Task{}, false
	}
	return m.visible[m.cursor], true
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	m.loading = true
	return m.refresh()
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{err: m.ctl.Refresh()}
	}
}

func (m *Model) saveTask(in dashboard.TaskInput, editing bool) tea.Cmd {
	return func() tea.Msg {
		var (
			task *backend.Task
			err  error
		)
		if editing {
			task, err = m.ctl.UpdateTask(in)
		} else {
			task, err = m.ctl.CreateTask(in)
		}
		return taskSavedMsg{input: in, editing: editing, task: task, err: err}
	}
}

func (m *Model) deleteTask(t backend.Task) tea.Cmd {
	return func() tea.Msg {
		return taskDeletedMsg{title: t.Title, err: m.ctl.DeleteTask(t.ID)}
	}
}

func (m *Model) toggleTask(id string) tea.Cmd {
	return func() tea.Msg {
		return statusToggledMsg{err: m.ctl.ToggleStatus(id)}
	}
}

func (m *Model) search(query string) tea.Cmd {
	m.searchSeq++
	seq := m.searchSeq
	return func() tea.Msg {
		return searchDoneMsg{seq: seq, query: query, active: m.ctl.Search(query)}
	}
}

func (m *Model) yank(title string) tea.Cmd {
	return func() tea.Msg {
		return yankedMsg{title: title, err: m.copy(title)}
	}
}

// sync reloads the visible list from the controller and clamps the cursor.
func (m *Model) sync() {
	m.visible = m.ctl.Visible()
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) info(format string, args ...interface{}) {
	m.message = fmt.Sprintf(format, args...)
	m.isError = false
}

func (m *Model) fail(err error) {
	m.message = utils.UserMessage(err)
	m.isError = true
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshedMsg:
		m.loading = false
		m.sync()
		if msg.err != nil {
			m.fail(msg.err)
		}
		return m, nil

	case taskSavedMsg:
		return m.handleSaved(msg)

	case taskDeletedMsg:
		m.sync()
		if msg.err != nil {
			m.fail(msg.err)
		} else {
			m.info("Deleted %q", msg.title)
		}
		return m, nil

	case statusToggledMsg:
		m.sync()
		if msg.err != nil {
			m.fail(msg.err)
		}
		return m, nil

	case searchDoneMsg:
		m.sync()
		m.cursor = 0
		if msg.seq != m.searchSeq {
			// superseded by a newer search or a filter change
			return m, nil
		}
		if msg.active {
			m.info("%d result(s) for %q", len(m.visible), msg.query)
		} else if msg.query != "" {
			m.info("Search unavailable, showing filtered tasks")
		}
		return m, nil

	case yankedMsg:
		if msg.err != nil {
			m.fail(fmt.Errorf("copy to clipboard: %w", msg.err))
		} else {
			m.info("Copied %q", msg.title)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case ModeAdd, ModeEdit:
			return m.handleFormMode(msg)
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeSearch:
			return m.handleSearchMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeDetail:
			return m.handleDetailMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		case ModeConfirmDuplicate:
			return m.handleConfirmDuplicateMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	// Forward blink and other input messages to the focused input
	var cmd tea.Cmd
	switch m.mode {
	case ModeAdd, ModeEdit:
		cmd = m.form.update(msg)
	case ModeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case ModeFilter:
		m.filterPanel.date, cmd = m.filterPanel.date.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
		return m, nil

	case "g", "home":
		m.cursor = 0
		return m, nil

	case "G", "end":
		if len(m.visible) > 0 {
			m.cursor = len(m.visible) - 1
		}
		return m, nil

	case "a":
		m.mode = ModeAdd
		return m, tea.Batch(m.form.reset(nil), textinput.Blink)

	case "e":
		if t, ok := m.Selected(); ok {
			m.mode = ModeEdit
			return m, tea.Batch(m.form.reset(&t), textinput.Blink)
		}
		return m, nil

	case " ", "c":
		if t, ok := m.Selected(); ok {
			return m, m.toggleTask(t.ID)
		}
		return m, nil

	case "d":
		if _, ok := m.Selected(); ok {
			m.mode = ModeConfirmDelete
		}
		return m, nil

	case "enter":
		if t, ok := m.Selected(); ok {
			m.detail = m.markdown.Render(output.TaskMarkdown(t, m.now()), m.contentWidth())
			m.mode = ModeDetail
		}
		return m, nil

	case "y":
		if t, ok := m.Selected(); ok {
			return m, m.yank(t.Title)
		}
		return m, nil

	case "f":
		m.filterPanel.load(m.ctl.Filter())
		m.mode = ModeFilter
		return m, nil

	case "R":
		m.ctl.ResetDateFilter()
		m.sync()
		m.info("Date filter cleared")
		return m, nil

	case "/":
		m.mode = ModeSearch
		m.searchInput.Reset()
		if q, ok := m.ctl.SearchQuery(); ok {
			m.searchInput.SetValue(q)
		}
		return m, tea.Batch(m.searchInput.Focus(), textinput.Blink)

	case "esc":
		if _, ok := m.ctl.SearchQuery(); ok {
			return m, m.search("")
		}
		return m, nil

	case "r":
		m.loading = true
		return m, m.refresh()

	case "?":
		m.mode = ModeHelp
		return m, nil
	}
	return m, nil
}

func (m *Model) handleFormMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form.busy {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil

	case tea.KeyTab, tea.KeyDown:
		return m, m.form.move(1)

	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.form.move(-1)

	case tea.KeyEnter:
		task, err := m.form.task()
		if err != nil {
			m.form.err = utils.UserMessage(err)
			return m, nil
		}
		m.form.err = ""
		m.form.busy = true
		return m, m.saveTask(dashboard.TaskInput{Task: *task}, m.mode == ModeEdit)
	}

	return m, m.form.update(msg)
}

func (m *Model) handleSaved(msg taskSavedMsg) (tea.Model, tea.Cmd) {
	m.form.busy = false
	m.sync()

	var dup *dashboard.DuplicateTitleError
	switch {
	case errors.As(msg.err, &dup):
		in := msg.input
		m.pending = &in
		m.duplicate = dup
		m.mode = ModeConfirmDuplicate
	case msg.err != nil:
		m.form.err = utils.UserMessage(msg.err)
		if msg.editing {
			m.mode = ModeEdit
		} else {
			m.mode = ModeAdd
		}
	default:
		m.mode = ModeNormal
		m.pending = nil
		m.duplicate = nil
		saved := msg.input.Task
		if msg.task != nil {
			saved = *msg.task
		}
		if msg.editing {
			m.info("Updated %q", saved.Title)
		} else {
			m.info("Created %q", saved.Title)
		}
		m.selectID(saved.ID)
	}
	return m, nil
}

func (m *Model) selectID(id string) {
	for i, t := range m.visible {
		if t.ID == id {
			m.cursor = i
			return
		}
	}
}

func (m *Model) handleConfirmDuplicateMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.pending == nil {
			m.mode = ModeNormal
			return m, nil
		}
		in := *m.pending
		in.Confirmed = true
		editing := m.form.editing != nil
		if editing {
			m.mode = ModeEdit
		} else {
			m.mode = ModeAdd
		}
		m.form.busy = true
		return m, m.saveTask(in, editing)

	case "n", "N", "esc":
		// Back to the form so the title can be changed
		m.pending = nil
		m.duplicate = nil
		if m.form.editing != nil {
			m.mode = ModeEdit
		} else {
			m.mode = ModeAdd
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.filterPanel
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEnter:
		spec, err := p.spec()
		if err == nil {
			err = m.ctl.ApplyFilter(spec)
		}
		if err != nil {
			p.err = utils.UserMessage(err)
			return m, nil
		}
		m.searchSeq++
		m.mode = ModeNormal
		m.sync()
		m.cursor = 0
		m.info("Filter: %s", spec)
		return m, nil

	case tea.KeyTab, tea.KeyDown:
		return m, p.moveRow(1)

	case tea.KeyShiftTab, tea.KeyUp:
		return m, p.moveRow(-1)
	}

	if p.row == rowDate {
		var cmd tea.Cmd
		p.date, cmd = p.date.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "right", "l", " ":
		p.cycle(1)
	case "left", "h":
		p.cycle(-1)
	case "j":
		return m, p.moveRow(1)
	case "k":
		return m, p.moveRow(-1)
	}
	return m, nil
}

func (m *Model) handleSearchMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.mode = ModeNormal
		m.searchInput.Blur()
		return m, m.search(m.searchInput.Value())

	case tea.KeyEsc:
		m.mode = ModeNormal
		m.searchInput.Blur()
		return m, nil
	}

	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = ModeNormal
		return m, nil
	}

	if msg.String() == "q" || msg.String() == "?" {
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) handleDetailMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y":
		if t, ok := m.Selected(); ok {
			return m, m.yank(t.Title)
		}
		return m, nil
	case "e":
		if t, ok := m.Selected(); ok {
			m.mode = ModeEdit
			return m, tea.Batch(m.form.reset(&t), textinput.Blink)
		}
	}
	m.mode = ModeNormal
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if t, ok := m.Selected(); ok {
			return m, m.deleteTask(t)
		}
		return m, nil

	case "n", "N", "esc":
		m.mode = ModeNormal
		return m, nil
	}
	return m, nil
}

