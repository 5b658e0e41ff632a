package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"taskmaster/backend"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// Form field order.
const (
	fieldTitle = iota
	fieldDescription
	fieldDue
	fieldPriority
	fieldCategories
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Title",
	"Description",
	"Due",
	"Priority",
	"Categories",
}

// taskForm is the add/edit dialog.
type taskForm struct {
	inputs  [fieldCount]textinput.Model
	focus   int
	editing *backend.Task
	err     string
	busy    bool
}

func newTaskForm() taskForm {
	var f taskForm
	placeholders := [fieldCount]string{
		"What needs doing?",
		"optional, markdown allowed",
		"YYYY-MM-DD, today, tomorrow, +3d",
		"low, medium, high",
		"comma-separated",
	}
	for i := range f.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 256
		f.inputs[i] = ti
	}
	f.inputs[fieldDescription].CharLimit = 2000
	return f
}

// reset clears the form for a new task, or fills it from t when editing.
func (f *taskForm) reset(t *backend.Task) tea.Cmd {
	for i := range f.inputs {
		f.inputs[i].Reset()
		f.inputs[i].Blur()
	}
	f.err = ""
	f.busy = false
	f.editing = nil
	f.inputs[fieldPriority].SetValue(string(backend.PriorityMedium))

	if t != nil {
		task := *t
		f.editing = &task
		f.inputs[fieldTitle].SetValue(t.Title)
		f.inputs[fieldDescription].SetValue(t.Description)
		if t.DueDate != nil {
			f.inputs[fieldDue].SetValue(t.DueDate.Format(backend.DateFormat))
		}
		f.inputs[fieldPriority].SetValue(string(t.Priority))
		f.inputs[fieldCategories].SetValue(strings.Join(t.Category, ", "))
	}

	f.focus = fieldTitle
	return f.inputs[fieldTitle].Focus()
}

func (f *taskForm) move(delta int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + fieldCount) % fieldCount
	return f.inputs[f.focus].Focus()
}

func (f *taskForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *taskForm) draft() utils.TaskDraft {
	return utils.TaskDraft{
		Title:       f.inputs[fieldTitle].Value(),
		Description: f.inputs[fieldDescription].Value(),
		DueDate:     f.inputs[fieldDue].Value(),
		Priority:    f.inputs[fieldPriority].Value(),
		Categories:  f.inputs[fieldCategories].Value(),
	}
}

// task validates the inputs. Edits keep the ID and status of the original.
func (f *taskForm) task() (*backend.Task, error) {
	t, err := f.draft().BuildTask()
	if err != nil {
		return nil, err
	}
	if f.editing != nil {
		t.ID = f.editing.ID
		t.Status = f.editing.Status
	}
	return t, nil
}

// Filter panel rows.
const (
	rowStatus = iota
	rowPriority
	rowRange
	rowDate
	rowCount
)

// filterPanel edits a FilterSpec with one option row per field.
type filterPanel struct {
	status   int
	priority int
	dateRng  int
	date     textinput.Model
	row      int
	err      string
}

func newFilterPanel() filterPanel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "YYYY-MM-DD (custom range)"
	ti.CharLimit = 32
	return filterPanel{date: ti}
}

func indexOf(options []string, value string) int {
	for i, o := range options {
		if o == value {
			return i
		}
	}
	return 0
}

// load shows the current filter.
func (p *filterPanel) load(spec views.FilterSpec) {
	p.status = indexOf(views.StatusOptions, string(spec.Status))
	p.priority = indexOf(views.PriorityOptions, string(spec.Priority))
	p.dateRng = indexOf(views.RangeOptions, string(spec.DateRange))
	p.date.Reset()
	if spec.SelectedDate != nil {
		p.date.SetValue(spec.SelectedDate.Format(backend.DateFormat))
	}
	p.row = rowStatus
	p.err = ""
	p.date.Blur()
}

func (p *filterPanel) moveRow(delta int) tea.Cmd {
	p.row = (p.row + delta + rowCount) % rowCount
	if p.row == rowDate {
		return p.date.Focus()
	}
	p.date.Blur()
	return nil
}

func cycle(i, delta, n int) int {
	return (i + delta + n) % n
}

func (p *filterPanel) cycle(delta int) {
	switch p.row {
	case rowStatus:
		p.status = cycle(p.status, delta, len(views.StatusOptions))
	case rowPriority:
		p.priority = cycle(p.priority, delta, len(views.PriorityOptions))
	case rowRange:
		p.dateRng = cycle(p.dateRng, delta, len(views.RangeOptions))
	}
}

func (p *filterPanel) spec() (views.FilterSpec, error) {
	date := ""
	if views.RangeOptions[p.dateRng] == string(views.RangeCustom) {
		date = p.date.Value()
	}
	return views.ParseFilterSpec(
		views.StatusOptions[p.status],
		views.PriorityOptions[p.priority],
		views.RangeOptions[p.dateRng],
		date,
	)
}
