// Package prompt handles interactive prompts with no-prompt mode support.
// It provides task selection with filtering, yes/no confirmation, hidden
// password input and an interactive task form with field validation.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoTasks            = errors.New("no tasks available")
	ErrNoMatches          = errors.New("no tasks match the filter")
	ErrNoInput            = errors.New("no input")
)

// Prompter reads answers line by line from one shared reader, so several
// prompts in a row consume piped input in order.
type Prompter struct {
	raw      io.Reader
	in       *bufio.Reader
	out      io.Writer
	NoPrompt bool
}

// New creates a prompter. A nil writer discards prompt text.
func New(in io.Reader, out io.Writer, noPrompt bool) *Prompter {
	if out == nil {
		out = io.Discard
	}
	if in == nil {
		in = strings.NewReader("")
	}
	return &Prompter{raw: in, in: bufio.NewReader(in), out: out, NoPrompt: noPrompt}
}

// ReadLine prints label and returns the trimmed answer.
func (p *Prompter) ReadLine(label string) (string, error) {
	if p.NoPrompt {
		return "", ErrNoPromptMode
	}
	_, _ = fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", ErrNoInput
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. An empty answer returns def.
func (p *Prompter) Confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		answer, err := p.ReadLine(fmt.Sprintf("%s %s: ", question, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		_, _ = fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// Password reads a secret without echo when input is a terminal.
func (p *Prompter) Password(label string) (string, error) {
	if p.NoPrompt {
		return "", ErrNoPromptMode
	}
	if f, ok := p.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(p.out, label)
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}
	line, err := p.ReadLine(label)
	if err != nil {
		return "", err
	}
	return line, nil
}

// TaskSelector provides task selection with metadata display.
type TaskSelector struct {
	Tasks  []backend.Task
	Prompt string
}

// Run executes the task selection prompt.
// In no-prompt mode it returns ErrNoPromptMode.
// If there is exactly one task, it is auto-selected.
// Otherwise the user types a filter, then picks a number.
func (s *TaskSelector) Run(p *Prompter) (*backend.Task, error) {
	if p.NoPrompt {
		return nil, ErrNoPromptMode
	}
	if len(s.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	if len(s.Tasks) == 1 {
		return &s.Tasks[0], nil
	}

	_, _ = fmt.Fprintln(p.out, s.Prompt)
	filter, err := p.ReadLine("Filter (or press Enter to show all): ")
	if err != nil {
		return nil, ErrSelectionCancelled
	}

	filtered := FilterByTitle(s.Tasks, filter)
	if len(filtered) == 0 {
		return nil, ErrNoMatches
	}
	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(p.out, "Auto-selected: %s\n", filtered[0].Title)
		return &filtered[0], nil
	}

	for i, t := range filtered {
		_, _ = fmt.Fprintf(p.out, "  %d) %s\n", i+1, FormatTaskLine(t))
	}

	input, err := p.ReadLine("Select (0 to cancel): ")
	if err != nil {
		return nil, ErrSelectionCancelled
	}
	num, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("invalid selection: %s", input)
	}
	if num == 0 {
		return nil, ErrSelectionCancelled
	}
	if num < 1 || num > len(filtered) {
		return nil, fmt.Errorf("selection out of range: %d", num)
	}
	return &filtered[num-1], nil
}

// FilterByTitle keeps tasks whose title contains filter, ignoring case.
func FilterByTitle(tasks []backend.Task, filter string) []backend.Task {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return append([]backend.Task{}, tasks...)
	}
	var out []backend.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), filter) {
			out = append(out, t)
		}
	}
	return out
}

// FormatTaskLine formats a task with status, priority, due date and
// categories.
func FormatTaskLine(t backend.Task) string {
	meta := []string{string(t.Status), string(t.Priority)}
	if t.DueDate != nil {
		meta = append(meta, "due: "+t.DueDate.Format(backend.DateFormat))
	}
	if len(t.Category) > 0 {
		meta = append(meta, "tags: "+strings.Join(t.Category, ","))
	}
	return fmt.Sprintf("%s [%s]", t.Title, strings.Join(meta, ", "))
}

// FilterTasksByAction narrows the candidates to tasks the action applies
// to: "done" offers pending tasks, "undo" offers completed ones. showAll
// disables the narrowing.
func FilterTasksByAction(tasks []backend.Task, action string, showAll bool) []backend.Task {
	var want backend.TaskStatus
	switch action {
	case "done":
		want = backend.StatusPending
	case "undo":
		want = backend.StatusCompleted
	}
	if showAll || want == "" {
		return append([]backend.Task{}, tasks...)
	}

	var filtered []backend.Task
	for _, t := range tasks {
		if t.Status == want {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// TaskForm collects task fields one prompt at a time. Values in Defaults
// are shown in brackets and kept when the answer is empty.
type TaskForm struct {
	Defaults utils.TaskDraft
}

// Run prompts for title, description, due date, priority and categories.
// Title and due date are required; invalid dates and priorities are asked
// again.
func (f *TaskForm) Run(p *Prompter) (*utils.TaskDraft, error) {
	if p.NoPrompt {
		return nil, ErrNoPromptMode
	}
	d := f.Defaults

	for {
		v, err := p.ReadLine(label("Title (required)", d.Title))
		if err != nil {
			return nil, fmt.Errorf("no input for title: %w", err)
		}
		if v != "" {
			d.Title = v
		}
		if strings.TrimSpace(d.Title) != "" {
			break
		}
		_, _ = fmt.Fprintln(p.out, "Title cannot be empty.")
	}

	if v, err := p.ReadLine(label("Description (optional)", d.Description)); err == nil && v != "" {
		d.Description = v
	}

	for {
		v, err := p.ReadLine(label("Due date (YYYY-MM-DD, today, tomorrow, +Nd)", d.DueDate))
		if err != nil {
			return nil, fmt.Errorf("no input for due date: %w", err)
		}
		if v == "" {
			v = d.DueDate
		}
		if v == "" {
			_, _ = fmt.Fprintln(p.out, "Due date is required.")
			continue
		}
		if _, err := utils.ParseDateFlag(v); err != nil {
			_, _ = fmt.Fprintf(p.out, "Invalid date: %s. Use YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm\n", v)
			continue
		}
		d.DueDate = v
		break
	}

	priorityDefault := d.Priority
	if priorityDefault == "" {
		priorityDefault = string(backend.PriorityMedium)
	}
	for {
		v, err := p.ReadLine(label("Priority (low, medium, high)", priorityDefault))
		if err != nil || v == "" {
			d.Priority = priorityDefault
			break
		}
		if _, ok := backend.ParsePriority(v); !ok {
			_, _ = fmt.Fprintln(p.out, "Invalid priority: must be low, medium or high")
			continue
		}
		d.Priority = v
		break
	}

	if v, err := p.ReadLine(label("Categories (comma-separated, optional)", d.Categories)); err == nil && v != "" {
		d.Categories = v
	}

	return &d, nil
}

func label(name, def string) string {
	if def == "" {
		return name + ": "
	}
	return fmt.Sprintf("%s [%s]: ", name, def)
}
