// Package output renders tasks, statistics and command results for the
// terminal, as colored tables or as JSON.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"taskmaster/backend"
	"taskmaster/internal/analytics"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Printer writes human-readable output. Colors are off when plain is set
// or the terminal does not support them.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, plain bool) *Printer {
	return &Printer{w: w, plain: plain || color.NoColor}
}

func (p *Printer) style(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.plain {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}

// StatusIcon returns the list marker for a status.
func StatusIcon(s backend.TaskStatus) string {
	if s == backend.StatusCompleted {
		return "[x]"
	}
	return "[ ]"
}

// ShortID abbreviates a backend ID for tables.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// RelativeDue describes a due date relative to today.
func RelativeDue(due *time.Time, today time.Time) string {
	if due == nil {
		return ""
	}
	d := utils.CalendarDay(*due)
	today = utils.CalendarDay(today)
	switch int(d.Sub(today).Hours() / 24) {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	case -1:
		return "yesterday"
	}
	return humanize.RelTime(d, today, "ago", "from now")
}

func (p *Printer) priority(pr backend.Priority) string {
	switch pr {
	case backend.PriorityHigh:
		return p.style(color.FgRed, color.Bold).Sprint(pr)
	case backend.PriorityMedium:
		return p.style(color.FgYellow).Sprint(pr)
	case backend.PriorityLow:
		return p.style(color.FgGreen).Sprint(pr)
	}
	return string(pr)
}

func (p *Printer) due(t backend.Task, today time.Time) string {
	if t.DueDate == nil {
		return p.style(color.Faint).Sprint("-")
	}
	s := fmt.Sprintf("%s (%s)", t.DueDate.Format(backend.DateFormat), RelativeDue(t.DueDate, today))
	if views.IsOverdue(t, today) {
		return p.style(color.FgRed).Sprint(s)
	}
	return s
}

// Tasks prints a task table. An empty list prints a single "none" line.
func (p *Printer) Tasks(title string, tasks []backend.Task, today time.Time) {
	head := p.style(color.Bold, color.Underline)
	faint := p.style(color.Faint)

	_, _ = head.Fprint(p.w, title)
	_, _ = faint.Fprintf(p.w, " - %s\n", plural(len(tasks), "task"))
	if len(tasks) == 0 {
		_, _ = p.style(color.Faint, color.Italic).Fprintln(p.w, " none")
		return
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	tbl.AddRow("ID", "", "TITLE", "PRIORITY", "DUE", "CATEGORIES")
	for _, t := range tasks {
		titleText := t.Title
		if t.Status == backend.StatusCompleted {
			titleText = p.style(color.Faint, color.CrossedOut).Sprint(t.Title)
		}
		tbl.AddRow(
			p.style(color.FgHiYellow, color.Faint).Sprint(ShortID(t.ID)),
			StatusIcon(t.Status),
			titleText,
			p.priority(t.Priority),
			p.due(t, today),
			strings.Join(t.Category, ", "),
		)
	}
	_, _ = fmt.Fprintln(p.w, tbl)
}

// Task prints the fields of a single task.
func (p *Printer) Task(t backend.Task, today time.Time) {
	tbl := uitable.New()
	tbl.Wrap = true
	tbl.MaxColWidth = 70
	tbl.AddRow("ID:", t.ID)
	tbl.AddRow("Title:", t.Title)
	tbl.AddRow("Status:", string(t.Status))
	tbl.AddRow("Priority:", p.priority(t.Priority))
	tbl.AddRow("Due:", p.due(t, today))
	if len(t.Category) > 0 {
		tbl.AddRow("Categories:", strings.Join(t.Category, ", "))
	}
	if t.Description != "" {
		tbl.AddRow("Description:", t.Description)
	}
	_, _ = fmt.Fprintln(p.w, tbl)
}

// Stats prints the summary cards and the weekly chart.
func (p *Printer) Stats(s views.Stats, week []views.DayProgress) {
	head := p.style(color.Bold, color.Underline)
	_, _ = head.Fprintln(p.w, "Overview")

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("Total", s.Total, "")
	tbl.AddRow("Pending", s.Pending.Count, fmt.Sprintf("%d%%", s.Pending.Percentage))
	tbl.AddRow(p.style(color.FgGreen).Sprint("Completed"), s.Completed.Count, fmt.Sprintf("%d%%", s.Completed.Percentage))
	tbl.AddRow(p.style(color.FgRed).Sprint("Overdue"), s.Overdue.Count, fmt.Sprintf("%d%%", s.Overdue.Percentage))
	_, _ = fmt.Fprintln(p.w, tbl)

	if len(week) == 0 {
		return
	}
	_, _ = fmt.Fprintln(p.w)
	_, _ = head.Fprintln(p.w, "This week")
	done := p.style(color.FgGreen)
	todo := p.style(color.FgYellow)
	chart := uitable.New()
	chart.Separator = "  "
	for _, d := range week {
		bar := done.Sprint(strings.Repeat("#", d.Completed)) + todo.Sprint(strings.Repeat(".", d.Pending))
		chart.AddRow(d.Day, d.Date.Format("Jan 02"), fmt.Sprintf("%d/%d", d.Completed, d.Completed+d.Pending), bar)
	}
	_, _ = fmt.Fprintln(p.w, chart)
}

// Usage prints the analytics summary.
func (p *Printer) Usage(summaries []analytics.OperationSummary, since time.Time) {
	_, _ = p.style(color.Bold, color.Underline).Fprint(p.w, "Usage")
	_, _ = p.style(color.Faint).Fprintf(p.w, " - since %s\n", humanize.Time(since))
	if len(summaries) == 0 {
		_, _ = p.style(color.Faint, color.Italic).Fprintln(p.w, " no recorded operations")
		return
	}
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("OPERATION", "COUNT", "FAILURES", "AVG", "LAST ERROR")
	for _, s := range summaries {
		tbl.AddRow(s.Operation, humanize.Comma(s.Count), s.Failures, fmt.Sprintf("%dms", s.AvgMs), s.LastError)
	}
	_, _ = fmt.Fprintln(p.w, tbl)
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...interface{}) {
	_, _ = p.style(color.FgGreen).Fprintf(p.w, format+"\n", args...)
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...interface{}) {
	_, _ = p.style(color.FgYellow).Fprintf(p.w, format+"\n", args...)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// =============================================================================
// JSON
// =============================================================================

// TaskJSON is the JSON shape of a task in command output.
type TaskJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	Priority    string   `json:"priority"`
	Categories  []string `json:"categories"`
	Status      string   `json:"status"`
	Overdue     bool     `json:"overdue"`
}

// ToJSON converts a task for JSON output.
func ToJSON(t backend.Task, today time.Time) TaskJSON {
	out := TaskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Categories:  t.Category,
		Status:      string(t.Status),
		Overdue:     views.IsOverdue(t, today),
	}
	if out.Categories == nil {
		out.Categories = []string{}
	}
	if t.DueDate != nil {
		s := t.DueDate.Format(backend.DateFormat)
		out.DueDate = &s
	}
	return out
}

// ListResponse is the JSON output of list and search.
type ListResponse struct {
	Tasks  []TaskJSON `json:"tasks"`
	Filter string     `json:"filter,omitempty"`
	Search string     `json:"search,omitempty"`
	Count  int        `json:"count"`
	Result string     `json:"result"`
}

// ActionResponse is the JSON output of a task mutation.
type ActionResponse struct {
	Action string    `json:"action"`
	Task   *TaskJSON `json:"task,omitempty"`
	Result string    `json:"result"`
}

// ErrorResponse is the JSON output of a failed command.
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Suggestion string `json:"suggestion,omitempty"`
	Code       int    `json:"code"`
	Result     string `json:"result"`
}

// NewListResponse builds the list payload.
func NewListResponse(tasks []backend.Task, today time.Time) ListResponse {
	out := ListResponse{Tasks: make([]TaskJSON, 0, len(tasks)), Count: len(tasks), Result: ResultInfoOnly}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, ToJSON(t, today))
	}
	return out
}

// NewErrorResponse builds the error payload.
func NewErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{
		Error:  utils.UserMessage(err),
		Kind:   string(utils.Classify(err)),
		Code:   1,
		Result: ResultError,
	}
	var sugg *utils.ErrorWithSuggestion
	if errors.As(err, &sugg) {
		resp.Suggestion = sugg.GetSuggestion()
	}
	return resp
}

// PrintJSON writes v as a single JSON line.
func PrintJSON(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(data))
	return nil
}
