// Package views holds the pure task list logic shared by the CLI and the
// dashboard: filtering, duplicate detection and statistics.
package views

import (
	"fmt"
	"strings"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// StatusFilter selects tasks by completion state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusPending   StatusFilter = StatusFilter(backend.StatusPending)
	StatusCompleted StatusFilter = StatusFilter(backend.StatusCompleted)
)

// PriorityFilter selects tasks by priority.
type PriorityFilter string

const (
	PriorityAll    PriorityFilter = "all"
	PriorityLow    PriorityFilter = PriorityFilter(backend.PriorityLow)
	PriorityMedium PriorityFilter = PriorityFilter(backend.PriorityMedium)
	PriorityHigh   PriorityFilter = PriorityFilter(backend.PriorityHigh)
)

// DateRange selects tasks by due date relative to today.
type DateRange string

const (
	RangeAll    DateRange = "all"
	RangeToday  DateRange = "today"
	RangeWeek   DateRange = "week"
	RangeMonth  DateRange = "month"
	RangeCustom DateRange = "custom"
)

// StatusOptions lists the accepted status filter names.
var StatusOptions = []string{"all", "pending", "completed"}

// PriorityOptions lists the accepted priority filter names.
var PriorityOptions = []string{"all", "low", "medium", "high"}

// RangeOptions lists the accepted date range names.
var RangeOptions = []string{"all", "today", "week", "month", "custom"}

// FilterSpec is the transient filter state of a task list. The zero value
// is treated like DefaultFilter.
type FilterSpec struct {
	Status       StatusFilter
	Priority     PriorityFilter
	DateRange    DateRange
	SelectedDate *time.Time // used by RangeCustom only
}

// DefaultFilter matches every task.
func DefaultFilter() FilterSpec {
	return FilterSpec{Status: StatusAll, Priority: PriorityAll, DateRange: RangeAll}
}

// normalized fills empty fields with "all".
func (f FilterSpec) normalized() FilterSpec {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Priority == "" {
		f.Priority = PriorityAll
	}
	if f.DateRange == "" {
		f.DateRange = RangeAll
	}
	return f
}

// IsDefault reports whether the filter matches every task.
func (f FilterSpec) IsDefault() bool {
	n := f.normalized()
	return n.Status == StatusAll && n.Priority == PriorityAll && n.DateRange == RangeAll
}

// Validate checks the field values. A custom range needs a selected date.
func (f FilterSpec) Validate() error {
	n := f.normalized()
	switch n.Status {
	case StatusAll, StatusPending, StatusCompleted:
	default:
		return utils.ErrInvalidStatus(string(n.Status), StatusOptions)
	}
	switch n.Priority {
	case PriorityAll, PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return utils.ErrInvalidPriority(string(n.Priority))
	}
	switch n.DateRange {
	case RangeAll, RangeToday, RangeWeek, RangeMonth:
	case RangeCustom:
		if n.SelectedDate == nil {
			return &utils.ValidationError{Field: "date", Message: "custom range needs a selected date"}
		}
	default:
		return utils.WrapWithSuggestion(
			&utils.ValidationError{Field: "range", Message: fmt.Sprintf("invalid value %q", n.DateRange)},
			"Valid options: "+strings.Join(RangeOptions, ", "),
		)
	}
	return nil
}

// String renders the filter for status bars and logs.
func (f FilterSpec) String() string {
	n := f.normalized()
	s := fmt.Sprintf("status=%s priority=%s range=%s", n.Status, n.Priority, n.DateRange)
	if n.DateRange == RangeCustom && n.SelectedDate != nil {
		s += " date=" + n.SelectedDate.Format(backend.DateFormat)
	}
	return s
}

// ParseFilterSpec builds a spec from user input. Empty values mean "all".
// A date without a range implies the custom range.
func ParseFilterSpec(status, priority, dateRange, date string) (FilterSpec, error) {
	spec := DefaultFilter()

	if s := strings.ToLower(strings.TrimSpace(status)); s != "" && s != "all" {
		parsed, ok := backend.ParseStatus(s)
		if !ok {
			return spec, utils.ErrInvalidStatus(status, StatusOptions)
		}
		spec.Status = StatusFilter(parsed)
	}

	if p := strings.ToLower(strings.TrimSpace(priority)); p != "" && p != "all" {
		parsed, ok := backend.ParsePriority(p)
		if !ok {
			return spec, utils.ErrInvalidPriority(priority)
		}
		spec.Priority = PriorityFilter(parsed)
	}

	if r := strings.ToLower(strings.TrimSpace(dateRange)); r != "" {
		spec.DateRange = DateRange(r)
	}

	if strings.TrimSpace(date) != "" {
		selected, err := utils.ParseDateFlag(date)
		if err != nil {
			return spec, err
		}
		spec.SelectedDate = selected
		if strings.TrimSpace(dateRange) == "" {
			spec.DateRange = RangeCustom
		}
	}

	return spec, spec.Validate()
}

// FilterTasks returns the tasks satisfying spec, in input order. today is
// the reference calendar day for the date ranges.
func FilterTasks(tasks []backend.Task, spec FilterSpec, today time.Time) []backend.Task {
	spec = spec.normalized()
	today = utils.CalendarDay(today)

	result := make([]backend.Task, 0, len(tasks))
	for i := range tasks {
		if matchesFilter(&tasks[i], spec, today) {
			result = append(result, tasks[i])
		}
	}
	return result
}

// matchesFilter applies status, priority and date checks (AND logic)
func matchesFilter(t *backend.Task, spec FilterSpec, today time.Time) bool {
	if spec.Status != StatusAll && string(t.Status) != string(spec.Status) {
		return false
	}
	if spec.Priority != PriorityAll && string(t.Priority) != string(spec.Priority) {
		return false
	}
	return matchesDateRange(t.DueDate, spec, today)
}

func matchesDateRange(due *time.Time, spec FilterSpec, today time.Time) bool {
	if spec.DateRange == RangeAll {
		return true
	}
	if due == nil {
		return false
	}
	d := utils.CalendarDay(*due)

	switch spec.DateRange {
	case RangeToday:
		return d.Equal(today)
	case RangeWeek:
		return inRange(d, today, today.AddDate(0, 0, 7))
	case RangeMonth:
		return inRange(d, today, today.AddDate(0, 1, 0))
	case RangeCustom:
		if spec.SelectedDate == nil {
			return false
		}
		return d.Equal(utils.CalendarDay(*spec.SelectedDate))
	}
	return false
}

// inRange reports start <= d <= end.
func inRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
