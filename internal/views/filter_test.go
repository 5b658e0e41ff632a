package views

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

var refToday = time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC) // a Wednesday

func dueIn(days int) *time.Time {
	d := refToday.AddDate(0, 0, days)
	return &d
}

func task(id string, status backend.TaskStatus, priority backend.Priority, due *time.Time) backend.Task {
	return backend.Task{ID: id, Title: "task " + id, Status: status, Priority: priority, DueDate: due}
}

func ids(tasks []backend.Task) []string {
	out := []string{}
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func sampleTasks() []backend.Task {
	return []backend.Task{
		task("1", backend.StatusPending, backend.PriorityHigh, dueIn(0)),
		task("2", backend.StatusCompleted, backend.PriorityLow, dueIn(3)),
		task("3", backend.StatusPending, backend.PriorityMedium, dueIn(7)),
		task("4", backend.StatusCompleted, backend.PriorityHigh, dueIn(8)),
		task("5", backend.StatusPending, backend.PriorityLow, nil),
		task("6", backend.StatusCompleted, backend.PriorityMedium, dueIn(-2)),
		task("7", backend.StatusPending, backend.PriorityHigh, dueIn(32)),
	}
}

// =============================================================================
// FilterTasks
// =============================================================================

func TestFilterTasks(t *testing.T) {
	custom := refToday.AddDate(0, 0, 3)

	tests := []struct {
		name string
		spec FilterSpec
		want []string
	}{
		{"default matches all", DefaultFilter(), []string{"1", "2", "3", "4", "5", "6", "7"}},
		{"zero value matches all", FilterSpec{}, []string{"1", "2", "3", "4", "5", "6", "7"}},
		{"completed only", FilterSpec{Status: StatusCompleted, Priority: PriorityAll, DateRange: RangeAll}, []string{"2", "4", "6"}},
		{"pending high", FilterSpec{Status: StatusPending, Priority: PriorityHigh}, []string{"1", "7"}},
		{"today", FilterSpec{DateRange: RangeToday}, []string{"1"}},
		{"week is inclusive of today+7", FilterSpec{DateRange: RangeWeek}, []string{"1", "2", "3"}},
		{"month", FilterSpec{DateRange: RangeMonth}, []string{"1", "2", "3", "4"}},
		{"custom", FilterSpec{DateRange: RangeCustom, SelectedDate: &custom}, []string{"2"}},
		{"custom without date matches nothing", FilterSpec{DateRange: RangeCustom}, []string{}},
		{"combined", FilterSpec{Status: StatusCompleted, Priority: PriorityHigh, DateRange: RangeMonth}, []string{"4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(FilterTasks(sampleTasks(), tt.spec, refToday))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterTasks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterTasksWeekBoundary(t *testing.T) {
	tasks := []backend.Task{
		task("plus7", backend.StatusPending, backend.PriorityLow, dueIn(7)),
		task("plus8", backend.StatusPending, backend.PriorityLow, dueIn(8)),
		task("minus1", backend.StatusPending, backend.PriorityLow, dueIn(-1)),
	}
	got := ids(FilterTasks(tasks, FilterSpec{DateRange: RangeWeek}, refToday))
	if !reflect.DeepEqual(got, []string{"plus7"}) {
		t.Errorf("week range = %v, want only today+7", got)
	}
}

func TestFilterTasksMonthBoundary(t *testing.T) {
	jan31 := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	mar3 := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	mar4 := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	tasks := []backend.Task{
		task("in", backend.StatusPending, backend.PriorityLow, &mar3),
		task("out", backend.StatusPending, backend.PriorityLow, &mar4),
	}
	// Jan 31 plus one calendar month normalizes to Mar 3 in 2026.
	got := ids(FilterTasks(tasks, FilterSpec{DateRange: RangeMonth}, jan31))
	if !reflect.DeepEqual(got, []string{"in"}) {
		t.Errorf("month range = %v, want [in]", got)
	}
}

func TestFilterTasksIgnoresTimeOfDay(t *testing.T) {
	late := time.Date(2026, time.March, 11, 23, 59, 0, 0, time.UTC)
	tasks := []backend.Task{task("1", backend.StatusPending, backend.PriorityLow, &late)}

	now := time.Date(2026, time.March, 11, 8, 15, 0, 0, time.UTC)
	if got := FilterTasks(tasks, FilterSpec{DateRange: RangeToday}, now); len(got) != 1 {
		t.Errorf("task due later today should match today range, got %d", len(got))
	}
}

func TestFilterTasksIdempotent(t *testing.T) {
	specs := []FilterSpec{
		DefaultFilter(),
		{Status: StatusPending},
		{Priority: PriorityHigh, DateRange: RangeMonth},
		{Status: StatusCompleted, DateRange: RangeWeek},
	}
	for _, spec := range specs {
		once := FilterTasks(sampleTasks(), spec, refToday)
		twice := FilterTasks(once, spec, refToday)
		if !reflect.DeepEqual(ids(once), ids(twice)) {
			t.Errorf("%s: not idempotent: %v then %v", spec, ids(once), ids(twice))
		}
	}
}

func TestFilterTasksDoesNotMutateInput(t *testing.T) {
	tasks := sampleTasks()
	before := ids(tasks)
	_ = FilterTasks(tasks, FilterSpec{Status: StatusPending}, refToday)
	if !reflect.DeepEqual(before, ids(tasks)) {
		t.Error("input slice was modified")
	}
}

// =============================================================================
// ParseFilterSpec / Validate
// =============================================================================

func TestParseFilterSpec(t *testing.T) {
	spec, err := ParseFilterSpec("done", "HIGH", "week", "")
	if err != nil {
		t.Fatalf("ParseFilterSpec() error: %v", err)
	}
	want := FilterSpec{Status: StatusCompleted, Priority: PriorityHigh, DateRange: RangeWeek}
	if !reflect.DeepEqual(spec, want) {
		t.Errorf("got %+v, want %+v", spec, want)
	}

	spec, err = ParseFilterSpec("", "", "", "2026-05-01")
	if err != nil {
		t.Fatalf("ParseFilterSpec() error: %v", err)
	}
	if spec.DateRange != RangeCustom || spec.SelectedDate == nil || spec.SelectedDate.Format(backend.DateFormat) != "2026-05-01" {
		t.Errorf("a bare date should imply the custom range, got %s", spec)
	}
}

func TestParseFilterSpecErrors(t *testing.T) {
	tests := []struct {
		name                        string
		status, priority, rng, date string
	}{
		{name: "status", status: "maybe"},
		{name: "priority", priority: "urgent"},
		{name: "range", rng: "year"},
		{name: "custom without date", rng: "custom"},
		{name: "bad date", date: "someday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilterSpec(tt.status, tt.priority, tt.rng, tt.date)
			var ve *utils.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestFilterSpecIsDefault(t *testing.T) {
	if !(FilterSpec{}).IsDefault() || !DefaultFilter().IsDefault() {
		t.Error("zero and default specs should be default")
	}
	if (FilterSpec{Status: StatusPending}).IsDefault() {
		t.Error("status filter is not default")
	}
}
