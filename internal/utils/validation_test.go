package utils

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"taskmaster/backend"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// Date parsing
// =============================================================================

func TestParseDateFlagAt(t *testing.T) {
	today := day(2026, time.March, 14)

	tests := []struct {
		input string
		want  *time.Time
	}{
		{"", nil},
		{"today", ptr(today)},
		{"TOMORROW", ptr(day(2026, time.March, 15))},
		{"yesterday", ptr(day(2026, time.March, 13))},
		{"+7d", ptr(day(2026, time.March, 21))},
		{"-3d", ptr(day(2026, time.March, 11))},
		{"+2w", ptr(day(2026, time.March, 28))},
		{"+1m", ptr(day(2026, time.April, 14))},
		{"2026-12-31", ptr(day(2026, time.December, 31))},
		{" 2026-01-02 ", ptr(day(2026, time.January, 2))},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDateFlagAt(tt.input, today)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Errorf("got %v, want %v", got, *tt.want)
			}
		})
	}
}

func TestParseDateFlagInvalid(t *testing.T) {
	for _, input := range []string{"someday", "2026-13-01", "+3y", "31/12/2026"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDateFlag(input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCalendarDayIgnoresClock(t *testing.T) {
	loc := time.FixedZone("UTC-10", -10*3600)
	late := time.Date(2026, time.May, 1, 23, 30, 0, 0, loc)
	if got := CalendarDay(late); !got.Equal(day(2026, time.May, 1)) {
		t.Errorf("CalendarDay() = %v, want 2026-05-01", got)
	}
}

// =============================================================================
// Form validation
// =============================================================================

func TestParseCategories(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"work", []string{"work"}},
		{" work , home,work,, errands ", []string{"work", "home", "errands"}},
	}
	for _, tt := range tests {
		if got := ParseCategories(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCategories(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTaskDraftBuildTask(t *testing.T) {
	task, err := TaskDraft{
		Title:      "  Buy milk ",
		DueDate:    "2026-04-01",
		Categories: "home, errands, home",
	}.BuildTask()
	if err != nil {
		t.Fatalf("BuildTask() error: %v", err)
	}
	if task.Title != "Buy milk" {
		t.Errorf("Title = %q", task.Title)
	}
	if task.Priority != backend.PriorityMedium {
		t.Errorf("Priority = %q, want medium by default", task.Priority)
	}
	if task.Status != backend.StatusPending {
		t.Errorf("Status = %q, want pending", task.Status)
	}
	if !reflect.DeepEqual(task.Category, []string{"home", "errands"}) {
		t.Errorf("Category = %v", task.Category)
	}
	if task.DueDate == nil || task.DueDate.Format(backend.DateFormat) != "2026-04-01" {
		t.Errorf("DueDate = %v", task.DueDate)
	}
}

func TestTaskDraftRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		draft TaskDraft
		field string
	}{
		{"missing title", TaskDraft{Title: "   ", DueDate: "today"}, "title"},
		{"missing due date", TaskDraft{Title: "x"}, "dueDate"},
		{"bad priority", TaskDraft{Title: "x", DueDate: "today", Priority: "urgent"}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.draft.BuildTask()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidateProfileAndPassword(t *testing.T) {
	if err := ValidateProfile(backend.ProfileUpdate{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
	if err := ValidateProfile(backend.ProfileUpdate{Name: "Ada"}); err == nil {
		t.Error("profile without email should be rejected")
	}
	if err := ValidatePasswordChange("old", "new", "other"); err == nil {
		t.Error("mismatched confirmation should be rejected")
	}
	if err := ValidatePasswordChange("old", "new", "new"); err != nil {
		t.Errorf("valid password change rejected: %v", err)
	}
	if err := ValidateCredentials("", "pw"); err == nil {
		t.Error("missing email should be rejected")
	}
}

// =============================================================================
// Schema
// =============================================================================

func TestValidateTaskPayload(t *testing.T) {
	due := day(2026, time.June, 1)
	valid := &backend.Task{
		Title:    "Write report",
		DueDate:  &due,
		Priority: backend.PriorityHigh,
		Category: []string{"work"},
		Status:   backend.StatusPending,
	}
	if err := ValidateTaskPayload(valid); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}

	bad := *valid
	bad.Priority = "urgent"
	err := ValidateTaskPayload(&bad)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Field != "priority" {
		t.Errorf("Field = %q, want priority", ve.Field)
	}

	noDue := *valid
	noDue.DueDate = nil
	if err := ValidateTaskPayload(&noDue); err == nil {
		t.Error("task without due date should be rejected")
	}

	long := *valid
	long.Title = strings.Repeat("t", 300)
	long.Description = strings.Repeat("d", 6000)
	if err := ValidateTaskPayload(&long); err != nil {
		t.Errorf("long title and description should be accepted: %v", err)
	}
}

func ptr(t time.Time) *time.Time { return &t }
