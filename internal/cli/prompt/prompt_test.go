package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// =============================================================================
// Test Helpers
// =============================================================================

func dueDate(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sampleTasks() []backend.Task {
	return []backend.Task{
		{ID: "id-1", Title: "Buy groceries", Status: backend.StatusPending, Priority: backend.PriorityMedium, DueDate: dueDate(2026, 2, 15)},
		{ID: "id-2", Title: "Fix bug in parser", Status: backend.StatusPending, Priority: backend.PriorityHigh, Category: []string{"work"}},
		{ID: "id-3", Title: "Write documentation", Status: backend.StatusPending, Priority: backend.PriorityLow},
		{ID: "id-4", Title: "Buy milk", Status: backend.StatusPending, Priority: backend.PriorityLow},
		{ID: "id-5", Title: "Deploy to production", Status: backend.StatusCompleted, Priority: backend.PriorityHigh},
	}
}

func newPrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return New(strings.NewReader(input), &out, false), &out
}

// =============================================================================
// TaskSelector
// =============================================================================

func TestTaskSelectorFiltersByTitle(t *testing.T) {
	t.Run("filters by typed input", func(t *testing.T) {
		p, _ := newPrompter("buy\n2\n")
		selected, err := (&TaskSelector{Tasks: sampleTasks(), Prompt: "Select task:"}).Run(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.Title != "Buy milk" {
			t.Errorf("selected %q, want Buy milk", selected.Title)
		}
	})

	t.Run("case insensitive filtering", func(t *testing.T) {
		p, _ := newPrompter("BUY\n1\n")
		selected, err := (&TaskSelector{Tasks: sampleTasks(), Prompt: "Select task:"}).Run(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.Title != "Buy groceries" {
			t.Errorf("selected %q, want Buy groceries", selected.Title)
		}
	})

	t.Run("empty filter shows all tasks", func(t *testing.T) {
		p, out := newPrompter("\n3\n")
		selected, err := (&TaskSelector{Tasks: sampleTasks(), Prompt: "Select task:"}).Run(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != "id-3" {
			t.Errorf("selected %q, want id-3", selected.ID)
		}
		if !strings.Contains(out.String(), "5) Deploy to production") {
			t.Errorf("expected all tasks listed:\n%s", out.String())
		}
	})

	t.Run("single match auto-selects", func(t *testing.T) {
		p, out := newPrompter("parser\n")
		selected, err := (&TaskSelector{Tasks: sampleTasks(), Prompt: "Select task:"}).Run(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != "id-2" {
			t.Errorf("selected %q, want id-2", selected.ID)
		}
		if !strings.Contains(out.String(), "Auto-selected: Fix bug in parser") {
			t.Errorf("missing auto-select notice:\n%s", out.String())
		}
	})
}

func TestTaskSelectorErrors(t *testing.T) {
	tests := []struct {
		name  string
		tasks []backend.Task
		input string
		want  error
	}{
		{"no tasks", nil, "", ErrNoTasks},
		{"no matches", sampleTasks(), "zzz\n", ErrNoMatches},
		{"cancel with zero", sampleTasks(), "buy\n0\n", ErrSelectionCancelled},
		{"input ends early", sampleTasks(), "buy\n", ErrSelectionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newPrompter(tt.input)
			_, err := (&TaskSelector{Tasks: tt.tasks}).Run(p)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("out of range", func(t *testing.T) {
		p, _ := newPrompter("buy\n9\n")
		_, err := (&TaskSelector{Tasks: sampleTasks()}).Run(p)
		if err == nil || !strings.Contains(err.Error(), "out of range") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("not a number", func(t *testing.T) {
		p, _ := newPrompter("buy\nfirst\n")
		_, err := (&TaskSelector{Tasks: sampleTasks()}).Run(p)
		if err == nil || !strings.Contains(err.Error(), "invalid selection") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestTaskSelectorSingleTask(t *testing.T) {
	p, _ := newPrompter("")
	selected, err := (&TaskSelector{Tasks: sampleTasks()[:1]}).Run(p)
	if err != nil || selected.ID != "id-1" {
		t.Errorf("selected = %v, err = %v", selected, err)
	}
}

func TestNoPromptMode(t *testing.T) {
	p := New(strings.NewReader("1\n"), nil, true)

	if _, err := (&TaskSelector{Tasks: sampleTasks()}).Run(p); !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("TaskSelector err = %v", err)
	}
	if _, err := p.Confirm("Continue?", true); !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("Confirm err = %v", err)
	}
	if _, err := p.Password("Password: "); !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("Password err = %v", err)
	}
	if _, err := (&TaskForm{}).Run(p); !errors.Is(err, ErrNoPromptMode) {
		t.Errorf("TaskForm err = %v", err)
	}
}

func TestFormatTaskLine(t *testing.T) {
	tasks := sampleTasks()

	line := FormatTaskLine(tasks[0])
	if line != "Buy groceries [pending, medium, due: 2026-02-15]" {
		t.Errorf("line = %q", line)
	}
	line = FormatTaskLine(tasks[1])
	if !strings.Contains(line, "tags: work") || strings.Contains(line, "due:") {
		t.Errorf("line = %q", line)
	}
}

func TestFilterTasksByAction(t *testing.T) {
	tasks := sampleTasks()

	if got := FilterTasksByAction(tasks, "done", false); len(got) != 4 {
		t.Errorf("done candidates = %d, want 4", len(got))
	}
	undo := FilterTasksByAction(tasks, "undo", false)
	if len(undo) != 1 || undo[0].ID != "id-5" {
		t.Errorf("undo candidates = %v", undo)
	}
	if got := FilterTasksByAction(tasks, "delete", false); len(got) != 5 {
		t.Errorf("delete candidates = %d, want 5", len(got))
	}
	if got := FilterTasksByAction(tasks, "undo", true); len(got) != 5 {
		t.Errorf("showAll candidates = %d, want 5", len(got))
	}
}

// =============================================================================
// Prompter
// =============================================================================

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\ny\n", false, true},
	}
	for _, tt := range tests {
		p, _ := newPrompter(tt.input)
		got, err := p.Confirm("Create anyway?", tt.def)
		if err != nil {
			t.Fatalf("Confirm(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q, %v) = %v, want %v", tt.input, tt.def, got, tt.want)
		}
	}

	p, _ := newPrompter("")
	if _, err := p.Confirm("Create anyway?", false); !errors.Is(err, ErrNoInput) {
		t.Errorf("closed input err = %v", err)
	}
}

func TestSharedReaderKeepsOrder(t *testing.T) {
	p, _ := newPrompter("ada@example.com\nsecret1\ny\n")

	email, _ := p.ReadLine("Email: ")
	password, _ := p.Password("Password: ")
	ok, _ := p.Confirm("Remember?", false)

	if email != "ada@example.com" || password != "secret1" || !ok {
		t.Errorf("got %q %q %v", email, password, ok)
	}
}

func TestReadLineWithoutTrailingNewline(t *testing.T) {
	p, _ := newPrompter("last answer")
	got, err := p.ReadLine("> ")
	if err != nil || got != "last answer" {
		t.Errorf("ReadLine = %q, %v", got, err)
	}
}

// =============================================================================
// TaskForm
// =============================================================================

func TestTaskFormCollectsFields(t *testing.T) {
	input := strings.Join([]string{
		"Plan trip",
		"Book flights",
		"2026-06-01",
		"high",
		"travel, family",
	}, "\n") + "\n"
	p, _ := newPrompter(input)

	draft, err := (&TaskForm{}).Run(p)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := utils.TaskDraft{
		Title:       "Plan trip",
		Description: "Book flights",
		DueDate:     "2026-06-01",
		Priority:    "high",
		Categories:  "travel, family",
	}
	if *draft != want {
		t.Errorf("draft = %+v, want %+v", *draft, want)
	}

	task, err := draft.BuildTask()
	if err != nil {
		t.Fatalf("BuildTask() error: %v", err)
	}
	if len(task.Category) != 2 || task.Priority != backend.PriorityHigh {
		t.Errorf("task = %+v", task)
	}
}

func TestTaskFormRepromptsInvalidAnswers(t *testing.T) {
	input := strings.Join([]string{
		"",           // empty title
		"Plan trip",  // title
		"",           // description
		"",           // missing due date
		"next week",  // bad date
		"2026-06-01", // due date
		"urgent",     // bad priority
		"",           // default priority
		"",           // categories
	}, "\n") + "\n"
	p, out := newPrompter(input)

	draft, err := (&TaskForm{}).Run(p)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if draft.Title != "Plan trip" || draft.DueDate != "2026-06-01" || draft.Priority != "medium" {
		t.Errorf("draft = %+v", *draft)
	}
	for _, want := range []string{"Title cannot be empty", "Due date is required", "Invalid date: next week", "Invalid priority"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestTaskFormKeepsDefaults(t *testing.T) {
	defaults := utils.TaskDraft{
		Title:      "Call mom",
		DueDate:    "2026-03-14",
		Priority:   "low",
		Categories: "family",
	}
	p, out := newPrompter("\nWeekly call\n\n\n\n")

	draft, err := (&TaskForm{Defaults: defaults}).Run(p)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := defaults
	want.Description = "Weekly call"
	if *draft != want {
		t.Errorf("draft = %+v, want %+v", *draft, want)
	}
	if !strings.Contains(out.String(), "Title (required) [Call mom]: ") {
		t.Errorf("defaults should be shown:\n%s", out.String())
	}
}

func TestTaskFormClosedInput(t *testing.T) {
	p, _ := newPrompter("Plan trip\n\n")
	if _, err := (&TaskForm{}).Run(p); !errors.Is(err, ErrNoInput) {
		t.Errorf("err = %v, want ErrNoInput", err)
	}
}
