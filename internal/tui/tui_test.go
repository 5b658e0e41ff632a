package tui_test

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"taskmaster/backend"
	"taskmaster/backend/taskmaster"
	"taskmaster/internal/dashboard"
	"taskmaster/internal/testutil"
	"taskmaster/internal/tui"
	"taskmaster/internal/utils"
)

// Wednesday
var refNow = time.Date(2026, 3, 11, 15, 4, 0, 0, time.UTC)

func clock() time.Time { return refNow }

func day(offset int) *time.Time {
	d := utils.CalendarDay(refNow).AddDate(0, 0, offset)
	return &d
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(30 * time.Millisecond)
}

// sendRunesAndWait sends a rune key message and waits briefly for processing.
func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

func typeText(tm *teatest.TestModel, text string) {
	for _, r := range text {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	time.Sleep(30 * time.Millisecond)
}

// readAll reads all output from a reader and returns as bytes
func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

type clipboardRecorder struct {
	mu     sync.Mutex
	copied []string
}

func (c *clipboardRecorder) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copied = append(c.copied, s)
	return nil
}

func (c *clipboardRecorder) values() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.copied...)
}

type fixture struct {
	server *testutil.FakeServer
	token  string
	ctrl   *dashboard.Controller
	clip   *clipboardRecorder
	tm     *teatest.TestModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := testutil.NewFakeServer(t)
	token := server.AddUser("Ada", "ada@example.com", "pw")
	server.AddTask(token, backend.Task{Title: "Buy milk", DueDate: day(0), Priority: backend.PriorityLow, Status: backend.StatusPending, Category: []string{"home"}})
	server.AddTask(token, backend.Task{Title: "File taxes", DueDate: day(-2), Priority: backend.PriorityHigh, Status: backend.StatusPending, Description: "Use the **blue** form"})
	server.AddTask(token, backend.Task{Title: "Call mom", DueDate: day(3), Priority: backend.PriorityMedium, Status: backend.StatusCompleted})

	api, err := taskmaster.New(taskmaster.Config{BaseURL: server.URL(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("taskmaster.New() error: %v", err)
	}
	t.Cleanup(func() { _ = api.Close() })

	ctrl := dashboard.New(api, staticToken(token), dashboard.WithClock(clock))
	t.Cleanup(ctrl.Close)

	clip := &clipboardRecorder{}
	model := tui.New(ctrl,
		tui.WithClock(clock),
		tui.WithClipboard(clip.write),
		tui.WithMarkdownStyle("notty"),
	)
	tm := teatest.NewTestModel(t, model, teatest.WithInitialTermSize(100, 30))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Call mom"))
	}, teatest.WithDuration(3*time.Second))

	return &fixture{server: server, token: token, ctrl: ctrl, clip: clip, tm: tm}
}

func (f *fixture) quit(t *testing.T) *tui.Model {
	t.Helper()
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyCtrlC})
	return f.tm.FinalModel(t, teatest.WithFinalTimeout(2*time.Second)).(*tui.Model)
}

func (f *fixture) serverTitles() []string {
	var out []string
	for _, t := range f.server.Tasks(f.token) {
		out = append(out, t.Title)
	}
	return out
}

func (f *fixture) serverTask(title string) (backend.Task, bool) {
	for _, t := range f.server.Tasks(f.token) {
		if t.Title == title {
			return t, true
		}
	}
	return backend.Task{}, false
}

func waitForServer(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// =============================================================================
// Launch and navigation
// =============================================================================

func TestTUILaunchShowsTasksAndStats(t *testing.T) {
	f := newFixture(t)
	sendRunesAndWait(f.tm, []rune{'q'})

	out := readAll(t, f.tm.FinalOutput(t, teatest.WithFinalTimeout(2*time.Second)))
	if len(out) == 0 {
		t.Error("expected TUI to render some output")
	}
	m := f.tm.FinalModel(t).(*tui.Model)
	if m.Mode() != tui.ModeNormal {
		t.Errorf("mode = %v, want normal", m.Mode())
	}
	selected, ok := m.Selected()
	if !ok || selected.Title != "Buy milk" {
		t.Errorf("selected = %q, want first task", selected.Title)
	}

	view := m.View()
	for _, want := range []string{"3 tasks", "completed 1 (33%)", "overdue 1", "Wed 0/1", "Buy milk", "today", "home"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTUITaskNavigation(t *testing.T) {
	f := newFixture(t)
	sendRunesAndWait(f.tm, []rune{'j'})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyDown})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyDown}) // stays on last
	sendRunesAndWait(f.tm, []rune{'k'})

	m := f.quit(t)
	selected, _ := m.Selected()
	if selected.Title != "File taxes" {
		t.Errorf("selected = %q, want File taxes", selected.Title)
	}
}

// =============================================================================
// Task CRUD
// =============================================================================

func TestTUIAddTask(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'a'})
	typeText(f.tm, "Plan trip")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	typeText(f.tm, "2026-04-01")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	typeText(f.tm, "travel")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})

	waitForServer(t, func() bool { _, ok := f.serverTask("Plan trip"); return ok })
	time.Sleep(50 * time.Millisecond)

	m := f.quit(t)
	task, _ := f.serverTask("Plan trip")
	if task.Priority != backend.PriorityMedium || len(task.Category) != 1 || task.Category[0] != "travel" {
		t.Errorf("created task = %+v", task)
	}
	if m.Mode() != tui.ModeNormal {
		t.Errorf("mode = %v, want normal after save", m.Mode())
	}
	if !strings.Contains(m.Message(), `Created "Plan trip"`) {
		t.Errorf("message = %q", m.Message())
	}
	selected, _ := m.Selected()
	if selected.Title != "Plan trip" {
		t.Errorf("cursor should move to the new task, got %q", selected.Title)
	}
}

func TestTUIAddTaskValidation(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'a'})
	typeText(f.tm, "No due date")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})

	m := f.quit(t)
	if m.Mode() != tui.ModeAdd {
		t.Errorf("mode = %v, want add (form stays open)", m.Mode())
	}
	if !strings.Contains(m.View(), "dueDate") {
		t.Errorf("form should show the validation error:\n%s", m.View())
	}
	if f.server.CountRequests("POST /tasks") != 0 {
		t.Error("invalid form should not be submitted")
	}
}

func TestTUIDuplicateTitleConfirm(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'a'})
	typeText(f.tm, "buy  MILK")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	typeText(f.tm, "tomorrow")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(100 * time.Millisecond)

	if n := f.server.CountRequests("POST /tasks"); n != 0 {
		t.Fatalf("duplicate should wait for confirmation, got %d POSTs", n)
	}

	sendRunesAndWait(f.tm, []rune{'y'})
	waitForServer(t, func() bool { return len(f.server.Tasks(f.token)) == 4 })
	time.Sleep(50 * time.Millisecond)

	m := f.quit(t)
	if m.Mode() != tui.ModeNormal {
		t.Errorf("mode = %v, want normal", m.Mode())
	}
}

func TestTUIDuplicateTitleDeclineReturnsToForm(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'a'})
	typeText(f.tm, "Call Mom")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyTab})
	typeText(f.tm, "+1d")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(f.tm, []rune{'n'})

	m := f.quit(t)
	if m.Mode() != tui.ModeAdd {
		t.Errorf("mode = %v, want add", m.Mode())
	}
	if len(f.server.Tasks(f.token)) != 3 {
		t.Error("declined duplicate must not be created")
	}
}

func TestTUIEditTask(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'e'})
	for i := 0; i < len("Buy milk"); i++ {
		f.tm.Send(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	typeText(f.tm, "Buy oat milk")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})

	waitForServer(t, func() bool { _, ok := f.serverTask("Buy oat milk"); return ok })
	time.Sleep(50 * time.Millisecond)

	m := f.quit(t)
	task, _ := f.serverTask("Buy oat milk")
	if task.Priority != backend.PriorityLow || task.Status != backend.StatusPending {
		t.Errorf("edit should keep other fields, got %+v", task)
	}
	if !strings.Contains(m.Message(), "Updated") {
		t.Errorf("message = %q", m.Message())
	}
}

func TestTUIToggleCompletion(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{' '})
	waitForServer(t, func() bool {
		task, _ := f.serverTask("Buy milk")
		return task.Status == backend.StatusCompleted
	})
	f.quit(t)
}

func TestTUIDeleteTask(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'j'})
	sendRunesAndWait(f.tm, []rune{'d'})
	sendRunesAndWait(f.tm, []rune{'y'})

	waitForServer(t, func() bool { return len(f.server.Tasks(f.token)) == 2 })
	time.Sleep(50 * time.Millisecond)

	m := f.quit(t)
	for _, title := range f.serverTitles() {
		if title == "File taxes" {
			t.Error("File taxes should be deleted")
		}
	}
	if !strings.Contains(m.Message(), `Deleted "File taxes"`) {
		t.Errorf("message = %q", m.Message())
	}
}

func TestTUIDeleteCancel(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'d'})
	sendRunesAndWait(f.tm, []rune{'n'})

	m := f.quit(t)
	if m.Mode() != tui.ModeNormal {
		t.Errorf("mode = %v", m.Mode())
	}
	for _, r := range f.server.RequestLog() {
		if strings.HasPrefix(r, "DELETE ") {
			t.Errorf("cancelled delete reached the server: %s", r)
		}
	}
	if len(f.server.Tasks(f.token)) != 3 {
		t.Error("cancelled delete should not reach the server")
	}
}

// =============================================================================
// Filter and search
// =============================================================================

func TestTUIFilterPanel(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'f'})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyRight}) // status: pending
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyDown})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyLeft}) // priority: high
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})

	m := f.quit(t)
	spec := f.ctrl.Filter()
	if spec.Status != "pending" || spec.Priority != "high" {
		t.Errorf("filter = %s", spec)
	}
	visible := f.ctrl.Visible()
	if len(visible) != 1 || visible[0].Title != "File taxes" {
		t.Errorf("visible = %v", visible)
	}
	if selected, _ := m.Selected(); selected.Title != "File taxes" {
		t.Errorf("selected = %q", selected.Title)
	}
}

func TestTUIFilterCustomRangeNeedsDate(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'f'})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyDown})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyDown})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyLeft}) // range: custom
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})

	m := f.quit(t)
	if m.Mode() != tui.ModeFilter {
		t.Errorf("mode = %v, want filter (error shown)", m.Mode())
	}
	if !strings.Contains(m.View(), "custom range needs a selected date") {
		t.Errorf("view missing validation error:\n%s", m.View())
	}
	if !f.ctrl.Filter().IsDefault() {
		t.Error("invalid filter must not be applied")
	}
}

func TestTUISearch(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'/'})
	typeText(f.tm, "blue")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})
	waitForServer(t, func() bool { _, ok := f.ctrl.SearchQuery(); return ok })
	time.Sleep(50 * time.Millisecond)

	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEsc})
	time.Sleep(50 * time.Millisecond)

	f.quit(t)
	if queries := f.server.SearchQueries(); len(queries) == 0 || queries[0] != "blue" {
		t.Errorf("search queries = %v", queries)
	}
	if _, active := f.ctrl.SearchQuery(); active {
		t.Error("esc should leave search mode")
	}
	if len(f.ctrl.Visible()) != 3 {
		t.Errorf("visible after leaving search = %d, want 3", len(f.ctrl.Visible()))
	}
}

func TestTUISearchShowsResults(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'/'})
	typeText(f.tm, "blue")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})
	waitForServer(t, func() bool { _, ok := f.ctrl.SearchQuery(); return ok })
	time.Sleep(50 * time.Millisecond)

	m := f.quit(t)
	if !strings.Contains(m.Message(), `1 result(s) for "blue"`) {
		t.Errorf("message = %q", m.Message())
	}
	view := m.View()
	if !strings.Contains(view, "Search: blue") || strings.Contains(view, "Buy milk") {
		t.Errorf("view should show only results:\n%s", view)
	}
}

func TestTUISupersededSearchIsQuiet(t *testing.T) {
	f := newFixture(t)
	f.server.SetSearchDelay(500 * time.Millisecond)

	sendRunesAndWait(f.tm, []rune{'/'})
	typeText(f.tm, "blue")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})
	waitForServer(t, func() bool { return len(f.server.SearchQueries()) == 1 })

	sendRunesAndWait(f.tm, []rune{'/'})
	typeText(f.tm, "milk")
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})
	waitForServer(t, func() bool { return len(f.server.SearchQueries()) == 2 })
	time.Sleep(80 * time.Millisecond)

	m := f.quit(t)
	if strings.Contains(m.Message(), "unavailable") {
		t.Errorf("cancelled search should not report a failure, message = %q", m.Message())
	}
}

// =============================================================================
// Detail, clipboard, help, errors
// =============================================================================

func TestTUIDetailRendersMarkdown(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'j'})
	sendKeyAndWait(f.tm, tea.KeyMsg{Type: tea.KeyEnter})

	m := f.quit(t)
	if m.Mode() != tui.ModeDetail {
		t.Fatalf("mode = %v, want detail", m.Mode())
	}
	view := m.View()
	for _, want := range []string{"File taxes", "high", "blue"} {
		if !strings.Contains(view, want) {
			t.Errorf("detail missing %q:\n%s", want, view)
		}
	}
}

func TestTUIYankCopiesTitle(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'y'})
	time.Sleep(50 * time.Millisecond)

	m := f.quit(t)
	if got := f.clip.values(); len(got) != 1 || got[0] != "Buy milk" {
		t.Errorf("clipboard = %v", got)
	}
	if !strings.Contains(m.Message(), "Copied") {
		t.Errorf("message = %q", m.Message())
	}
}

func TestTUIHelp(t *testing.T) {
	f := newFixture(t)

	sendRunesAndWait(f.tm, []rune{'?'})
	m := f.quit(t)
	if m.Mode() != tui.ModeHelp || !strings.Contains(m.View(), "Key Bindings") {
		t.Errorf("mode = %v", m.Mode())
	}
}

func TestTUIWriteFailureShowsError(t *testing.T) {
	f := newFixture(t)
	first, _ := f.serverTask("Buy milk")
	f.server.FailNext("DELETE /tasks/"+first.ID, 500, "database unavailable")

	sendRunesAndWait(f.tm, []rune{'d'})
	sendRunesAndWait(f.tm, []rune{'y'})
	time.Sleep(100 * time.Millisecond)

	m := f.quit(t)
	if !strings.Contains(m.Message(), "database unavailable") {
		t.Errorf("message = %q", m.Message())
	}
	if len(f.server.Tasks(f.token)) != 3 {
		t.Error("failed delete should leave tasks in place")
	}
}
