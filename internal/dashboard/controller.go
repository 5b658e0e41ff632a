// Package dashboard owns the client-side task state: the cached task list,
// the active filter or search, and the fetch lifecycle. Writes always go to
// the backend first and are followed by a full refetch.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/cache"
	"taskmaster/internal/search"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// State is the fetch lifecycle of the task list.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Backend is the API surface the controller needs.
type Backend interface {
	backend.TaskManager
	backend.Searcher
}

// TokenSource supplies the auth token for each request.
type TokenSource interface {
	Token() string
}

// Tracker records the outcome of an operation. *analytics.Tracker
// satisfies it.
type Tracker interface {
	Track(operation string, fn func() error) error
}

type untracked struct{}

func (untracked) Track(_ string, fn func() error) error { return fn() }

// DuplicateTitleError is returned by CreateTask and UpdateTask when the
// title matches existing tasks and the caller has not confirmed.
type DuplicateTitleError struct {
	Title      string
	Duplicates []backend.Task
}

func (e *DuplicateTitleError) Error() string {
	if len(e.Duplicates) == 1 {
		return fmt.Sprintf("a task titled %q already exists", e.Duplicates[0].Title)
	}
	return fmt.Sprintf("%d tasks titled %q already exist", len(e.Duplicates), e.Title)
}

// DuplicateWarning marks the error as a confirmable warning.
func (e *DuplicateTitleError) DuplicateWarning() bool { return true }

// TaskInput is a task submitted from a form. Confirmed skips the
// duplicate-title check.
type TaskInput struct {
	Task      backend.Task
	Confirmed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithTracker records every operation with t.
func WithTracker(t Tracker) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithClock overrides time.Now for date filters and statistics.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithContext sets the parent of every request context. Cancelling it has
// the same effect as Close.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) {
		c.parent = ctx
	}
}

// Controller is safe for concurrent use; the TUI applies results from
// command goroutines.
type Controller struct {
	api     Backend
	session TokenSource
	search  *search.Adapter
	tracker Tracker
	now     func() time.Time
	parent  context.Context

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cache    *cache.TaskCache
	filter   views.FilterSpec
	state    State
	err      error
	fetchSeq uint64

	searchQuery   string
	searchResults []backend.Task
	searchActive  bool
	searchSeq     uint64
	searchCancel  context.CancelFunc
}

// New creates a controller in the Idle state. Call Refresh to load tasks.
func New(api Backend, session TokenSource, opts ...Option) *Controller {
	c := &Controller{
		api:     api,
		session: session,
		search:  search.New(api),
		tracker: untracked{},
		now:     time.Now,
		parent:  context.Background(),
		cache:   cache.New(),
		filter:  views.DefaultFilter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(c.parent)
	return c
}

// Close cancels every in-flight request.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
}

func (c *Controller) today() time.Time {
	return utils.CalendarDay(c.now())
}

// Refresh fetches the full task list. A fetch superseded by a newer one
// does not touch the state.
func (c *Controller) Refresh() error {
	return c.tracker.Track("refresh", c.refresh)
}

func (c *Controller) refresh() error {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	c.state = StateLoading
	c.mu.Unlock()

	tasks, err := c.api.GetTasks(c.ctx, c.session.Token())

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.fetchSeq {
		return err
	}
	if err != nil {
		c.state = StateErrored
		c.err = err
		utils.GetLogger().Warn("fetch tasks failed", "kind", utils.Classify(err), "err", err)
		return err
	}
	c.cache.Replace(tasks, c.now())
	c.state = StateLoaded
	c.err = nil
	utils.GetLogger().Debug("tasks loaded", "count", len(tasks))
	return nil
}

// afterWrite refetches once a write succeeded. A failed refetch is
// reflected in State and Err, not in the write's result.
func (c *Controller) afterWrite() {
	_ = c.refresh()
}

func (c *Controller) writeFailed(op string, err error) error {
	utils.GetLogger().Warn(op+" failed", "kind", utils.Classify(err), "err", err)
	return err
}

func (c *Controller) checkDuplicates(task backend.Task, confirmed bool) error {
	if confirmed {
		return nil
	}
	var dup views.DuplicateResult
	if task.ID == "" {
		dup = views.DetectDuplicates(task.Title, c.cache.Tasks())
	} else {
		dup = views.DetectDuplicatesExcept(task.Title, task.ID, c.cache.Tasks())
	}
	if dup.HasDuplicate {
		return &DuplicateTitleError{Title: task.Title, Duplicates: dup.Duplicates}
	}
	return nil
}

func prepare(in TaskInput) backend.Task {
	task := in.Task
	task.Title = strings.TrimSpace(task.Title)
	if task.Priority == "" {
		task.Priority = backend.PriorityMedium
	}
	if task.Status == "" {
		task.Status = backend.StatusPending
	}
	if task.Category == nil {
		task.Category = []string{}
	}
	return task
}

// CreateTask validates and submits a new task, then refetches. Without
// Confirmed, a duplicate title returns *DuplicateTitleError and nothing is
// sent.
func (c *Controller) CreateTask(in TaskInput) (*backend.Task, error) {
	var created *backend.Task
	err := c.tracker.Track("create_task", func() error {
		task := prepare(in)
		task.ID = ""
		if err := utils.ValidateTaskPayload(&task); err != nil {
			return err
		}
		if err := c.checkDuplicates(task, in.Confirmed); err != nil {
			return err
		}

		var err error
		created, err = c.api.CreateTask(c.ctx, c.session.Token(), &task)
		if err != nil {
			return c.writeFailed("create task", err)
		}
		utils.GetLogger().Info("task created", "id", created.ID, "title", created.Title)
		c.afterWrite()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateTask replaces an existing task, then refetches. The duplicate check
// ignores the task itself.
func (c *Controller) UpdateTask(in TaskInput) (*backend.Task, error) {
	var updated *backend.Task
	err := c.tracker.Track("update_task", func() error {
		task := prepare(in)
		if task.ID == "" {
			return utils.ErrRequired("id")
		}
		if err := utils.ValidateTaskPayload(&task); err != nil {
			return err
		}
		if err := c.checkDuplicates(task, in.Confirmed); err != nil {
			return err
		}

		var err error
		updated, err = c.api.UpdateTask(c.ctx, c.session.Token(), &task)
		if err != nil {
			return c.writeFailed("update task", err)
		}
		utils.GetLogger().Info("task updated", "id", task.ID)
		c.afterWrite()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask deletes a task, then refetches.
func (c *Controller) DeleteTask(id string) error {
	return c.tracker.Track("delete_task", func() error {
		if err := c.api.DeleteTask(c.ctx, c.session.Token(), id); err != nil {
			return c.writeFailed("delete task", err)
		}
		utils.GetLogger().Info("task deleted", "id", id)
		c.afterWrite()
		return nil
	})
}

// SetStatus changes a task's status, then refetches.
func (c *Controller) SetStatus(id string, status backend.TaskStatus) error {
	return c.tracker.Track("set_status", func() error {
		if _, ok := backend.ParseStatus(string(status)); !ok {
			return utils.ErrInvalidStatus(string(status), []string{"pending", "completed"})
		}
		if err := c.api.SetStatus(c.ctx, c.session.Token(), id, status); err != nil {
			return c.writeFailed("set status", err)
		}
		utils.GetLogger().Info("task status changed", "id", id, "status", status)
		c.afterWrite()
		return nil
	})
}

// ToggleStatus flips a cached task between pending and completed.
func (c *Controller) ToggleStatus(id string) error {
	task, ok := c.cache.Find(id)
	if !ok {
		return utils.ErrTaskNotFound(id)
	}
	return c.SetStatus(id, task.Status.Toggle())
}

// ApplyFilter validates and installs a filter. It ends any active search.
func (c *Controller) ApplyFilter(spec views.FilterSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = spec
	c.exitSearchLocked()
	return nil
}

// ResetDateFilter clears the date part of the filter.
func (c *Controller) ResetDateFilter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.DateRange = views.RangeAll
	c.filter.SelectedDate = nil
}

func (c *Controller) exitSearchLocked() {
	c.searchSeq++
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	c.searchQuery = ""
	c.searchResults = nil
	c.searchActive = false
}

// Search runs a remote search and reports whether search mode is active.
// An empty query or a failed request leaves search mode. A newer Search
// or ApplyFilter cancels this one and its results are dropped.
func (c *Controller) Search(query string) bool {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	c.exitSearchLocked()
	if query == "" {
		c.mu.Unlock()
		return false
	}
	seq := c.searchSeq
	ctx, cancel := context.WithCancel(c.ctx)
	c.searchCancel = cancel
	c.mu.Unlock()

	var results []backend.Task
	var active bool
	_ = c.tracker.Track("search", func() error {
		results, active = c.search.Search(ctx, query, c.session.Token())
		if !active {
			return ctx.Err()
		}
		return nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if seq != c.searchSeq {
		return false
	}
	c.searchCancel = nil
	if !active {
		return false
	}
	c.searchQuery = query
	c.searchResults = results
	c.searchActive = true
	return true
}

// SearchQuery returns the active search query.
func (c *Controller) SearchQuery() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchQuery, c.searchActive
}

// Visible returns the search results when a search is active, otherwise
// the cached tasks passing the filter.
func (c *Controller) Visible() []backend.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchActive {
		return append([]backend.Task{}, c.searchResults...)
	}
	return views.FilterTasks(c.cache.Tasks(), c.filter, c.today())
}

// Tasks returns the full cached task list.
func (c *Controller) Tasks() []backend.Task {
	return c.cache.Tasks()
}

// Find looks up a cached task by ID.
func (c *Controller) Find(id string) (backend.Task, bool) {
	return c.cache.Find(id)
}

// Stats summarizes the full cached task list.
func (c *Controller) Stats() views.Stats {
	return views.ComputeStats(c.cache.Tasks(), c.today())
}

// WeeklyProgress returns this week's per-day counts.
func (c *Controller) WeeklyProgress() []views.DayProgress {
	return views.WeeklyProgress(c.cache.Tasks(), c.today())
}

// Filter returns the current filter.
func (c *Controller) Filter() views.FilterSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// State returns the fetch state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed fetch.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// LastFetch returns when the cache was last filled.
func (c *Controller) LastFetch() time.Time {
	return c.cache.FetchedAt()
}
