package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateFormat is the calendar date layout used on the wire and in the CLI.
const DateFormat = "2006-01-02"

// Task represents a todo item owned by the backend.
type Task struct {
	ID          string
	Title       string
	Description string
	DueDate     *time.Time // calendar date, time-of-day is ignored
	Priority    Priority
	Category    []string
	Status      TaskStatus

	rawDueDate string // set when the wire due date could not be parsed
}

// MalformedDueDate returns the wire due date that failed to parse, if any.
// Such tasks carry no DueDate and drop out of every dated view.
func (t Task) MalformedDueDate() string {
	return t.rawDueDate
}

// TaskStatus represents the completion state of a task
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParseStatus parses a status name. Accepts the wire names plus the
// common aliases todo/done.
func ParseStatus(s string) (TaskStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo", "open":
		return StatusPending, true
	case "completed", "done", "complete":
		return StatusCompleted, true
	}
	return "", false
}

// ParsePriority parses a priority name (case-insensitive).
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, true
	case "medium", "med":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	}
	return "", false
}

// Toggle returns the opposite completion state.
func (s TaskStatus) Toggle() TaskStatus {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

// User is the account attached to a session.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NotificationSettings holds the per-user notification switches.
type NotificationSettings struct {
	EmailNotifications bool `json:"emailNotifications"`
	TaskReminders      bool `json:"taskReminders"`
	DueDateAlerts      bool `json:"dueDateAlerts"`
}

// DefaultNotificationSettings returns the settings a fresh session starts with.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		EmailNotifications: true,
		TaskReminders:      true,
		DueDateAlerts:      true,
	}
}

// AuthResult is returned by login and register.
type AuthResult struct {
	Token         string
	User          User
	Notifications *NotificationSettings
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TaskManager defines the task endpoints of the backend.
type TaskManager interface {
	GetTasks(ctx context.Context, token string) ([]Task, error)
	CreateTask(ctx context.Context, token string, task *Task) (*Task, error)
	UpdateTask(ctx context.Context, token string, task *Task) (*Task, error)
	SetStatus(ctx context.Context, token, taskID string, status TaskStatus) error
	DeleteTask(ctx context.Context, token, taskID string) error
}

// Searcher forwards free-text queries to the backend search endpoint.
type Searcher interface {
	SearchTasks(ctx context.Context, token, query string) ([]Task, error)
}

// Authenticator defines the auth endpoints.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, name, email, password string) (*AuthResult, error)
	ResetPassword(ctx context.Context, email string) (string, error)
}

// AccountManager defines the user profile endpoints.
type AccountManager interface {
	UpdateProfile(ctx context.Context, token string, profile ProfileUpdate) (*User, error)
	UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) error
	UpdateNotifications(ctx context.Context, token string, settings NotificationSettings) error
}

// Client is the complete backend surface.
type Client interface {
	TaskManager
	Searcher
	Authenticator
	AccountManager
	Close() error
}

// ErrNetwork marks transport failures (DNS, refused connection, timeout,
// unreadable response).
var ErrNetwork = errors.New("unable to reach the server")

// ErrUnauthorized is matched by APIError values carrying a 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is an error reported by the backend, usually as an {error} payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return e.Message
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

// wireTask is the JSON shape used by the backend.
type wireTask struct {
	ID          string     `json:"_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     string     `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Category    []string   `json:"category"`
	Status      TaskStatus `json:"status,omitempty"`
}

// MarshalJSON encodes the task in the backend wire format.
func (t Task) MarshalJSON() ([]byte, error) {
	w := wireTask{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Category:    t.Category,
		Status:      t.Status,
	}
	if w.Category == nil {
		w.Category = []string{}
	}
	if t.DueDate != nil {
		w.DueDate = t.DueDate.Format(DateFormat)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a task from the backend wire format. Due dates may
// be plain dates or RFC 3339 timestamps; the calendar date as written is kept.
// A due date that parses as neither leaves DueDate nil (see MalformedDueDate),
// and a category sent as a single string becomes a one-element list.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          string          `json:"_id"`
		AltID       string          `json:"id"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		DueDate     string          `json:"dueDate"`
		Priority    Priority        `json:"priority"`
		Category    json.RawMessage `json:"category"`
		Status      TaskStatus      `json:"status"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	categories, err := decodeCategories(w.Category)
	if err != nil {
		return err
	}
	*t = Task{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Priority:    w.Priority,
		Category:    categories,
		Status:      w.Status,
	}
	if t.ID == "" {
		t.ID = w.AltID
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if w.DueDate != "" {
		if due, err := ParseDueDate(w.DueDate); err == nil {
			t.DueDate = &due
		} else {
			t.rawDueDate = w.DueDate
		}
	}
	return nil
}

// decodeCategories accepts a list of strings, a single string or null.
func decodeCategories(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("invalid category %s: %w", raw, err)
	}
	if strings.TrimSpace(single) == "" {
		return nil, nil
	}
	return []string{single}, nil
}

// ParseDueDate parses a wire due date into a calendar date at UTC midnight.
func ParseDueDate(s string) (time.Time, error) {
	if d, err := time.Parse(DateFormat, s); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: %w", s, err)
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// FindTaskByID returns the task with the given ID, or nil.
func FindTaskByID(tasks []Task, id string) *Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

// NewRequestID generates a unique identifier for an outgoing request.
func NewRequestID() string {
	return uuid.New().String()
}
