// Package taskmaster provides a backend implementation for the TaskMaster REST API.
package taskmaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/ratelimit"
	"taskmaster/internal/utils"
)

const (
	// DefaultBaseURL is the hosted TaskMaster API
	DefaultBaseURL = "https://taskmaster-weld.vercel.app"

	// DefaultTimeout bounds every request
	DefaultTimeout = 30 * time.Second

	// BaseURLEnv overrides the configured base URL
	BaseURLEnv = "TASKMASTER_API_URL"
)

// Config holds TaskMaster connection settings
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Stats     *ratelimit.Stats
}

// ConfigFromEnv creates a Config from environment variables
func ConfigFromEnv() Config {
	return Config{
		BaseURL: os.Getenv(BaseURLEnv),
	}
}

// Backend implements backend.Client over HTTP
type Backend struct {
	config  Config
	client  *ratelimit.Client
	baseURL string
}

var _ backend.Client = (*Backend)(nil)

// New creates a new TaskMaster backend
func New(cfg Config) (*Backend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, utils.WrapWithSuggestion(
			fmt.Errorf("invalid base URL %q: %w", baseURL, err),
			"Set api.base_url in the config file or "+BaseURLEnv,
		)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Backend{
		config: cfg,
		client: ratelimit.NewClient(ratelimit.Config{
			Timeout: timeout,
			Stats:   cfg.Stats,
			Backend: "taskmaster",
		}),
		baseURL: baseURL,
	}, nil
}

// BaseURL returns the API root requests are sent to
func (b *Backend) BaseURL() string {
	return b.baseURL
}

// Close closes the backend
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// doRequest performs a JSON request. The token is sent as-is in the
// Authorization header when non-empty.
func (b *Backend) doRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestID := backend.NewRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if b.config.UserAgent != "" {
		req.Header.Set("User-Agent", b.config.UserAgent)
	}

	utils.Debugf("%s %s request_id=%s", method, path, requestID)

	resp, err := b.client.Do(req)
	if err != nil {
		var rlErr *ratelimit.RateLimitError
		if errors.As(err, &rlErr) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, utils.ErrBackendOffline(err.Error())
	}
	return resp, nil
}

// errorPayload is the {error} body the server sends on failure.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// checkResponse turns non-2xx statuses into *backend.APIError. The body is
// consumed on failure.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload errorPayload
	_ = json.Unmarshal(data, &payload)

	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}
	return &backend.APIError{StatusCode: resp.StatusCode, Message: msg}
}

// decode reads a JSON body into v. Malformed bodies count as transport failures.
func decode(resp *http.Response, v interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.ErrBackendOffline(err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var payload errorPayload
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return &backend.APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed response: %v", backend.ErrNetwork, err)
	}
	return nil
}

// =============================================================================
// Task Operations
// =============================================================================

// GetTasks returns every task of the authenticated user
func (b *Backend) GetTasks(ctx context.Context, token string) ([]backend.Task, error) {
	resp, err := b.doRequest(ctx, http.MethodGet, "/tasks", token, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}

	tasks := []backend.Task{}
	if err := decode(resp, &tasks); err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	warnMalformed(tasks)
	return tasks, nil
}

// SearchTasks forwards a free-text query to the search endpoint
func (b *Backend) SearchTasks(ctx context.Context, token, query string) ([]backend.Task, error) {
	path := "/tasks/search?q=" + url.QueryEscape(query)
	resp, err := b.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}

	tasks := []backend.Task{}
	if err := decode(resp, &tasks); err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	warnMalformed(tasks)
	return tasks, nil
}

// warnMalformed logs tasks whose due date the client could not read.
func warnMalformed(tasks []backend.Task) {
	for _, t := range tasks {
		if raw := t.MalformedDueDate(); raw != "" {
			utils.GetLogger().Warn("ignoring unparseable due date", "task", t.ID, "dueDate", raw)
		}
	}
}

// taskEnvelope accepts both a bare task and {task: ...}.
type taskEnvelope struct {
	backend.Task
}

func (e *taskEnvelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Task json.RawMessage `json:"task"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Task) > 0 && string(wrapped.Task) != "null" {
		return json.Unmarshal(wrapped.Task, &e.Task)
	}
	return json.Unmarshal(data, &e.Task)
}

// CreateTask creates a task and returns the server's copy
func (b *Backend) CreateTask(ctx context.Context, token string, task *backend.Task) (*backend.Task, error) {
	resp, err := b.doRequest(ctx, http.MethodPost, "/tasks", token, task)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	var created taskEnvelope
	if err := decode(resp, &created); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &created.Task, nil
}

// UpdateTask replaces the editable fields of a task
func (b *Backend) UpdateTask(ctx context.Context, token string, task *backend.Task) (*backend.Task, error) {
	if task.ID == "" {
		return nil, utils.ErrRequired("id")
	}

	resp, err := b.doRequest(ctx, http.MethodPut, "/tasks/"+url.PathEscape(task.ID), token, task)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	var updated taskEnvelope
	if err := decode(resp, &updated); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if updated.ID == "" {
		updated.Task = *task
	}
	return &updated.Task, nil
}

// SetStatus changes only the status of a task
func (b *Backend) SetStatus(ctx context.Context, token, taskID string, status backend.TaskStatus) error {
	body := map[string]backend.TaskStatus{"status": status}

	resp, err := b.doRequest(ctx, http.MethodPut, "/tasks/"+url.PathEscape(taskID), token, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// DeleteTask deletes a task
func (b *Backend) DeleteTask(ctx context.Context, token, taskID string) error {
	resp, err := b.doRequest(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), token, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete task: %w", utils.ErrTaskNotFound(taskID))
	}
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// =============================================================================
// Auth Operations
// =============================================================================

// authResponse covers both {token, user} and {result, user: {token, ...}}.
type authResponse struct {
	Result        bool                          `json:"result"`
	Token         string                        `json:"token"`
	Error         string                        `json:"error"`
	Notifications *backend.NotificationSettings `json:"notifications"`
	User          struct {
		Token         string                        `json:"token"`
		Name          string                        `json:"name"`
		Email         string                        `json:"email"`
		Notifications *backend.NotificationSettings `json:"notifications"`
	} `json:"user"`
}

func (b *Backend) authenticate(ctx context.Context, path string, body interface{}) (*backend.AuthResult, error) {
	resp, err := b.doRequest(ctx, http.MethodPost, path, "", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var ar authResponse
	if err := decode(resp, &ar); err != nil {
		return nil, err
	}

	token := ar.User.Token
	if token == "" {
		token = ar.Token
	}
	if token == "" {
		return nil, &backend.APIError{StatusCode: resp.StatusCode, Message: "server did not return a token"}
	}

	notifications := ar.User.Notifications
	if notifications == nil {
		notifications = ar.Notifications
	}

	return &backend.AuthResult{
		Token:         token,
		User:          backend.User{Name: ar.User.Name, Email: ar.User.Email},
		Notifications: notifications,
	}, nil
}

// Login exchanges credentials for a session token
func (b *Backend) Login(ctx context.Context, email, password string) (*backend.AuthResult, error) {
	res, err := b.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if res.User.Email == "" {
		res.User.Email = email
	}
	return res, nil
}

// Register creates an account and returns its session token
func (b *Backend) Register(ctx context.Context, name, email, password string) (*backend.AuthResult, error) {
	res, err := b.authenticate(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if res.User.Email == "" {
		res.User.Email = email
	}
	if res.User.Name == "" {
		res.User.Name = name
	}
	return res, nil
}

// ResetPassword asks the server to send a reset email. Returns the
// server's confirmation message, if any.
func (b *Backend) ResetPassword(ctx context.Context, email string) (string, error) {
	resp, err := b.doRequest(ctx, http.MethodPost, "/auth/reset-password", "", map[string]string{"email": email})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}

	var out struct {
		Message string `json:"message"`
	}
	if err := decode(resp, &out); err != nil {
		return "", fmt.Errorf("reset password: %w", err)
	}
	return out.Message, nil
}

// =============================================================================
// Account Operations
// =============================================================================

// UpdateProfile changes the user's name and email
func (b *Backend) UpdateProfile(ctx context.Context, token string, profile backend.ProfileUpdate) (*backend.User, error) {
	resp, err := b.doRequest(ctx, http.MethodPut, "/users", token, profile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	var out struct {
		User *backend.User `json:"user"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if out.User == nil {
		return &backend.User{Name: profile.Name, Email: profile.Email}, nil
	}
	return out.User, nil
}

// UpdatePassword changes the account password
func (b *Backend) UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	body := map[string]string{"oldPassword": oldPassword, "newPassword": newPassword}

	resp, err := b.doRequest(ctx, http.MethodPut, "/users/password", token, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	var out errorPayload
	if err := decode(resp, &out); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// UpdateNotifications stores the notification switches
func (b *Backend) UpdateNotifications(ctx context.Context, token string, settings backend.NotificationSettings) error {
	body := map[string]backend.NotificationSettings{"notifications": settings}

	resp, err := b.doRequest(ctx, http.MethodPost, "/users/notifications", token, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("update notifications: %w", err)
	}
	var out errorPayload
	if err := decode(resp, &out); err != nil {
		return fmt.Errorf("update notifications: %w", err)
	}
	return nil
}
