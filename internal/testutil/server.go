// Package testutil provides shared test utilities: an in-memory fake of the
// TaskMaster REST API and output assertions.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"taskmaster/backend"
)

// =============================================================================
// TaskMaster REST API Fake Server
// =============================================================================

// FakeServer simulates the TaskMaster REST API. Tasks are kept per user in
// creation order.
type FakeServer struct {
	server *httptest.Server

	mu            sync.Mutex
	users         map[string]*fakeUser // by email
	tokens        map[string]string    // token -> email
	tasks         map[string][]backend.Task
	nextID        int
	requestLog    []string
	headers       []http.Header
	rateLimited   bool
	failures      map[string]fakeFailure
	searchDelay   time.Duration
	searchQueries []string
	resetRequests []string
}

type fakeUser struct {
	Name          string
	Email         string
	Password      string
	Token         string
	Notifications backend.NotificationSettings
}

type fakeFailure struct {
	status  int
	message string
}

// NewFakeServer starts a fake server. It is closed by t.Cleanup.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()
	f := &FakeServer{
		users:    make(map[string]*fakeUser),
		tokens:   make(map[string]string),
		tasks:    make(map[string][]backend.Task),
		failures: make(map[string]fakeFailure),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the server's base URL.
func (f *FakeServer) URL() string {
	return f.server.URL
}

// Close stops the server early, making every request fail at the transport level.
func (f *FakeServer) Close() {
	f.server.Close()
}

// AddUser registers an account and returns its token.
func (f *FakeServer) AddUser(name, email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(name, email, password)
}

func (f *FakeServer) addUserLocked(name, email, password string) string {
	token := fmt.Sprintf("token-%s-%d", strings.ReplaceAll(email, "@", "-at-"), len(f.users)+1)
	f.users[email] = &fakeUser{
		Name:          name,
		Email:         email,
		Password:      password,
		Token:         token,
		Notifications: backend.DefaultNotificationSettings(),
	}
	f.tokens[token] = email
	return token
}

// AddTask stores a task for the token's user and returns it with its ID set.
func (f *FakeServer) AddTask(token string, task backend.Task) backend.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := f.tokens[token]
	if task.ID == "" {
		task.ID = f.newIDLocked()
	}
	if task.Status == "" {
		task.Status = backend.StatusPending
	}
	f.tasks[email] = append(f.tasks[email], task)
	return task
}

// Tasks returns a copy of the token's tasks.
func (f *FakeServer) Tasks(token string) []backend.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Task{}, f.tasks[f.tokens[token]]...)
}

// User returns a copy of the stored account.
func (f *FakeServer) User(email string) (name, password string, notifications backend.NotificationSettings, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return "", "", backend.NotificationSettings{}, false
	}
	return u.Name, u.Password, u.Notifications, true
}

// SetRateLimited makes every request answer 429.
func (f *FakeServer) SetRateLimited(limited bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimited = limited
}

// FailNext makes the next request matching "METHOD /path" answer with
// status and an {error} body.
func (f *FakeServer) FailNext(route string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = fakeFailure{status: status, message: message}
}

// SetSearchDelay delays search responses, for cancellation tests.
func (f *FakeServer) SetSearchDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchDelay = d
}

// RequestLog returns "METHOD /path" entries for every request received.
func (f *FakeServer) RequestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.requestLog...)
}

// CountRequests counts log entries equal to route.
func (f *FakeServer) CountRequests(route string) int {
	n := 0
	for _, r := range f.RequestLog() {
		if r == route {
			n++
		}
	}
	return n
}

// LastHeaders returns the headers of the most recent request.
func (f *FakeServer) LastHeaders() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return nil
	}
	return f.headers[len(f.headers)-1].Clone()
}

// SearchQueries returns the decoded q parameters received by the search endpoint.
func (f *FakeServer) SearchQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.searchQueries...)
}

// ResetRequests returns the emails passed to the reset-password endpoint.
func (f *FakeServer) ResetRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.resetRequests...)
}

func (f *FakeServer) newIDLocked() string {
	f.nextID++
	return fmt.Sprintf("%024x", f.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"result": false, "error": message})
}

func (f *FakeServer) handler(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.requestLog = append(f.requestLog, route)
	f.headers = append(f.headers, r.Header.Clone())

	if f.rateLimited {
		f.mu.Unlock()
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	if failure, ok := f.failures[route]; ok {
		delete(f.failures, route)
		f.mu.Unlock()
		writeError(w, failure.status, failure.message)
		return
	}
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		f.handleLogin(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/register":
		f.handleRegister(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/reset-password":
		f.handleResetPassword(w, r)
	case r.URL.Path == "/tasks/search" && r.Method == http.MethodGet:
		f.withUser(w, r, f.handleSearch)
	case r.URL.Path == "/tasks":
		f.withUser(w, r, f.handleTasks)
	case strings.HasPrefix(r.URL.Path, "/tasks/"):
		f.withUser(w, r, f.handleTask)
	case r.Method == http.MethodPut && r.URL.Path == "/users":
		f.withUser(w, r, f.handleProfile)
	case r.Method == http.MethodPut && r.URL.Path == "/users/password":
		f.withUser(w, r, f.handlePassword)
	case r.Method == http.MethodPost && r.URL.Path == "/users/notifications":
		f.withUser(w, r, f.handleNotifications)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (f *FakeServer) withUser(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request, string)) {
	token := r.Header.Get("Authorization")
	f.mu.Lock()
	email, ok := f.tokens[token]
	f.mu.Unlock()
	if token == "" || !ok {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	next(w, r, email)
}

func (f *FakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusOK, "Missing or empty fields")
		return
	}

	f.mu.Lock()
	u, ok := f.users[body.Email]
	f.mu.Unlock()
	if !ok || u.Password != body.Password {
		writeError(w, http.StatusOK, "User not found or wrong password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": true,
		"user": map[string]interface{}{
			"token":         u.Token,
			"name":          u.Name,
			"email":         u.Email,
			"notifications": u.Notifications,
		},
	})
}

func (f *FakeServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusOK, "Missing or empty fields")
		return
	}

	f.mu.Lock()
	if _, exists := f.users[body.Email]; exists {
		f.mu.Unlock()
		writeError(w, http.StatusOK, "User already exists")
		return
	}
	token := f.addUserLocked(body.Name, body.Email, body.Password)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": true,
		"user":   map[string]string{"token": token, "name": body.Name, "email": body.Email},
	})
}

func (f *FakeServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	f.mu.Lock()
	f.resetRequests = append(f.resetRequests, body.Email)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": true, "message": "Reset link sent"})
}

func (f *FakeServer) handleSearch(w http.ResponseWriter, r *http.Request, email string) {
	q := r.URL.Query().Get("q")

	f.mu.Lock()
	f.searchQueries = append(f.searchQueries, q)
	delay := f.searchDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	needle := strings.ToLower(q)
	f.mu.Lock()
	results := []backend.Task{}
	for _, t := range f.tasks[email] {
		if strings.Contains(strings.ToLower(t.Title), needle) || strings.Contains(strings.ToLower(t.Description), needle) {
			results = append(results, t)
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, results)
}

func (f *FakeServer) handleTasks(w http.ResponseWriter, r *http.Request, email string) {
	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		tasks := append([]backend.Task{}, f.tasks[email]...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, tasks)
	case http.MethodPost:
		var task backend.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid task")
			return
		}
		if strings.TrimSpace(task.Title) == "" {
			writeError(w, http.StatusBadRequest, "Title is required")
			return
		}
		f.mu.Lock()
		task.ID = f.newIDLocked()
		if task.Status == "" {
			task.Status = backend.StatusPending
		}
		f.tasks[email] = append(f.tasks[email], task)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, task)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (f *FakeServer) handleTask(w http.ResponseWriter, r *http.Request, email string) {
	id := strings.TrimPrefix(r.URL.Path, "/tasks/")

	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := f.tasks[email]
	idx := -1
	for i := range tasks {
		if tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var patch map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid task")
			return
		}
		if _, onlyStatus := patch["status"]; onlyStatus && len(patch) == 1 {
			var status backend.TaskStatus
			_ = json.Unmarshal(patch["status"], &status)
			tasks[idx].Status = status
		} else {
			raw, _ := json.Marshal(patch)
			var updated backend.Task
			if err := json.Unmarshal(raw, &updated); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid task")
				return
			}
			updated.ID = id
			tasks[idx] = updated
		}
		writeJSON(w, http.StatusOK, tasks[idx])
	case http.MethodDelete:
		f.tasks[email] = append(tasks[:idx:idx], tasks[idx+1:]...)
		writeJSON(w, http.StatusOK, map[string]bool{"result": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (f *FakeServer) handleProfile(w http.ResponseWriter, r *http.Request, email string) {
	var body backend.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" || body.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if body.Email != email {
		if _, taken := f.users[body.Email]; taken {
			writeError(w, http.StatusConflict, "Email already in use")
			return
		}
		delete(f.users, email)
		f.users[body.Email] = u
		f.tokens[u.Token] = body.Email
		f.tasks[body.Email] = f.tasks[email]
		delete(f.tasks, email)
	}
	u.Name = body.Name
	u.Email = body.Email
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": true,
		"user":   backend.User{Name: u.Name, Email: u.Email},
	})
}

func (f *FakeServer) handlePassword(w http.ResponseWriter, r *http.Request, email string) {
	var body struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if u.Password != body.OldPassword {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	u.Password = body.NewPassword
	writeJSON(w, http.StatusOK, map[string]bool{"result": true})
}

func (f *FakeServer) handleNotifications(w http.ResponseWriter, r *http.Request, email string) {
	var body struct {
		Notifications backend.NotificationSettings `json:"notifications"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	f.mu.Lock()
	f.users[email].Notifications = body.Notifications
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"result": true})
}
