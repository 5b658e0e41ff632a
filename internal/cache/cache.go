// Package cache holds the session's in-memory copy of the user's tasks.
package cache

import (
	"sync"
	"time"

	"taskmaster/backend"
)

// TaskCache is the authoritative client-side copy of the task list. It is
// only ever replaced wholesale by a fetch; it is never patched locally.
type TaskCache struct {
	mu        sync.RWMutex
	tasks     []backend.Task
	fetchedAt time.Time
	loaded    bool
}

// New creates an empty cache.
func New() *TaskCache {
	return &TaskCache{}
}

// Replace stores a freshly fetched task list.
func (c *TaskCache) Replace(tasks []backend.Task, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = cloneTasks(tasks)
	c.fetchedAt = fetchedAt
	c.loaded = true
}

// Tasks returns a copy of the cached tasks in server order.
func (c *TaskCache) Tasks() []backend.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTasks(c.tasks)
}

// Find returns a copy of the task with the given ID.
func (c *TaskCache) Find(id string) (backend.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t := backend.FindTaskByID(c.tasks, id); t != nil {
		return cloneTask(*t), true
	}
	return backend.Task{}, false
}

// Len returns the number of cached tasks.
func (c *TaskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// FetchedAt returns when the cache was last replaced.
func (c *TaskCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Loaded reports whether at least one fetch has completed.
func (c *TaskCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Clear empties the cache, e.g. on logout.
func (c *TaskCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = nil
	c.fetchedAt = time.Time{}
	c.loaded = false
}

func cloneTasks(tasks []backend.Task) []backend.Task {
	out := make([]backend.Task, len(tasks))
	for i, t := range tasks {
		out[i] = cloneTask(t)
	}
	return out
}

func cloneTask(t backend.Task) backend.Task {
	if t.Category != nil {
		t.Category = append([]string{}, t.Category...)
	}
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}
