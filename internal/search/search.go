// Package search adapts the backend search endpoint to the dashboard's
// "active search" semantics.
package search

import (
	"context"
	"strings"

	"taskmaster/backend"
	"taskmaster/internal/utils"
)

// Adapter runs remote searches. Failures never propagate: they simply mean
// there is no active search.
type Adapter struct {
	searcher backend.Searcher
}

// New creates an adapter over a backend searcher.
func New(searcher backend.Searcher) *Adapter {
	return &Adapter{searcher: searcher}
}

// Search returns the tasks matching query. active is false when the query
// is empty or the request failed, in which case results is nil and the
// caller should fall back to its filtered task list.
func (a *Adapter) Search(ctx context.Context, query, authToken string) (results []backend.Task, active bool) {
	if strings.TrimSpace(query) == "" {
		return nil, false
	}

	tasks, err := a.searcher.SearchTasks(ctx, authToken, query)
	if err != nil {
		if utils.Classify(err) != utils.KindCancelled {
			utils.GetLogger().Warn("search failed", "query", query, "kind", utils.Classify(err), "err", err)
		}
		return nil, false
	}
	if tasks == nil {
		tasks = []backend.Task{}
	}
	return tasks, true
}
