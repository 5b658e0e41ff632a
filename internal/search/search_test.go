package search

import (
	"context"
	"errors"
	"testing"

	"taskmaster/backend"
	"taskmaster/backend/taskmaster"
	"taskmaster/internal/testutil"
)

type stubSearcher struct {
	calls   int
	results []backend.Task
	err     error
}

func (s *stubSearcher) SearchTasks(ctx context.Context, token, query string) ([]backend.Task, error) {
	s.calls++
	return s.results, s.err
}

func TestSearchEmptyQueryIsInactive(t *testing.T) {
	stub := &stubSearcher{results: []backend.Task{{ID: "1"}}}
	a := New(stub)

	for _, q := range []string{"", "   ", "\t"} {
		results, active := a.Search(context.Background(), q, "token")
		if active || results != nil {
			t.Errorf("Search(%q) = %v, %v; want no active search", q, results, active)
		}
	}
	if stub.calls != 0 {
		t.Errorf("empty queries must not reach the backend, got %d calls", stub.calls)
	}
}

func TestSearchFailureIsInactive(t *testing.T) {
	a := New(&stubSearcher{err: errors.New("boom")})
	results, active := a.Search(context.Background(), "milk", "token")
	if active || results != nil {
		t.Errorf("failed search should be inactive, got %v, %v", results, active)
	}
}

func TestSearchNoMatchesIsActive(t *testing.T) {
	a := New(&stubSearcher{})
	results, active := a.Search(context.Background(), "nothing", "token")
	if !active {
		t.Fatal("a successful search with no matches is still active")
	}
	if results == nil || len(results) != 0 {
		t.Errorf("results = %v, want empty non-nil slice", results)
	}
}

func TestSearchAgainstServer(t *testing.T) {
	server := testutil.NewFakeServer(t)
	token := server.AddUser("Ada", "ada@example.com", "secret")
	server.AddTask(token, backend.Task{Title: "Buy milk"})
	server.AddTask(token, backend.Task{Title: "Pay rent", Description: "with milk money"})
	server.AddTask(token, backend.Task{Title: "Walk the dog"})

	client, err := taskmaster.New(taskmaster.Config{BaseURL: server.URL()})
	if err != nil {
		t.Fatalf("taskmaster.New() error: %v", err)
	}
	a := New(client)

	results, active := a.Search(context.Background(), "MILK", token)
	if !active || len(results) != 2 {
		t.Fatalf("Search() = %d results, active=%v; want 2, true", len(results), active)
	}

	_, active = a.Search(context.Background(), "milk", "bad-token")
	if active {
		t.Error("unauthorized search should be inactive")
	}
}
