package views

import (
	"testing"

	"taskmaster/backend"
)

func TestNormalizeTitle(t *testing.T) {
	tests := map[string]string{
		"Buy milk":              "buy milk",
		"  BUY   milk ":         "buy milk",
		"buy\tmilk\n":           "buy milk",
		"":                      "",
		"   ":                   "",
		"Call Mom about Sunday": "call mom about sunday",
	}
	for in, want := range tests {
		if got := NormalizeTitle(in); got != want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectDuplicates(t *testing.T) {
	existing := []backend.Task{
		{ID: "a", Title: "buy   milk"},
		{ID: "b", Title: "Walk the dog"},
		{ID: "c", Title: " BUY MILK"},
	}

	result := DetectDuplicates("Buy milk", existing)
	if !result.HasDuplicate {
		t.Fatal("expected duplicate")
	}
	if len(result.Duplicates) != 2 || result.Duplicates[0].ID != "a" || result.Duplicates[1].ID != "c" {
		t.Errorf("Duplicates = %+v, want a and c in order", result.Duplicates)
	}

	if DetectDuplicates("Buy milk today", existing).HasDuplicate {
		t.Error("different title should not match")
	}
}

func TestDetectDuplicatesEmptyCandidate(t *testing.T) {
	existing := []backend.Task{{ID: "a", Title: ""}, {ID: "b", Title: "   "}}
	if result := DetectDuplicates("  ", existing); result.HasDuplicate || len(result.Duplicates) != 0 {
		t.Errorf("empty candidate should never match, got %+v", result)
	}
}

func TestDetectDuplicatesExcept(t *testing.T) {
	existing := []backend.Task{{ID: "a", Title: "Report"}, {ID: "b", Title: "report"}}
	result := DetectDuplicatesExcept("Report", "a", existing)
	if len(result.Duplicates) != 1 || result.Duplicates[0].ID != "b" {
		t.Errorf("editing task a should only see b, got %+v", result.Duplicates)
	}
	if DetectDuplicatesExcept("Report", "a", existing[:1]).HasDuplicate {
		t.Error("a task is not a duplicate of itself")
	}
}
