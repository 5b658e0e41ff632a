package views

import (
	"strings"

	"taskmaster/backend"
)

// DuplicateResult lists the existing tasks whose title matches a candidate.
type DuplicateResult struct {
	HasDuplicate bool
	Duplicates   []backend.Task
}

// NormalizeTitle lower-cases a title, trims it and collapses whitespace runs.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// DetectDuplicates returns every task in existing whose normalized title
// equals the normalized candidate, in input order. An empty candidate
// never matches.
func DetectDuplicates(candidateTitle string, existing []backend.Task) DuplicateResult {
	want := NormalizeTitle(candidateTitle)
	if want == "" {
		return DuplicateResult{}
	}

	var result DuplicateResult
	for _, t := range existing {
		if NormalizeTitle(t.Title) == want {
			result.Duplicates = append(result.Duplicates, t)
		}
	}
	result.HasDuplicate = len(result.Duplicates) > 0
	return result
}

// DetectDuplicatesExcept is DetectDuplicates ignoring the task being edited.
func DetectDuplicatesExcept(candidateTitle, excludeID string, existing []backend.Task) DuplicateResult {
	others := make([]backend.Task, 0, len(existing))
	for _, t := range existing {
		if t.ID != excludeID {
			others = append(others, t)
		}
	}
	return DetectDuplicates(candidateTitle, others)
}
