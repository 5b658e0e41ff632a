package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"taskmaster/backend"
)

// CalendarDay truncates t to its calendar date, expressed as UTC midnight.
// The date is read in t's own location, so a due date decoded from the wire
// and "today" read from the local clock compare day by day.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current local calendar date.
func Today() time.Time {
	return CalendarDay(time.Now())
}

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns nil if the string is not a relative date format.
func parseRelativeDate(dateStr string, today time.Time) (*time.Time, error) {
	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return &today, nil
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t, nil
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t, nil
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil, nil
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}

	return &result, nil
}

// ParseDateFlag parses a date string supporting both relative and absolute formats.
// Supported relative formats: today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm
// Supported absolute format: YYYY-MM-DD
// Returns nil, nil for empty string (clear date).
func ParseDateFlag(dateStr string) (*time.Time, error) {
	return ParseDateFlagAt(dateStr, Today())
}

// ParseDateFlagAt is ParseDateFlag with an explicit reference day.
func ParseDateFlagAt(dateStr string, today time.Time) (*time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil, nil
	}

	t, err := parseRelativeDate(dateStr, CalendarDay(today))
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	parsed, err := time.Parse(backend.DateFormat, dateStr)
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	return &parsed, nil
}

// ParseCategories splits comma-separated category input. Entries are
// trimmed, blanks dropped and repeats removed, keeping first-seen order.
func ParseCategories(input string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, part := range strings.Split(input, ",") {
		c := strings.TrimSpace(part)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// TaskDraft is the raw form input for a new or edited task.
type TaskDraft struct {
	Title       string
	Description string
	DueDate     string
	Priority    string
	Categories  string
}

// BuildTask validates a draft and turns it into a task. Title and due
// date are required; priority defaults to medium.
func (d TaskDraft) BuildTask() (*backend.Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, ErrRequired("title")
	}
	if strings.TrimSpace(d.DueDate) == "" {
		return nil, ErrRequired("dueDate")
	}
	due, err := ParseDateFlag(d.DueDate)
	if err != nil {
		return nil, err
	}

	priority := backend.PriorityMedium
	if p := strings.TrimSpace(d.Priority); p != "" {
		parsed, ok := backend.ParsePriority(p)
		if !ok {
			return nil, ErrInvalidPriority(p)
		}
		priority = parsed
	}

	return &backend.Task{
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		DueDate:     due,
		Priority:    priority,
		Category:    ParseCategories(d.Categories),
		Status:      backend.StatusPending,
	}, nil
}

// ValidateProfile checks the profile form. Both fields are required.
func ValidateProfile(p backend.ProfileUpdate) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrRequired("name")
	}
	if strings.TrimSpace(p.Email) == "" {
		return ErrRequired("email")
	}
	return nil
}

// ValidatePasswordChange checks the change-password form.
func ValidatePasswordChange(oldPassword, newPassword, confirm string) error {
	if oldPassword == "" {
		return ErrRequired("current password")
	}
	if newPassword == "" {
		return ErrRequired("new password")
	}
	if newPassword != confirm {
		return &ValidationError{Field: "new password", Message: "confirmation does not match"}
	}
	return nil
}

// ValidateCredentials checks the login form.
func ValidateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return ErrRequired("email")
	}
	if password == "" {
		return ErrRequired("password")
	}
	return nil
}
