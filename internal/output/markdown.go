package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"taskmaster/backend"
)

// TaskMarkdown describes a task as a markdown document. The description is
// kept verbatim, so markdown written by the user renders as such.
func TaskMarkdown(t backend.Task, today time.Time) string {
	var b strings.Builder
	check := " "
	if t.Status == backend.StatusCompleted {
		check = "x"
	}
	fmt.Fprintf(&b, "# [%s] %s\n\n", check, t.Title)
	fmt.Fprintf(&b, "- **Priority:** %s\n", t.Priority)
	if t.DueDate != nil {
		fmt.Fprintf(&b, "- **Due:** %s (%s)\n", t.DueDate.Format(backend.DateFormat), RelativeDue(t.DueDate, today))
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", t.Status)
	if len(t.Category) > 0 {
		tags := make([]string, len(t.Category))
		for i, c := range t.Category {
			tags[i] = "`" + c + "`"
		}
		fmt.Fprintf(&b, "- **Categories:** %s\n", strings.Join(tags, " "))
	}
	if d := strings.TrimSpace(t.Description); d != "" {
		fmt.Fprintf(&b, "\n---\n\n%s\n", d)
	}
	return b.String()
}

// MarkdownRenderer renders markdown for the terminal and rebuilds its
// glamour renderer when the wrap width changes.
type MarkdownRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer creates a renderer using a glamour standard style
// ("dark", "light", "notty", ...).
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	if style == "" {
		style = "dark"
	}
	return &MarkdownRenderer{style: style}
}

// Render converts markdown to styled terminal text. On renderer errors the
// markdown is returned unchanged.
func (r *MarkdownRenderer) Render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	if width < 24 {
		width = 24
	}

	if r.renderer == nil || r.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = width
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}
