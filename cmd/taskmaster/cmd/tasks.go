package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskmaster/backend"
	"taskmaster/internal/analytics"
	"taskmaster/internal/cli/prompt"
	"taskmaster/internal/dashboard"
	"taskmaster/internal/output"
	"taskmaster/internal/tui"
	"taskmaster/internal/utils"
	"taskmaster/internal/views"
)

// =============================================================================
// Task resolution
// =============================================================================

// resolveTask finds the task a command argument refers to: an exact ID,
// an exact title, then a partial title match. Several matches prompt for
// a choice, or fail in no-prompt mode. An empty term opens the selector
// over the tasks the action applies to.
func (a *app) resolveTask(ctl *dashboard.Controller, ref, action string) (*backend.Task, error) {
	tasks := ctl.Tasks()
	ref = strings.TrimSpace(ref)

	if ref == "" {
		if a.cfg.NoPrompt {
			return nil, utils.ErrRequired("task")
		}
		selector := prompt.TaskSelector{
			Tasks:  prompt.FilterTasksByAction(tasks, action, false),
			Prompt: fmt.Sprintf("Select a task to %s:", action),
		}
		return selector.Run(a.prompt)
	}

	if t := backend.FindTaskByID(tasks, ref); t != nil {
		return t, nil
	}

	var exact, partial []backend.Task
	lower := strings.ToLower(ref)
	for _, t := range tasks {
		title := strings.ToLower(t.Title)
		switch {
		case title == lower:
			exact = append(exact, t)
		case strings.Contains(title, lower):
			partial = append(partial, t)
		}
	}

	matches := exact
	if len(matches) == 0 {
		matches = partial
	}
	switch len(matches) {
	case 0:
		// Short IDs as printed by list
		for i := range tasks {
			if strings.HasPrefix(tasks[i].ID, ref) && len(ref) >= 6 {
				return &tasks[i], nil
			}
		}
		return nil, utils.ErrTaskNotFound(ref)
	case 1:
		return &matches[0], nil
	}

	if a.cfg.NoPrompt {
		var sb strings.Builder
		_, _ = fmt.Fprintf(&sb, "multiple tasks match '%s':", ref)
		for _, t := range matches {
			_, _ = fmt.Fprintf(&sb, "\n  - %s (%s)", prompt.FormatTaskLine(t), t.ID)
		}
		return nil, utils.WrapWithSuggestion(errors.New(sb.String()), "Use the task ID to pick one")
	}
	selector := prompt.TaskSelector{
		Tasks:  matches,
		Prompt: fmt.Sprintf("Multiple tasks match '%s':", ref),
	}
	return selector.Run(a.prompt)
}

// submit writes a task, asking before saving a duplicate title. ok is
// false when the user declined.
func (a *app) submit(write func(dashboard.TaskInput) (*backend.Task, error), in dashboard.TaskInput, force bool) (*backend.Task, bool, error) {
	in.Confirmed = force
	t, err := write(in)
	var dup *dashboard.DuplicateTitleError
	if !errors.As(err, &dup) {
		return t, err == nil, err
	}
	if a.cfg.NoPrompt {
		return nil, false, utils.WrapWithSuggestion(err, "Use --force to save it anyway")
	}

	a.printer.Warn("Warning: %s", dup.Error())
	confirmed, perr := a.prompt.Confirm("Save anyway?", false)
	if perr != nil {
		return nil, false, perr
	}
	if !confirmed {
		return nil, false, nil
	}
	in.Confirmed = true
	t, err = write(in)
	return t, err == nil, err
}

func (a *app) printAction(action, verb string, t *backend.Task) error {
	if a.jsonOutput {
		resp := output.ActionResponse{Action: action, Result: ResultActionCompleted}
		if t != nil {
			tj := output.ToJSON(*t, a.today())
			resp.Task = &tj
		}
		return output.PrintJSON(a.stdout, resp)
	}
	if t != nil {
		a.printer.Success("%s task: %s", verb, t.Title)
	}
	a.result(ResultActionCompleted)
	return nil
}

func (a *app) cancelled() error {
	if a.jsonOutput {
		return output.PrintJSON(a.stdout, output.ActionResponse{Action: "cancelled", Result: ResultInfoOnly})
	}
	_, _ = fmt.Fprintln(a.stdout, "Cancelled")
	a.result(ResultInfoOnly)
	return nil
}

// =============================================================================
// list
// =============================================================================

func newListCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var status, priority, dateRange, date, search string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long: `List tasks, optionally narrowed by filters or a search query.

Ranges: all, today, week, month, custom. --date alone implies --range custom.
--search queries the server and ignores the filters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				spec, err := views.ParseFilterSpec(status, priority, dateRange, date)
				if err != nil {
					return err
				}
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}
				if err := ctl.ApplyFilter(spec); err != nil {
					return err
				}

				title := "Tasks"
				searching := false
				if search != "" {
					if !ctl.Search(search) {
						return fmt.Errorf("search %q failed", search)
					}
					searching = true
					title = fmt.Sprintf("Search: %s", search)
				} else if !spec.IsDefault() {
					title = "Tasks (" + spec.String() + ")"
				}
				tasks := ctl.Visible()

				if a.jsonOutput {
					resp := output.NewListResponse(tasks, a.today())
					if searching {
						resp.Search = search
					} else if !spec.IsDefault() {
						resp.Filter = spec.String()
					}
					return output.PrintJSON(stdout, resp)
				}
				a.printer.Tasks(title, tasks, a.today())
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (all, pending, completed)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Filter by priority (all, low, medium, high)")
	cmd.Flags().StringVarP(&dateRange, "range", "r", "", "Filter by due date range (all, today, week, month, custom)")
	cmd.Flags().StringVar(&date, "date", "", "Selected date for the custom range (YYYY-MM-DD, today, +3d)")
	cmd.Flags().StringVar(&search, "search", "", "Search titles and descriptions on the server")
	return cmd
}

// =============================================================================
// add / edit
// =============================================================================

func newAddCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var draft utils.TaskDraft
	var force bool

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task",
		Long:  "Add a task. Without a title the task form is shown. A due date is required.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				draft.Title = strings.Join(args, " ")
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}

				if draft.Title == "" && !a.cfg.NoPrompt {
					filled, err := (&prompt.TaskForm{Defaults: draft}).Run(a.prompt)
					if err != nil {
						return err
					}
					draft = *filled
				}
				task, err := draft.BuildTask()
				if err != nil {
					return err
				}

				created, ok, err := a.submit(ctl.CreateTask, dashboard.TaskInput{Task: *task}, force)
				if err != nil {
					return err
				}
				if !ok {
					return a.cancelled()
				}
				return a.printAction("add", "Created", created)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&draft.Description, "description", "d", "", "Task description (markdown)")
	cmd.Flags().StringVar(&draft.DueDate, "due", "", "Due date (YYYY-MM-DD, today, tomorrow, +Nd)")
	cmd.Flags().StringVarP(&draft.Priority, "priority", "p", "", "Priority (low, medium, high)")
	cmd.Flags().StringVarP(&draft.Categories, "category", "c", "", "Comma-separated categories")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Save even when a task with the same title exists")
	return cmd
}

func newEditCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var title, description, due, priority, categories string
	var force bool

	cmd := &cobra.Command{
		Use:   "edit [task]",
		Short: "Edit a task",
		Long:  "Edit a task by ID or title. Flags change only the fields they name; without flags the task form is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}
				ref := ""
				if len(args) == 1 {
					ref = args[0]
				}
				current, err := a.resolveTask(ctl, ref, "edit")
				if err != nil {
					return err
				}

				flags := cmd.Flags()
				anyFlag := flags.Changed("title") || flags.Changed("description") || flags.Changed("due") ||
					flags.Changed("priority") || flags.Changed("category")

				var updated *backend.Task
				switch {
				case anyFlag:
					updated, err = applyEdits(*current, flags.Changed, title, description, due, priority, categories)
				case a.cfg.NoPrompt:
					err = utils.WrapWithSuggestion(errors.New("nothing to change"),
						"Pass --title, --description, --due, --priority or --category")
				default:
					updated, err = editInteractively(a, *current)
				}
				if err != nil {
					return err
				}

				saved, ok, err := a.submit(ctl.UpdateTask, dashboard.TaskInput{Task: *updated}, force)
				if err != nil {
					return err
				}
				if !ok {
					return a.cancelled()
				}
				if saved == nil {
					saved = updated
				}
				return a.printAction("edit", "Updated", saved)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVar(&due, "due", "", "New due date (YYYY-MM-DD, today, tomorrow, +Nd)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority (low, medium, high)")
	cmd.Flags().StringVarP(&categories, "category", "c", "", "Replace categories (comma-separated)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Save even when another task has the same title")
	return cmd
}

// applyEdits changes the fields whose flags were set.
func applyEdits(t backend.Task, changed func(string) bool, title, description, due, priority, categories string) (*backend.Task, error) {
	if changed("title") {
		if strings.TrimSpace(title) == "" {
			return nil, utils.ErrRequired("title")
		}
		t.Title = strings.TrimSpace(title)
	}
	if changed("description") {
		t.Description = strings.TrimSpace(description)
	}
	if changed("due") {
		if strings.TrimSpace(due) == "" {
			return nil, utils.ErrRequired("dueDate")
		}
		parsed, err := utils.ParseDateFlag(due)
		if err != nil {
			return nil, err
		}
		t.DueDate = parsed
	}
	if changed("priority") {
		p, ok := backend.ParsePriority(priority)
		if !ok {
			return nil, utils.ErrInvalidPriority(priority)
		}
		t.Priority = p
	}
	if changed("category") {
		t.Category = utils.ParseCategories(categories)
	}
	return &t, nil
}

func editInteractively(a *app, current backend.Task) (*backend.Task, error) {
	defaults := utils.TaskDraft{
		Title:       current.Title,
		Description: current.Description,
		Priority:    string(current.Priority),
		Categories:  strings.Join(current.Category, ", "),
	}
	if current.DueDate != nil {
		defaults.DueDate = current.DueDate.Format(backend.DateFormat)
	}
	draft, err := (&prompt.TaskForm{Defaults: defaults}).Run(a.prompt)
	if err != nil {
		return nil, err
	}
	t, err := draft.BuildTask()
	if err != nil {
		return nil, err
	}
	t.ID = current.ID
	t.Status = current.Status
	return t, nil
}

// =============================================================================
// done / undo / delete
// =============================================================================

func newStatusCmd(action, short string, stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	status := backend.StatusCompleted
	if action == "undo" {
		status = backend.StatusPending
	}

	return &cobra.Command{
		Use:   action + " [task]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}
				ref := ""
				if len(args) == 1 {
					ref = args[0]
				}
				t, err := a.resolveTask(ctl, ref, action)
				if err != nil {
					return err
				}
				if err := ctl.SetStatus(t.ID, status); err != nil {
					return err
				}
				t.Status = status
				verb := "Completed"
				if status == backend.StatusPending {
					verb = "Reopened"
				}
				return a.printAction(action, verb, t)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newDeleteCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [task]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Long:    "Delete a task. Asks for confirmation unless --no-prompt is set.",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}
				ref := ""
				if len(args) == 1 {
					ref = args[0]
				}
				t, err := a.resolveTask(ctl, ref, "delete")
				if err != nil {
					return err
				}
				if !a.cfg.NoPrompt {
					ok, err := a.prompt.Confirm(fmt.Sprintf("Delete %q?", t.Title), false)
					if err != nil {
						return err
					}
					if !ok {
						return a.cancelled()
					}
				}
				if err := ctl.DeleteTask(t.ID); err != nil {
					return err
				}
				return a.printAction("delete", "Deleted", t)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// show / stats
// =============================================================================

func newShowCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show [task]",
		Short: "Show a task with its rendered description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}
				ref := ""
				if len(args) == 1 {
					ref = args[0]
				}
				t, err := a.resolveTask(ctl, ref, "show")
				if err != nil {
					return err
				}

				if a.jsonOutput {
					return output.PrintJSON(stdout, output.ToJSON(*t, a.today()))
				}
				if raw {
					a.printer.Task(*t, a.today())
					a.result(ResultInfoOnly)
					return nil
				}

				style, width := "notty", 80
				if f, ok := stdout.(*os.File); ok && isTerminal(stdout) {
					style = "auto"
					if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
						width = w
					}
				}
				md := output.TaskMarkdown(*t, a.today())
				_, _ = fmt.Fprintln(stdout, output.NewMarkdownRenderer(style).Render(md, width))
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print fields as a table instead of rendered markdown")
	return cmd
}

type statsJSON struct {
	Stats  views.Stats                  `json:"stats"`
	Week   []views.DayProgress          `json:"week"`
	Usage  []analytics.OperationSummary `json:"usage,omitempty"`
	Result string                       `json:"result"`
}

func newStatsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var usage bool
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics and this week's progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				ctl, err := a.controller("cli")
				if err != nil {
					return err
				}
				resp := statsJSON{Stats: ctl.Stats(), Week: ctl.WeeklyProgress(), Result: ResultInfoOnly}

				since := a.now().AddDate(0, 0, -days)
				if usage {
					if a.tracker == nil {
						return utils.WrapWithSuggestion(errors.New("usage analytics are disabled"),
							"Set analytics.enabled: true in the config or export "+analytics.EnvEnabled+"=true")
					}
					a.tracker.Flush()
					resp.Usage, err = a.tracker.Summary(since)
					if err != nil {
						return err
					}
				}

				if a.jsonOutput {
					return output.PrintJSON(stdout, resp)
				}
				a.printer.Stats(resp.Stats, resp.Week)
				if usage {
					_, _ = fmt.Fprintln(stdout)
					a.printer.Usage(resp.Usage, since)
				}
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolVar(&usage, "usage", false, "Include local usage analytics")
	cmd.Flags().IntVar(&days, "days", 7, "Usage window in days")
	return cmd
}

// =============================================================================
// dashboard
// =============================================================================

func newDashboardCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui", "tui"},
		Short:   "Open the interactive dashboard",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if a.cfg.NoPrompt {
					return utils.WrapWithSuggestion(errors.New("the dashboard needs an interactive terminal"),
						"Use 'taskmaster list' in scripts")
				}
				s, err := a.restore()
				if err != nil {
					return err
				}

				// The alternate screen owns the terminal; logs go to a file.
				logger := utils.GetLogger()
				path, err := logger.RedirectToFile(a.conf.GetLogFile())
				if err != nil {
					return err
				}
				defer func() { _ = logger.Close() }()
				logger.Info("dashboard started", "log", path)

				opts := []dashboard.Option{dashboard.WithContext(a.ctx())}
				if a.cfg.Now != nil {
					opts = append(opts, dashboard.WithClock(a.cfg.Now))
				}
				if a.tracker != nil {
					a.tracker.SetSource("tui")
					opts = append(opts, dashboard.WithTracker(a.tracker))
				}
				ctl := dashboard.New(a.api, s, opts...)
				defer ctl.Close()

				var tuiOpts []tui.Option
				if a.cfg.Now != nil {
					tuiOpts = append(tuiOpts, tui.WithClock(a.cfg.Now))
				}
				start := time.Now()
				err = tui.Run(tui.New(ctl, tuiOpts...), tea.WithContext(a.ctx()))
				logger.Info("dashboard closed", "duration", time.Since(start).Round(time.Second))
				if errors.Is(err, tea.ErrProgramKilled) && a.shutdown.IsShutdown() {
					return nil
				}
				return err
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
