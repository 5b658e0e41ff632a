package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskmaster/backend/taskmaster"
	"taskmaster/internal/analytics"
	"taskmaster/internal/cli/prompt"
	"taskmaster/internal/config"
	"taskmaster/internal/credentials"
	"taskmaster/internal/dashboard"
	"taskmaster/internal/output"
	"taskmaster/internal/ratelimit"
	"taskmaster/internal/session"
	"taskmaster/internal/shutdown"
	"taskmaster/internal/utils"
)

// Build information, set at build time
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = output.ResultActionCompleted
	ResultInfoOnly        = output.ResultInfoOnly
	ResultError           = output.ResultError
)

// Config holds process-level settings and the injection points used by
// tests. The zero value runs against the real environment.
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string

	ConfigPath    string              // config file, default XDG location
	BaseURL       string              // overrides api.base_url
	AnalyticsPath string              // analytics database, default XDG data dir
	Keyring       credentials.Keyring // nil uses the system keyring
	Getenv        func(string) string // nil uses os.Getenv
	Stdin         io.Reader           // nil uses os.Stdin
	Now           func() time.Time    // nil uses time.Now
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	if cfg == nil {
		cfg = &Config{}
	}
	rootCmd := NewTaskmaster(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) || cfg.OutputFormat == "json" {
			_ = output.PrintJSON(stdout, output.NewErrorResponse(err))
		} else {
			printError(stderr, err)
			// Emit ERROR result code in no-prompt mode
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

func printError(stderr io.Writer, err error) {
	msg := utils.UserMessage(err)
	_, _ = fmt.Fprintln(stderr, "Error:", msg)
	var sugg *utils.ErrorWithSuggestion
	if errors.As(err, &sugg) && !strings.Contains(msg, sugg.GetSuggestion()) {
		_, _ = fmt.Fprintln(stderr, "Suggestion:", sugg.GetSuggestion())
	}
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTaskmaster creates the root command with injectable IO
func NewTaskmaster(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "taskmaster",
		Short:   "A task manager for the TaskMaster service",
		Long:    "taskmaster manages your TaskMaster tasks from the terminal: list, add, edit and complete tasks, or open the interactive dashboard.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/taskmaster/config.yaml)")
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newLoginCmd(stdout, stderr, cfg))
	cmd.AddCommand(newRegisterCmd(stdout, stderr, cfg))
	cmd.AddCommand(newResetPasswordCmd(stdout, stderr, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, stderr, cfg))
	cmd.AddCommand(newWhoamiCmd(stdout, stderr, cfg))
	cmd.AddCommand(newProfileCmd(stdout, stderr, cfg))
	cmd.AddCommand(newNotificationsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newAuthCmd(stdout, stderr, cfg))

	cmd.AddCommand(newListCmd(stdout, stderr, cfg))
	cmd.AddCommand(newAddCmd(stdout, stderr, cfg))
	cmd.AddCommand(newEditCmd(stdout, stderr, cfg))
	cmd.AddCommand(newStatusCmd("done", "Mark a task as completed", stdout, stderr, cfg))
	cmd.AddCommand(newStatusCmd("undo", "Mark a task as pending again", stdout, stderr, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, stderr, cfg))
	cmd.AddCommand(newShowCmd(stdout, stderr, cfg))
	cmd.AddCommand(newStatsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newDashboardCmd(stdout, stderr, cfg))

	cmd.AddCommand(newConfigCmd(stdout, stderr, cfg))
	cmd.AddCommand(newVersionCmd(stdout, cfg))

	return cmd
}

// =============================================================================
// Application wiring
// =============================================================================

// app holds everything a command needs for one invocation.
type app struct {
	cfg      *Config
	conf     *config.Config
	api      *taskmaster.Backend
	creds    *credentials.Manager
	sessions *session.Manager
	tracker  *analytics.Tracker
	stats    *ratelimit.Stats
	shutdown *shutdown.Manager
	prompt   *prompt.Prompter
	printer  *output.Printer

	stdout     io.Writer
	stderr     io.Writer
	jsonOutput bool
}

// newApp loads the config, applies the global flags and connects the
// backend, token store and analytics.
func newApp(cmd *cobra.Command, stdout, stderr io.Writer, cfg *Config) (*app, error) {
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonFlag, _ := cmd.Flags().GetBool("json")
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = cfg.ConfigPath
	}
	if noPrompt {
		cfg.NoPrompt = true
	}
	if verbose {
		cfg.Verbose = true
	}

	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	outputFormat := cfg.OutputFormat
	if jsonFlag {
		outputFormat = "json"
	}
	conf.ApplyFlags(cfg.NoPrompt, outputFormat)
	cfg.NoPrompt = conf.NoPrompt
	if cfg.BaseURL != "" {
		conf.API.BaseURL = cfg.BaseURL
	}

	logger := utils.GetLogger()
	logger.SetOutput(stderr)
	logger.SetLevel(utils.ParseLevel(conf.Logging.Level))
	if cfg.Verbose {
		utils.SetVerboseMode(true)
	}

	stats := ratelimit.NewStats()
	api, err := taskmaster.New(taskmaster.Config{
		BaseURL:   conf.API.BaseURL,
		Timeout:   conf.GetTimeout(),
		UserAgent: "taskmaster-cli/" + Version,
		Stats:     stats,
	})
	if err != nil {
		return nil, err
	}

	credOpts := []credentials.ManagerOption{}
	if cfg.Keyring != nil {
		credOpts = append(credOpts, credentials.WithKeyring(cfg.Keyring))
	}
	if cfg.Getenv != nil {
		credOpts = append(credOpts, credentials.WithEnv(cfg.Getenv))
	}
	creds := credentials.NewManager(credOpts...)

	stdin := cfg.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	a := &app{
		cfg:        cfg,
		conf:       conf,
		api:        api,
		creds:      creds,
		sessions:   session.NewManager(api, creds, conf.Account),
		stats:      stats,
		shutdown:   shutdown.NewManager(cmd.Context()),
		prompt:     prompt.New(stdin, stdout, cfg.NoPrompt),
		printer:    output.NewPrinter(stdout, !isTerminal(stdout)),
		stdout:     stdout,
		stderr:     stderr,
		jsonOutput: conf.OutputFormat == "json",
	}
	a.shutdown.RegisterCloser("backend", api)

	if analytics.IsEnabledFromEnv(conf.IsAnalyticsEnabled()) {
		path := cfg.AnalyticsPath
		if path == "" {
			path = conf.GetAnalyticsPath()
		}
		tracker, err := analytics.NewTracker(path, true)
		if err != nil {
			utils.GetLogger().Warn("analytics disabled", "err", err)
		} else {
			a.tracker = tracker
			a.shutdown.RegisterCloser("analytics", tracker)
			if n, err := tracker.Cleanup(conf.GetAnalyticsRetentionDays()); err == nil && n > 0 {
				utils.GetLogger().Debug("pruned analytics events", "count", n)
			}
		}
	}

	return a, nil
}

// Close runs the registered cleanups.
func (a *app) Close() {
	if n := a.stats.RateLimitCount(); n > 0 {
		utils.GetLogger().Warn("requests were rate limited", "count", n, "last", a.stats.LastRateLimitTime().Format(time.RFC3339))
	}
	a.shutdown.Shutdown()
	_ = a.shutdown.Wait(context.Background())
}

// ctx is cancelled on SIGINT/SIGTERM.
func (a *app) ctx() context.Context {
	return a.shutdown.Context()
}

func (a *app) now() time.Time {
	if a.cfg.Now != nil {
		return a.cfg.Now()
	}
	return time.Now()
}

func (a *app) today() time.Time {
	return utils.CalendarDay(a.now())
}

// restore loads the stored session or fails with ErrNotLoggedIn.
func (a *app) restore() (*session.Session, error) {
	return a.sessions.Restore(a.ctx())
}

// controller restores the session and loads the task list.
func (a *app) controller(source string) (*dashboard.Controller, error) {
	s, err := a.restore()
	if err != nil {
		return nil, err
	}
	opts := []dashboard.Option{dashboard.WithContext(a.ctx())}
	if a.cfg.Now != nil {
		opts = append(opts, dashboard.WithClock(a.cfg.Now))
	}
	if a.tracker != nil {
		a.tracker.SetSource(source)
		opts = append(opts, dashboard.WithTracker(a.tracker))
	}
	ctl := dashboard.New(a.api, s, opts...)
	a.shutdown.RegisterCleanup("dashboard", func(context.Context) error {
		ctl.Close()
		return nil
	})
	if err := ctl.Refresh(); err != nil {
		return nil, authHint(err)
	}
	return ctl, nil
}

// authHint adds a login suggestion to rejected tokens.
func authHint(err error) error {
	if utils.Classify(err) == utils.KindAuth {
		return utils.ErrAuthenticationFailed(err)
	}
	return err
}

// result prints a no-prompt result code after text output.
func (a *app) result(code string) {
	if a.cfg.NoPrompt && !a.jsonOutput {
		_, _ = fmt.Fprintln(a.stdout, code)
	}
}

// runWithApp builds the app, runs fn and tears everything down.
func runWithApp(cmd *cobra.Command, stdout, stderr io.Writer, cfg *Config, fn func(a *app) error) error {
	a, err := newApp(cmd, stdout, stderr, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	stop := a.shutdown.NotifySignals()
	defer stop()
	return fn(a)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// config and version
// =============================================================================

func newConfigCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if a.jsonOutput {
					return output.PrintJSON(stdout, map[string]string{"path": a.conf.Path, "result": ResultInfoOnly})
				}
				_, _ = fmt.Fprintln(stdout, a.conf.Path)
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if a.jsonOutput {
					return output.PrintJSON(stdout, a.conf)
				}
				text, err := a.conf.YAML()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(stdout, text)
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return configCmd
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   Version,
				Commit:    Commit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				data, err := json.Marshal(info)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, string(data))
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "taskmaster Version: %s\n", info.Version)
			_, _ = fmt.Fprintf(stdout, "Commit: %s\n", info.Commit)
			_, _ = fmt.Fprintf(stdout, "Built: %s\n", info.BuildDate)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				_, _ = fmt.Fprintf(stdout, "Go Version: %s\n", info.GoVersion)
				_, _ = fmt.Fprintf(stdout, "Platform: %s\n", info.Platform)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolP("verbose", "v", false, "Show extended build information")
	return cmd
}
