package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"taskmaster/backend"
	"taskmaster/internal/credentials"
	"taskmaster/internal/output"
	"taskmaster/internal/session"
	"taskmaster/internal/utils"
)

// ask returns value, or prompts for it when empty and prompting is allowed.
func (a *app) ask(value, field, label string, secret bool) (string, error) {
	if value != "" {
		return value, nil
	}
	if a.cfg.NoPrompt {
		return "", utils.ErrRequired(field)
	}
	var (
		answer string
		err    error
	)
	if secret {
		answer, err = a.prompt.Password(label)
	} else {
		answer, err = a.prompt.ReadLine(label)
	}
	if err != nil {
		return "", fmt.Errorf("no input for %s: %w", field, err)
	}
	return answer, nil
}

type sessionJSON struct {
	Action        string                       `json:"action"`
	User          backend.User                 `json:"user"`
	Notifications backend.NotificationSettings `json:"notifications"`
	Token         string                       `json:"token,omitempty"`
	Result        string                       `json:"result"`
}

func (a *app) printSession(action string, s *session.Session, printToken bool) error {
	user := s.User()
	if a.jsonOutput {
		resp := sessionJSON{Action: action, User: user, Notifications: s.Notifications(), Result: ResultActionCompleted}
		if printToken {
			resp.Token = s.Token()
		}
		return output.PrintJSON(a.stdout, resp)
	}
	if user.Name != "" {
		a.printer.Success("Logged in as %s <%s>", user.Name, user.Email)
	} else {
		a.printer.Success("Logged in as %s", user.Email)
	}
	if printToken {
		_, _ = fmt.Fprintln(a.stdout, s.Token())
	}
	a.result(ResultActionCompleted)
	return nil
}

// =============================================================================
// login / register / reset-password / logout / whoami
// =============================================================================

func newLoginCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var email, password string
	var printToken bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Long:  "Log in to TaskMaster. The session token is saved in the system keyring; when no keyring is available use --print-token and export " + credentials.EnvToken + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				var err error
				if email, err = a.ask(email, "email", "Email: ", false); err != nil {
					return err
				}
				if password, err = a.ask(password, "password", "Password: ", true); err != nil {
					return err
				}
				s, err := a.sessions.Login(a.ctx(), email, password)
				if err != nil {
					return err
				}
				return a.printSession("login", s, printToken)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "Print the session token")
	return cmd
}

func newRegisterCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var name, email, password, confirm string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				var err error
				if name, err = a.ask(name, "name", "Name: ", false); err != nil {
					return err
				}
				if email, err = a.ask(email, "email", "Email: ", false); err != nil {
					return err
				}
				if password == "" {
					if password, err = a.ask("", "password", "Password: ", true); err != nil {
						return err
					}
					if confirm, err = a.ask(confirm, "confirm", "Confirm password: ", true); err != nil {
						return err
					}
				} else if confirm == "" {
					confirm = password
				}
				s, err := a.sessions.Register(a.ctx(), name, email, password, confirm)
				if err != nil {
					return err
				}
				return a.printSession("register", s, false)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Password confirmation (defaults to --password)")
	return cmd
}

func newResetPasswordCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [email]",
		Short: "Send a password reset link",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				email := ""
				if len(args) == 1 {
					email = args[0]
				}
				email, err := a.ask(email, "email", "Email: ", false)
				if err != nil {
					return err
				}
				msg, err := a.sessions.ResetPassword(a.ctx(), email)
				if err != nil {
					return err
				}
				if msg == "" {
					msg = "Password reset link sent to " + email
				}
				if a.jsonOutput {
					return output.PrintJSON(stdout, map[string]string{"action": "reset-password", "message": msg, "result": ResultActionCompleted})
				}
				a.printer.Success("%s", msg)
				a.result(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newLogoutCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				if err := a.sessions.Logout(a.ctx()); err != nil {
					if credentials.IsKeyringUnavailable(err) {
						return utils.WrapWithSuggestion(err, "Unset "+credentials.EnvToken+" to log out")
					}
					return err
				}
				if a.jsonOutput {
					return output.PrintJSON(stdout, output.ActionResponse{Action: "logout", Result: ResultActionCompleted})
				}
				a.printer.Success("Logged out")
				a.result(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newWhoamiCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				s, err := a.restore()
				if err != nil {
					return err
				}
				user := s.User()
				if a.jsonOutput {
					return output.PrintJSON(stdout, sessionJSON{Action: "whoami", User: user, Notifications: s.Notifications(), Result: ResultInfoOnly})
				}
				switch {
				case user.Email == "":
					_, _ = fmt.Fprintln(stdout, "Logged in (token from "+credentials.EnvToken+")")
				case user.Name != "":
					_, _ = fmt.Fprintf(stdout, "%s <%s>\n", user.Name, user.Email)
				default:
					_, _ = fmt.Fprintln(stdout, user.Email)
				}
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// profile / notifications
// =============================================================================

func newProfileCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var form session.ProfileForm
	var changePassword bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update your name, email or password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				s, err := a.restore()
				if err != nil {
					return err
				}
				user := s.User()
				if form.Name == "" {
					form.Name = user.Name
				}
				if form.Email == "" {
					form.Email = user.Email
				}
				if changePassword || form.NewPassword != "" {
					if form.CurrentPassword, err = a.ask(form.CurrentPassword, "currentPassword", "Current password: ", true); err != nil {
						return err
					}
					if form.NewPassword, err = a.ask(form.NewPassword, "newPassword", "New password: ", true); err != nil {
						return err
					}
					if form.ConfirmPassword, err = a.ask(form.ConfirmPassword, "confirmPassword", "Confirm new password: ", true); err != nil {
						return err
					}
				}

				if err := a.sessions.UpdateProfile(a.ctx(), s, form); err != nil {
					return authHint(err)
				}
				if a.jsonOutput {
					return output.PrintJSON(stdout, sessionJSON{Action: "profile", User: s.User(), Notifications: s.Notifications(), Result: ResultActionCompleted})
				}
				a.printer.Success("Profile updated")
				if form.NewPassword != "" {
					a.printer.Success("Password changed")
				}
				a.result(ResultActionCompleted)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "New display name")
	cmd.Flags().StringVar(&form.Email, "email", "", "New email")
	cmd.Flags().BoolVar(&changePassword, "password", false, "Change the password (prompts for the current and new password)")
	cmd.Flags().StringVar(&form.CurrentPassword, "current-password", "", "Current password")
	cmd.Flags().StringVar(&form.NewPassword, "new-password", "", "New password")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "New password confirmation")
	return cmd
}

func newNotificationsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var email, reminders, dueAlerts bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show or change notification settings",
		Long:  "Show notification settings. Pass --email, --reminders or --due-alerts (=true/false) to change them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				s, err := a.restore()
				if err != nil {
					return err
				}
				settings := s.Notifications()
				flags := cmd.Flags()
				changed := false
				if flags.Changed("email") {
					settings.EmailNotifications = email
					changed = true
				}
				if flags.Changed("reminders") {
					settings.TaskReminders = reminders
					changed = true
				}
				if flags.Changed("due-alerts") {
					settings.DueDateAlerts = dueAlerts
					changed = true
				}

				action, result := "notifications", ResultInfoOnly
				if changed {
					if err := a.sessions.UpdateNotifications(a.ctx(), s, settings); err != nil {
						return authHint(err)
					}
					result = ResultActionCompleted
				}
				if a.jsonOutput {
					return output.PrintJSON(stdout, sessionJSON{Action: action, User: s.User(), Notifications: settings, Result: result})
				}
				if changed {
					a.printer.Success("Notification settings saved")
				}
				_, _ = fmt.Fprintf(stdout, "Email notifications: %s\n", onOff(settings.EmailNotifications))
				_, _ = fmt.Fprintf(stdout, "Task reminders:      %s\n", onOff(settings.TaskReminders))
				_, _ = fmt.Fprintf(stdout, "Due date alerts:     %s\n", onOff(settings.DueDateAlerts))
				a.result(result)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().BoolVar(&email, "email", false, "Email notifications")
	cmd.Flags().BoolVar(&reminders, "reminders", false, "Task reminders")
	cmd.Flags().BoolVar(&dueAlerts, "due-alerts", false, "Due date alerts")
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// =============================================================================
// auth status
// =============================================================================

func newAuthCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	authCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show where the session token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, stdout, stderr, cfg, func(a *app) error {
				handler := credentials.NewCLIHandler(a.creds, stdout)
				if err := handler.Status(a.sessions.Account(), a.jsonOutput); err != nil {
					if credentials.IsKeyringUnavailable(err) {
						return utils.WrapWithSuggestion(err, credentials.KeyringUnavailableHint())
					}
					return err
				}
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return authCmd
}
