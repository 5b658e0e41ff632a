package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// CLIHandler prints credential status for CLI commands
type CLIHandler struct {
	manager *Manager
	stdout  io.Writer
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdout io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdout:  stdout,
	}
}

// KeyringUnavailableHint explains the environment variable fallback.
func KeyringUnavailableHint() string {
	return fmt.Sprintf(`System keyring not available.

Alternative: export the token instead:
  export %s="your-token"

The token is printed by 'taskmaster login --print-token'.`, EnvToken)
}

// IsKeyringUnavailable reports whether err means the OS keyring is missing.
func IsKeyringUnavailable(err error) bool {
	return errors.Is(err, ErrKeyringNotAvailable)
}

// Status reports where the session token for account comes from
func (h *CLIHandler) Status(account string, jsonOutput bool) error {
	info, err := h.manager.Get(context.Background(), account)
	if err != nil {
		return err
	}

	if jsonOutput {
		jsonBytes, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(jsonBytes))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No session token for account %s\n", info.Account)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - %s: Not set\n", EnvToken)
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Account: %s\n", info.Account)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	return nil
}
