// Package credentials stores the session token in the OS keyring, with a
// read-only fallback to the TASKMASTER_TOKEN environment variable.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// ServiceName is the keyring service entries are stored under
	ServiceName = "taskmaster"

	// EnvToken supplies a token when the keyring has none
	EnvToken = "TASKMASTER_TOKEN"

	// DefaultAccount is used when no account is configured
	DefaultAccount = "default"
)

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialInfo contains credential information returned by Get()
type CredentialInfo struct {
	Source  Source // Where the secret came from
	Account string // Keyring account
	Secret  string // Stored secret (never printed)
	Found   bool   // Whether a secret was found
}

// JSON serializes the credential info to JSON (secret excluded for security)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Account string `json:"account"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Account: c.Account,
		Source:  string(c.Source),
		Found:   c.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithEnv replaces os.Getenv, for tests.
func WithEnv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NormalizeAccount lower-cases and trims an account name, defaulting to "default".
func NormalizeAccount(account string) string {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return DefaultAccount
	}
	return account
}

// Set stores a secret in the keyring
func (m *Manager) Set(ctx context.Context, account, secret string) error {
	if err := m.keyring.Set(ServiceName, NormalizeAccount(account), secret); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// Get retrieves the secret from available sources (keyring first, then env vars).
// A missing secret is not an error: Found is false.
func (m *Manager) Get(ctx context.Context, account string) (*CredentialInfo, error) {
	account = NormalizeAccount(account)

	secret, err := m.keyring.Get(ServiceName, account)
	if err == nil && secret != "" {
		return &CredentialInfo{
			Source:  SourceKeyring,
			Account: account,
			Secret:  secret,
			Found:   true,
		}, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrKeyringNotAvailable) {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	if token := strings.TrimSpace(m.getenv(EnvToken)); token != "" {
		return &CredentialInfo{
			Source:  SourceEnvironment,
			Account: account,
			Secret:  token,
			Found:   true,
		}, nil
	}

	return &CredentialInfo{
		Source:  SourceNone,
		Account: account,
	}, nil
}

// Delete removes the secret from the keyring. Deleting a missing secret succeeds.
func (m *Manager) Delete(ctx context.Context, account string) error {
	err := m.keyring.Delete(ServiceName, NormalizeAccount(account))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
