package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no secret is stored for an account.
var ErrNotFound = errors.New("secret not found in keyring")

// ErrKeyringNotAvailable is returned when the OS keyring cannot be used.
var ErrKeyringNotAvailable = errors.New("system keyring not available")

// MockKeyring is a test implementation of the Keyring interface
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> secret
	err   error
}

// NewMockKeyring creates a new mock keyring for testing
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{
		store: make(map[string]map[string]string),
	}
}

// SetError makes every operation fail with err, simulating a missing keyring.
func (m *MockKeyring) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Set stores a secret in the mock keyring
func (m *MockKeyring) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = secret
	return nil
}

// Get retrieves a secret from the mock keyring
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return "", m.err
	}

	if secret, ok := m.store[service][account]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("%s/%s: %w", service, account, ErrNotFound)
}

// Delete removes a secret from the mock keyring
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	if _, ok := m.store[service][account]; ok {
		delete(m.store[service], account)
		return nil
	}
	return fmt.Errorf("%s/%s: %w", service, account, ErrNotFound)
}

// systemKeyring stores secrets in the OS keyring (Keychain, Secret Service,
// Windows Credential Manager).
type systemKeyring struct{}

// Set stores a secret in the system keyring
func (s *systemKeyring) Set(service, account, secret string) error {
	return mapKeyringError(keyring.Set(service, account, secret))
}

// Get retrieves a secret from the system keyring
func (s *systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	return secret, mapKeyringError(err)
}

// Delete removes a secret from the system keyring
func (s *systemKeyring) Delete(service, account string) error {
	return mapKeyringError(keyring.Delete(service, account))
}

func mapKeyringError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, keyring.ErrUnsupportedPlatform):
		return ErrKeyringNotAvailable
	default:
		return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
}
