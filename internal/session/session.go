// Package session holds the logged-in user's context and the account
// operations that create, change or end it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"taskmaster/backend"
	"taskmaster/internal/credentials"
	"taskmaster/internal/utils"
)

// Session is the explicit session context passed to the dashboard and the
// commands. The zero value is a logged-out session.
type Session struct {
	mu            sync.RWMutex
	token         string
	user          backend.User
	notifications backend.NotificationSettings
}

// New creates a logged-in session.
func New(token string, user backend.User, notifications backend.NotificationSettings) *Session {
	return &Session{token: token, user: user, notifications: notifications}
}

// Token returns the raw auth token, or "" when logged out.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the user attached to the session.
func (s *Session) User() backend.User {
	if s == nil {
		return backend.User{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Notifications returns the user's notification settings.
func (s *Session) Notifications() backend.NotificationSettings {
	if s == nil {
		return backend.NotificationSettings{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications
}

// LoggedIn reports whether the session carries a token.
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

func (s *Session) setUser(u backend.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func (s *Session) setNotifications(n backend.NotificationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = n
}

// TokenStore persists the session secret between runs.
type TokenStore interface {
	Set(ctx context.Context, account, secret string) error
	Get(ctx context.Context, account string) (*credentials.CredentialInfo, error)
	Delete(ctx context.Context, account string) error
}

// Backend is the part of the API the session manager talks to.
type Backend interface {
	backend.Authenticator
	backend.AccountManager
}

// stored is the keyring payload. A bare token string is accepted too, which
// is what TASKMASTER_TOKEN carries.
type stored struct {
	Token         string                        `json:"token"`
	Name          string                        `json:"name,omitempty"`
	Email         string                        `json:"email,omitempty"`
	Notifications *backend.NotificationSettings `json:"notifications,omitempty"`
}

// Manager performs login, logout and account updates, persisting the
// token under a single keyring account.
type Manager struct {
	api     Backend
	store   TokenStore
	account string
}

// NewManager creates a session manager. account is the keyring account
// the token is stored under; empty means the default account.
func NewManager(api Backend, store TokenStore, account string) *Manager {
	return &Manager{api: api, store: store, account: credentials.NormalizeAccount(account)}
}

// Account returns the keyring account in use.
func (m *Manager) Account() string {
	return m.account
}

// Login authenticates and persists the token. A keyring failure does not
// fail the login: the session is still returned along with a warning log.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := utils.ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	res, err := m.api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, res), nil
}

// Register creates an account and logs in with it.
func (m *Manager) Register(ctx context.Context, name, email, password, confirm string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, utils.ErrRequired("name")
	}
	if err := utils.ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	if password != confirm {
		return nil, &utils.ValidationError{Field: "password", Message: "confirmation does not match"}
	}
	res, err := m.api.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, res), nil
}

func (m *Manager) start(ctx context.Context, res *backend.AuthResult) *Session {
	notifications := backend.DefaultNotificationSettings()
	if res.Notifications != nil {
		notifications = *res.Notifications
	}
	s := New(res.Token, res.User, notifications)
	if err := m.persist(ctx, s); err != nil {
		utils.GetLogger().Warn("session token not saved", "account", m.account, "err", err)
	}
	utils.GetLogger().Info("logged in", "email", res.User.Email)
	return s
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	n := s.Notifications()
	u := s.User()
	data, err := json.Marshal(stored{Token: s.Token(), Name: u.Name, Email: u.Email, Notifications: &n})
	if err != nil {
		return err
	}
	return m.store.Set(ctx, m.account, string(data))
}

// ResetPassword asks the backend to send a reset link and returns its message.
func (m *Manager) ResetPassword(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", utils.ErrRequired("email")
	}
	return m.api.ResetPassword(ctx, strings.TrimSpace(email))
}

// Restore rebuilds the session from the token store. A missing token
// yields utils.ErrNotLoggedIn.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	info, err := m.store.Get(ctx, m.account)
	if err != nil {
		return nil, err
	}
	if !info.Found {
		return nil, utils.ErrNotLoggedIn()
	}

	var st stored
	if err := json.Unmarshal([]byte(info.Secret), &st); err != nil || st.Token == "" {
		st = stored{Token: strings.TrimSpace(info.Secret)}
	}
	notifications := backend.DefaultNotificationSettings()
	if st.Notifications != nil {
		notifications = *st.Notifications
	}
	utils.GetLogger().Debug("session restored", "source", info.Source, "account", info.Account)
	return New(st.Token, backend.User{Name: st.Name, Email: st.Email}, notifications), nil
}

// Logout forgets the stored token.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.account); err != nil {
		return err
	}
	utils.GetLogger().Info("logged out", "account", m.account)
	return nil
}

// ProfileForm is the profile page: name and email, plus an optional
// password change.
type ProfileForm struct {
	Name            string
	Email           string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

func (f ProfileForm) changesPassword() bool {
	return f.CurrentPassword != "" || f.NewPassword != "" || f.ConfirmPassword != ""
}

// UpdateProfile saves the profile, then changes the password when one was
// entered.
func (m *Manager) UpdateProfile(ctx context.Context, s *Session, form ProfileForm) error {
	if !s.LoggedIn() {
		return utils.ErrNotLoggedIn()
	}
	profile := backend.ProfileUpdate{Name: strings.TrimSpace(form.Name), Email: strings.TrimSpace(form.Email)}
	if err := utils.ValidateProfile(profile); err != nil {
		return err
	}
	if form.changesPassword() {
		if err := utils.ValidatePasswordChange(form.CurrentPassword, form.NewPassword, form.ConfirmPassword); err != nil {
			return err
		}
	}

	user, err := m.api.UpdateProfile(ctx, s.Token(), profile)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if user == nil || user.Email == "" {
		user = &backend.User{Name: profile.Name, Email: profile.Email}
	}
	s.setUser(*user)
	m.persistQuietly(ctx, s)

	if form.changesPassword() {
		if err := m.api.UpdatePassword(ctx, s.Token(), form.CurrentPassword, form.NewPassword); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		utils.GetLogger().Info("password changed", "email", user.Email)
	}
	return nil
}

// UpdateNotifications saves the notification switches.
func (m *Manager) UpdateNotifications(ctx context.Context, s *Session, settings backend.NotificationSettings) error {
	if !s.LoggedIn() {
		return utils.ErrNotLoggedIn()
	}
	if err := m.api.UpdateNotifications(ctx, s.Token(), settings); err != nil {
		return fmt.Errorf("update notifications: %w", err)
	}
	s.setNotifications(settings)
	m.persistQuietly(ctx, s)
	return nil
}

func (m *Manager) persistQuietly(ctx context.Context, s *Session) {
	if err := m.persist(ctx, s); err != nil && !errors.Is(err, credentials.ErrKeyringNotAvailable) {
		utils.GetLogger().Warn("session not saved", "err", err)
	}
}
