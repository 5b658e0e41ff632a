package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskmaster/backend"
	"taskmaster/backend/taskmaster"
	"taskmaster/internal/credentials"
	"taskmaster/internal/session"
	"taskmaster/internal/testutil"
	"taskmaster/internal/utils"
)

type fixture struct {
	server  *testutil.FakeServer
	keyring *credentials.MockKeyring
	store   *credentials.Manager
	manager *session.Manager
}

func newFixture(t *testing.T, env map[string]string) *fixture {
	t.Helper()
	server := testutil.NewFakeServer(t)
	api, err := taskmaster.New(taskmaster.Config{BaseURL: server.URL(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("taskmaster.New() error: %v", err)
	}
	t.Cleanup(func() { _ = api.Close() })

	kr := credentials.NewMockKeyring()
	store := credentials.NewManager(credentials.WithKeyring(kr), credentials.WithEnv(func(k string) string { return env[k] }))
	return &fixture{
		server:  server,
		keyring: kr,
		store:   store,
		manager: session.NewManager(api, store, ""),
	}
}

// =============================================================================
// Login / Register / Logout
// =============================================================================

func TestLoginPersistsToken(t *testing.T) {
	f := newFixture(t, nil)
	token := f.server.AddUser("Ada", "ada@example.com", "pw")
	ctx := context.Background()

	s, err := f.manager.Login(ctx, "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if s.Token() != token || s.User().Name != "Ada" || !s.LoggedIn() {
		t.Errorf("session = %q %+v", s.Token(), s.User())
	}

	restored, err := f.manager.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if restored.Token() != token || restored.User().Email != "ada@example.com" {
		t.Errorf("restored = %q %+v", restored.Token(), restored.User())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")

	_, err := f.manager.Login(context.Background(), "ada@example.com", "nope")
	if err == nil {
		t.Fatal("expected an error")
	}
	if utils.Classify(err) != utils.KindBackend {
		t.Errorf("kind = %s, want backend", utils.Classify(err))
	}
	if !strings.Contains(err.Error(), "wrong password") {
		t.Errorf("error = %v", err)
	}

	if _, err := f.manager.Restore(context.Background()); err == nil {
		t.Error("failed login must not persist a token")
	}
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Login(context.Background(), " ", "pw")
	var ve *utils.ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Errorf("expected email validation error, got %v", err)
	}
	if f.server.CountRequests("POST /auth/login") != 0 {
		t.Error("validation failures must not reach the server")
	}
}

func TestLoginSurvivesMissingKeyring(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")
	f.keyring.SetError(credentials.ErrKeyringNotAvailable)

	s, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
	if err != nil || !s.LoggedIn() {
		t.Fatalf("Login() should succeed without a keyring, err=%v", err)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.manager.Register(ctx, "Bob", "bob@example.com", "pw", "other"); err == nil {
		t.Fatal("mismatched confirmation should fail")
	}

	s, err := f.manager.Register(ctx, "Bob", "bob@example.com", "pw", "pw")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if !s.LoggedIn() || s.User().Name != "Bob" {
		t.Errorf("session = %+v", s.User())
	}
	if s.Notifications() != backend.DefaultNotificationSettings() {
		t.Error("new accounts start with default notifications")
	}

	if _, err := f.manager.Register(ctx, "Bob", "bob@example.com", "pw", "pw"); err == nil {
		t.Error("registering twice should fail")
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")
	ctx := context.Background()

	if _, err := f.manager.Login(ctx, "ada@example.com", "pw"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := f.manager.Logout(ctx); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	_, err := f.manager.Restore(ctx)
	var sugg *utils.ErrorWithSuggestion
	if !errors.As(err, &sugg) {
		t.Errorf("Restore() after logout should say not logged in, got %v", err)
	}

	if err := f.manager.Logout(ctx); err != nil {
		t.Errorf("second Logout() should be a no-op, got %v", err)
	}
}

func TestRestoreFromEnvironment(t *testing.T) {
	f := newFixture(t, map[string]string{credentials.EnvToken: "raw-token"})

	s, err := f.manager.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if s.Token() != "raw-token" {
		t.Errorf("Token() = %q", s.Token())
	}
	if s.Notifications() != backend.DefaultNotificationSettings() {
		t.Error("bare tokens get default notifications")
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t, nil)
	msg, err := f.manager.ResetPassword(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("ResetPassword() error: %v", err)
	}
	if msg == "" {
		t.Error("expected the server message")
	}
	if _, err := f.manager.ResetPassword(context.Background(), ""); err == nil {
		t.Error("empty email should fail")
	}
}

// =============================================================================
// Profile / Notifications
// =============================================================================

func TestUpdateProfileAndPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "old")
	ctx := context.Background()
	s, _ := f.manager.Login(ctx, "ada@example.com", "old")

	err := f.manager.UpdateProfile(ctx, s, session.ProfileForm{
		Name:            "Ada L.",
		Email:           "ada@example.com",
		CurrentPassword: "old",
		NewPassword:     "new",
		ConfirmPassword: "new",
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error: %v", err)
	}
	if s.User().Name != "Ada L." {
		t.Errorf("session user not updated: %+v", s.User())
	}
	name, pw, _, _ := f.server.User("ada@example.com")
	if name != "Ada L." || pw != "new" {
		t.Errorf("server state = %q %q", name, pw)
	}
}

func TestUpdateProfileWithoutPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")
	ctx := context.Background()
	s, _ := f.manager.Login(ctx, "ada@example.com", "pw")

	if err := f.manager.UpdateProfile(ctx, s, session.ProfileForm{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("UpdateProfile() error: %v", err)
	}
	if f.server.CountRequests("PUT /users/password") != 0 {
		t.Error("password endpoint should not be called without a password change")
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")
	ctx := context.Background()
	s, _ := f.manager.Login(ctx, "ada@example.com", "pw")

	tests := []struct {
		name string
		form session.ProfileForm
	}{
		{"missing name", session.ProfileForm{Email: "ada@example.com"}},
		{"missing email", session.ProfileForm{Name: "Ada"}},
		{"confirmation mismatch", session.ProfileForm{Name: "Ada", Email: "ada@example.com", CurrentPassword: "pw", NewPassword: "a", ConfirmPassword: "b"}},
		{"missing current password", session.ProfileForm{Name: "Ada", Email: "ada@example.com", NewPassword: "a", ConfirmPassword: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.manager.UpdateProfile(ctx, s, tt.form)
			if utils.Classify(err) != utils.KindValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if f.server.CountRequests("PUT /users") != 0 {
		t.Error("invalid forms must not reach the server")
	}
}

func TestUpdateProfileWrongCurrentPassword(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")
	ctx := context.Background()
	s, _ := f.manager.Login(ctx, "ada@example.com", "pw")

	err := f.manager.UpdateProfile(ctx, s, session.ProfileForm{
		Name: "Ada", Email: "ada@example.com",
		CurrentPassword: "bad", NewPassword: "x", ConfirmPassword: "x",
	})
	if err == nil || !strings.Contains(err.Error(), "incorrect") {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestUpdateNotifications(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddUser("Ada", "ada@example.com", "pw")
	ctx := context.Background()
	s, _ := f.manager.Login(ctx, "ada@example.com", "pw")

	settings := backend.NotificationSettings{EmailNotifications: false, TaskReminders: true, DueDateAlerts: false}
	if err := f.manager.UpdateNotifications(ctx, s, settings); err != nil {
		t.Fatalf("UpdateNotifications() error: %v", err)
	}
	if s.Notifications() != settings {
		t.Errorf("session notifications = %+v", s.Notifications())
	}
	_, _, stored, _ := f.server.User("ada@example.com")
	if stored != settings {
		t.Errorf("server notifications = %+v", stored)
	}

	restored, _ := f.manager.Restore(ctx)
	if restored.Notifications() != settings {
		t.Errorf("persisted notifications = %+v", restored.Notifications())
	}
}

func TestLoggedOutSession(t *testing.T) {
	f := newFixture(t, nil)
	var s session.Session
	if s.LoggedIn() {
		t.Error("zero session should be logged out")
	}
	if err := f.manager.UpdateNotifications(context.Background(), &s, backend.DefaultNotificationSettings()); err == nil {
		t.Error("logged-out update should fail")
	}
}

func TestNilSessionAccessors(t *testing.T) {
	var s *session.Session
	if s.Token() != "" || s.LoggedIn() {
		t.Error("nil session should have no token")
	}
	if u := s.User(); u.Name != "" || u.Email != "" {
		t.Errorf("User() = %+v, want zero value", u)
	}
	if n := s.Notifications(); n != (backend.NotificationSettings{}) {
		t.Errorf("Notifications() = %+v, want zero value", n)
	}
}
