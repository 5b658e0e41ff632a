// Package clitest runs the taskmaster CLI in-process against a fake API
// server, an in-memory keyring and a temporary config.
package clitest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"taskmaster/cmd/taskmaster/cmd"
	"taskmaster/internal/credentials"
	"taskmaster/internal/testutil"
)

// defaultTestConfig keeps analytics off and logging quiet.
const defaultTestConfig = `# test config
output_format: text
logging:
  level: warn
analytics:
  enabled: false
`

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	server     *testutil.FakeServer
	keyring    *credentials.MockKeyring
	tmpDir     string
	configPath string

	mu  sync.Mutex
	env map[string]string
}

// NewCLITest creates a CLI test helper in no-prompt mode.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(defaultTestConfig), 0644); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}

	c := &CLITest{
		t:          t,
		server:     testutil.NewFakeServer(t),
		keyring:    credentials.NewMockKeyring(),
		tmpDir:     tmpDir,
		configPath: configPath,
		env:        make(map[string]string),
	}
	c.cfg = &cmd.Config{
		NoPrompt:      true,
		ConfigPath:    configPath,
		BaseURL:       c.server.URL(),
		AnalyticsPath: filepath.Join(tmpDir, "analytics.db"),
		Keyring:       c.keyring,
		Getenv:        c.getenv,
	}
	return c
}

func (c *CLITest) getenv(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.env[key]
}

// Config returns the command config, for tests that change injection points.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// Server returns the fake API server.
func (c *CLITest) Server() *testutil.FakeServer {
	return c.server
}

// Keyring returns the in-memory keyring.
func (c *CLITest) Keyring() *credentials.MockKeyring {
	return c.keyring
}

// TmpDir returns the temporary directory for the test.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// SetEnv sets a variable seen by the token store.
func (c *CLITest) SetEnv(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.env[key] = value
}

// SetFullConfig replaces the entire config file with the given YAML content.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// SetNow fixes the clock used for due dates and statistics.
func (c *CLITest) SetNow(now time.Time) {
	c.cfg.Now = func() time.Time { return now }
}

// Interactive enables prompts and feeds them input.
func (c *CLITest) Interactive(input string) {
	c.cfg.NoPrompt = false
	c.cfg.Stdin = strings.NewReader(input)
}

// LoginAs creates an account on the fake server, logs in through the CLI
// and returns the session token.
func (c *CLITest) LoginAs(name, email, password string) string {
	c.t.Helper()
	token := c.server.AddUser(name, email, password)
	c.MustExecute("login", "--email", email, "--password", password)
	return token
}

// Execute runs a CLI command with the given arguments and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, c.cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// Result code constants for convenience.
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)
