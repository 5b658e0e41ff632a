package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, log.InfoLevel)

	logger.Debug("hidden")
	logger.Info("task created", "id", "abc123")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug output should be suppressed at info level: %s", out)
	}
	if !strings.Contains(out, "task created") || !strings.Contains(out, "abc123") {
		t.Errorf("info output missing message or keyvals: %s", out)
	}
}

func TestLoggerVerboseOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, log.WarnLevel)

	logger.SetVerbose(true)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("verbose mode should enable debug output")
	}

	buf.Reset()
	logger.SetVerbose(false)
	logger.Info("suppressed again")
	if buf.Len() != 0 {
		t.Errorf("configured warn level should be restored, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"":        log.InfoLevel,
		"debug":   log.DebugLevel,
		"warn":    log.WarnLevel,
		"error":   log.ErrorLevel,
		"verbose": log.InfoLevel,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRedirectToFile(t *testing.T) {
	logger := NewLogger(nil, log.InfoLevel)
	path := filepath.Join(t.TempDir(), "logs", "tui.log")

	got, err := logger.RedirectToFile(path)
	if err != nil {
		t.Fatalf("RedirectToFile() error: %v", err)
	}
	if got != path || logger.LogPath() != path {
		t.Errorf("LogPath() = %q, want %q", logger.LogPath(), path)
	}

	logger.Info("dashboard started", "tasks", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "msg=\"dashboard started\"") || !strings.Contains(string(data), "tasks=3") {
		t.Errorf("expected logfmt line, got: %s", data)
	}
}
