package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Logger provides leveled key/value logging with verbose mode support.
type Logger struct {
	mu      sync.RWMutex
	base    *log.Logger
	verbose bool
	level   log.Level
	closer  io.Closer
	path    string
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the process-wide logger writing to stderr.
func GetLogger() *Logger {
	once.Do(func() {
		loggerInstance = NewLogger(os.Stderr, log.InfoLevel)
	})
	return loggerInstance
}

// NewLogger creates a logger writing human-readable lines to w.
func NewLogger(w io.Writer, level log.Level) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{
		base: log.NewWithOptions(w, log.Options{
			Level:           level,
			Prefix:          "taskmaster",
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Formatter:       log.TextFormatter,
		}),
		level: level,
	}
}

// ParseLevel maps a config level name to a log level. Unknown names fall
// back to info.
func ParseLevel(name string) log.Level {
	if name == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// SetVerboseMode sets the verbose mode globally.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose switches debug output on or off. Turning it off restores the
// configured level.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
	if verbose {
		l.base.SetLevel(log.DebugLevel)
		return
	}
	l.base.SetLevel(l.level)
}

// SetLevel sets the configured level. Verbose mode still wins.
func (l *Logger) SetLevel(level log.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	if !l.verbose {
		l.base.SetLevel(level)
	}
}

// SetOutput redirects the logger. Used by the dashboard, which owns the
// terminal while it runs.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetOutput(w)
}

// IsVerbose returns whether verbose mode is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keyvals ...interface{}) *log.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base.With(keyvals...)
}

// Debug logs a debug message with optional key/value pairs.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.current().Debug(msg, keyvals...)
}

// Info logs an info message with optional key/value pairs.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.current().Info(msg, keyvals...)
}

// Warn logs a warning with optional key/value pairs.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.current().Warn(msg, keyvals...)
}

// Error logs an error with optional key/value pairs.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.current().Error(msg, keyvals...)
}

func (l *Logger) current() *log.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

// Debugf logs a formatted debug message using the global logger.
func Debugf(format string, args ...interface{}) {
	GetLogger().current().Debugf(format, args...)
}

// Infof logs a formatted info message using the global logger.
func Infof(format string, args ...interface{}) {
	GetLogger().current().Infof(format, args...)
}

// Warnf logs a formatted warning using the global logger.
func Warnf(format string, args ...interface{}) {
	GetLogger().current().Warnf(format, args...)
}

// Errorf logs a formatted error using the global logger.
func Errorf(format string, args ...interface{}) {
	GetLogger().current().Errorf(format, args...)
}

// RedirectToFile sends the logger's output to a logfmt file for the
// lifetime of a full-screen session. Returns the file path.
func (l *Logger) RedirectToFile(path string) (string, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("taskmaster-%d.log", os.Getpid()))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	level := l.level
	if l.verbose {
		level = log.DebugLevel
	}
	l.base = log.NewWithOptions(file, log.Options{
		Level:           level,
		Prefix:          "taskmaster",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.LogfmtFormatter,
	})
	l.closer = file
	l.path = path
	return path, nil
}

// Close closes a file sink opened by RedirectToFile and falls back to
// discarding output.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	l.base.SetOutput(io.Discard)
	return err
}

// LogPath returns the active file sink path, if any.
func (l *Logger) LogPath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}
