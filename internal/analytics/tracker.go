package analytics

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"taskmaster/internal/utils"
)

// Tracker handles analytics event recording
type Tracker struct {
	db      *sql.DB
	enabled bool
	source  string
	mu      sync.Mutex
	pending sync.WaitGroup
}

// NewTracker creates a new analytics tracker.
// If enabled is false, tracking is disabled but the database is still created.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		db:      db,
		enabled: enabled,
		source:  "cli",
	}, nil
}

// SetSource labels subsequent events (cli or tui).
func (t *Tracker) SetSource(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = source
}

// Enabled reports whether events are recorded.
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Close waits for queued events and closes the database connection
func (t *Tracker) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	t.pending.Wait()
	return t.db.Close()
}

// Track runs fn and records its outcome. fn is always executed; events are
// only recorded when analytics is enabled. A nil tracker just runs fn.
func (t *Tracker) Track(operation string, fn func() error) error {
	if !t.Enabled() {
		return fn()
	}

	start := time.Now()
	err := fn()

	t.mu.Lock()
	source := t.source
	t.mu.Unlock()

	event := Event{
		Timestamp:  start.Unix(),
		Operation:  operation,
		Source:     source,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		ErrorKind:  string(utils.Classify(err)),
	}

	// Log asynchronously to avoid slowing down the caller
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.logEvent(event)
	}()

	return err
}

// Flush blocks until queued events are written.
func (t *Tracker) Flush() {
	if t != nil {
		t.pending.Wait()
	}
}

// logEvent records an event to the database
func (t *Tracker) logEvent(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(`
		INSERT INTO events (timestamp, operation, source, success, duration_ms, error_kind)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.Timestamp, event.Operation, nullString(event.Source),
		boolToInt(event.Success), event.DurationMs, nullString(event.ErrorKind))
	if err != nil {
		utils.GetLogger().Debug("analytics insert failed", "err", err)
	}
}

// Summary aggregates events newer than since, one row per operation,
// most frequent first.
func (t *Tracker) Summary(since time.Time) ([]OperationSummary, error) {
	t.Flush()

	rows, err := t.db.Query(`
		SELECT operation,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       CAST(COALESCE(AVG(duration_ms), 0) AS INTEGER),
		       (SELECT e2.error_kind FROM events e2
		         WHERE e2.operation = events.operation AND e2.success = 0 AND e2.timestamp >= ?
		         ORDER BY e2.timestamp DESC, e2.id DESC LIMIT 1)
		FROM events
		WHERE timestamp >= ?
		GROUP BY operation
		ORDER BY COUNT(*) DESC, operation ASC
	`, since.Unix(), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query analytics summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OperationSummary
	for rows.Next() {
		var s OperationSummary
		var lastError sql.NullString
		if err := rows.Scan(&s.Operation, &s.Count, &s.Failures, &s.AvgMs, &lastError); err != nil {
			return nil, fmt.Errorf("scan analytics summary: %w", err)
		}
		s.LastError = lastError.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	t.Flush()
	cutoff := time.Now().Unix() - int64(retentionDays*86400)

	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		_, _ = t.db.Exec("VACUUM")
	}

	return deleted, nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
