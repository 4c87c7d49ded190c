// Package logstore persists application log records in SQLite and serves
// them back for the log API, retention cleanup, and daily archives.
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql

	"github.com/snospb/vk-sno-bot/internal/config"
)

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 10000

	// RecentErrorsLimit caps Stats.RecentErrors.
	RecentErrorsLimit = 50
)

// Entry is one stored log record.
type Entry struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Filter selects entries for Query.
type Filter struct {
	Level       string    // Minimum severity; empty means info
	Limit       int       // 0 means DefaultLimit
	Since       time.Time // Zero means no lower bound
	Until       time.Time // Zero means no upper bound (exclusive)
	IncludeMeta bool
	Oldest      bool // Ascending order instead of newest first
}

// Stats summarizes the store.
type Stats struct {
	Total        int64            `json:"total"`
	ByLevel      map[string]int64 `json:"by_level"`
	ByHour       map[string]int64 `json:"by_hour"`
	RecentErrors []Entry          `json:"recent_errors"`
}

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log store directory: %w", err)
			}
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		path, config.DatabaseBusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open log store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping log store: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		meta TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_log_entries_timestamp ON log_entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_log_entries_level_timestamp ON log_entries(level, timestamp);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create log_entries table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert stores e. A zero timestamp means now.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	level, ok := ParseLevel(e.Level)
	if !ok {
		level = LevelInfo
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	var meta sql.NullString
	if len(e.Meta) > 0 {
		data, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshal log meta: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_entries (timestamp, level, message, meta) VALUES (?, ?, ?, ?)`,
		ts.UnixMilli(), level, e.Message, meta)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count log entries: %w", err)
	}
	return n, nil
}

// CountLevel returns the number of entries with exactly level.
func (s *Store) CountLevel(ctx context.Context, level string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries WHERE level = ?`, level).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s entries: %w", level, err)
	}
	return n, nil
}

// Query returns entries at or above f.Level, newest first unless f.Oldest.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	level, ok := ParseLevel(f.Level)
	if !ok {
		level = LevelInfo
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	levels := AtOrAbove(level)
	args := make([]any, 0, len(levels)+3)
	for _, l := range levels {
		args = append(args, l)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, timestamp, level, message, meta FROM log_entries WHERE level IN (`)
	sb.WriteString(strings.TrimSuffix(strings.Repeat("?,", len(levels)), ","))
	sb.WriteString(`)`)
	if !f.Since.IsZero() {
		sb.WriteString(` AND timestamp >= ?`)
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		sb.WriteString(` AND timestamp < ?`)
		args = append(args, f.Until.UnixMilli())
	}
	if f.Oldest {
		sb.WriteString(` ORDER BY timestamp ASC, id ASC`)
	} else {
		sb.WriteString(` ORDER BY timestamp DESC, id DESC`)
	}
	sb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0, min(limit, 256))
	for rows.Next() {
		var (
			e    Entry
			ms   int64
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &ms, &e.Level, &e.Message, &meta); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ms).UTC()
		if f.IncludeMeta && meta.Valid && meta.String != "" {
			// A corrupt meta column drops the meta, not the entry.
			_ = json.Unmarshal([]byte(meta.String), &e.Meta)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}

// Stats returns totals by level and by UTC hour of day plus the latest errors.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByLevel: make(map[string]int64, len(Levels)),
		ByHour:  make(map[string]int64, 24),
	}
	for _, l := range Levels {
		st.ByLevel[l] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(*) FROM log_entries GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("stats by level: %w", err)
	}
	if err := scanCounts(rows, func(k string, n int64) {
		st.ByLevel[k] = n
		st.Total += n
	}); err != nil {
		return nil, fmt.Errorf("stats by level: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT strftime('%H', timestamp / 1000, 'unixepoch') AS hour, COUNT(*) FROM log_entries GROUP BY hour`)
	if err != nil {
		return nil, fmt.Errorf("stats by hour: %w", err)
	}
	if err := scanCounts(rows, func(k string, n int64) { st.ByHour[k] = n }); err != nil {
		return nil, fmt.Errorf("stats by hour: %w", err)
	}

	st.RecentErrors, err = s.Query(ctx, Filter{Level: LevelError, Limit: RecentErrorsLimit, IncludeMeta: true})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func scanCounts(rows *sql.Rows, fn func(key string, n int64)) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			key sql.NullString
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key.String, n)
	}
	return rows.Err()
}

// Cleanup deletes entries older than days and returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, errors.New("cleanup: days cannot be negative")
	}
	cutoff := s.now().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx, `DELETE FROM log_entries WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleanup log entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup log entries: %w", err)
	}
	return n, nil
}
