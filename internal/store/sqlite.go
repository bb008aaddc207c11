package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteFile = "minai.db"

func sqlitePath(dir string) string { return filepath.Join(dir, sqliteFile) }

// SQLiteStore keeps key/value records, directory visits and input history in a
// single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS visits (
	path TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	last_visit INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	line TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(context.Background(),
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Put(key string, value []byte) error {
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Visits implements VisitStore.
func (s *SQLiteStore) Visits() (map[string]Visit, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT path, count, last_visit FROM visits`)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Visit)
	for rows.Next() {
		var (
			path string
			v    Visit
		)
		if err := rows.Scan(&path, &v.Count, &v.LastVisit); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out[path] = v
	}
	return out, rows.Err()
}

// RecordVisit implements VisitStore.
func (s *SQLiteStore) RecordVisit(path string, v Visit) error {
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO visits (path, count, last_visit) VALUES (?, ?, ?)
ON CONFLICT(path) DO UPDATE SET count = excluded.count, last_visit = excluded.last_visit`,
		path, v.Count, v.LastVisit)
	if err != nil {
		return fmt.Errorf("record visit %s: %w", path, err)
	}
	return nil
}

// ClearVisits implements VisitStore.
func (s *SQLiteStore) ClearVisits() error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM visits`); err != nil {
		return fmt.Errorf("clear visits: %w", err)
	}
	return nil
}

// AppendHistory implements HistoryStore.
func (s *SQLiteStore) AppendHistory(line string) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO history (line, created_at) VALUES (?, ?)`, line, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History implements HistoryStore, returning at most limit lines oldest first.
func (s *SQLiteStore) History(limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(context.Background(), `
SELECT line FROM (SELECT id, line FROM history ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
