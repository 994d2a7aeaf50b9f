package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDB is a settings database holding any number of named areas.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to settings database: %w", err)
	}

	s := &SQLiteDB{db: db, path: path}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) ensureSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS kv (
		area TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (area, key)
	)`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to initialize settings schema: %w", err)
	}
	return nil
}

// Path returns the database file.
func (s *SQLiteDB) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteDB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Area returns the named area. quota limits item size when positive.
func (s *SQLiteDB) Area(name string, quota int) *SQLiteArea {
	return &SQLiteArea{db: s.db, name: name, quota: quota}
}

// SQLiteArea is one area inside a SQLiteDB.
type SQLiteArea struct {
	db    *sql.DB
	name  string
	quota int
}

func (a *SQLiteArea) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := a.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE area = ? AND key = ?`, a.name, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", a.name, key, err)
	}
	return value, true, nil
}

func (a *SQLiteArea) Set(ctx context.Context, key string, value []byte) error {
	if a.quota > 0 && len(value) > a.quota {
		return fmt.Errorf("%s: %d bytes: %w", key, len(value), ErrQuotaExceeded)
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO kv (area, key, value) VALUES (?, ?, ?)
		ON CONFLICT (area, key) DO UPDATE SET value = excluded.value
	`, a.name, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", a.name, key, err)
	}
	return nil
}

func (a *SQLiteArea) Remove(ctx context.Context, key string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM kv WHERE area = ? AND key = ?`, a.name, key); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", a.name, key, err)
	}
	return nil
}
