package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Storage backends accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const (
	syncFileName   = "sync.json"
	localFileName  = "local.json"
	sqliteFileName = "settings.db"
)

// Backends lists the values accepted by Open.
func Backends() []string {
	return []string{BackendFile, BackendSQLite}
}

// Open returns a store kept under dir using the named backend. Path reports
// dir for the file backend and the database file for sqlite.
func Open(ctx context.Context, dir, backend string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	switch backend {
	case BackendFile, "":
		syncArea := NewFileArea(filepath.Join(dir, syncFileName), SyncQuotaBytesPerItem)
		localArea := NewFileArea(filepath.Join(dir, localFileName), 0)
		return New(syncArea, localArea, append([]Option{WithPath(dir)}, opts...)...), nil
	case BackendSQLite:
		path := filepath.Join(dir, sqliteFileName)
		db, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		s := New(db.Area("sync", SyncQuotaBytesPerItem), db.Area("local", 0), append([]Option{WithPath(path)}, opts...)...)
		s.closer = db
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
