package kvstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SqliteStore is a sqlite-backed Store. It persists the durable namespace
// across process restarts: connector availability, the active transaction
// id, and anything else that must survive a reboot of the charge point.
type SqliteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSqliteStore opens (creating if needed) the sqlite file at path and
// migrates its schema.
func OpenSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	// A single connection avoids SQLITE_BUSY from the driver's own
	// concurrent access; kv traffic here is low-volume and latency
	// doesn't matter.
	db.SetMaxOpenConns(1)

	s := &SqliteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("durable store pragma %q: %w", p, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("durable store migrate: %w", err)
	}
	return nil
}

// Get returns the stored value, or def if key is unset or the read fails.
func (s *SqliteStore) Get(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		return def
	}
	return value
}

// Put stores value at key, overwriting any existing value.
func (s *SqliteStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		// Durable writes are best-effort: a failed persist is dropped
		// silently (the key keeps its previous stored value, if any)
		// rather than crashing the charge point loop.
		return
	}
}

// Close releases the underlying database handle.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}
