package sqlitestore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DBFile is the database file name inside the store directory.
const DBFile = "tracking.db"

// Store is the sqlite-backed tracking backend. It satisfies
// tracking.Client and additionally exposes the backend-admin surface a
// tracking server would own (experiment creation, status transitions,
// artifact logging).
type Store struct {
	db           *sql.DB
	dir          string
	artifactRoot string
	uri          string
	idgen        IDGenerator
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides how run and experiment ids are minted.
// Tests use FixedGenerator for deterministic ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.idgen = g
	}
}

// WithClock overrides the time source for start/end/created stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates or opens the tracking store rooted at dir. The database
// lives at <dir>/tracking.db and artifact bytes under <dir>/artifacts/.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
//
// Open is idempotent; the schema is applied with IF NOT EXISTS.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store dir: %w", err)
	}

	dbPath := filepath.Join(absDir, DBFile)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// sqlite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:           db,
		dir:          absDir,
		artifactRoot: filepath.Join(absDir, "artifacts"),
		uri:          "sqlite:///" + dbPath,
		idgen:        UUIDGenerator{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TrackingURI identifies this backend: sqlite:///<absolute db path>.
// Local index entries record it so cached run ids are never trusted
// against a different workspace.
func (s *Store) TrackingURI() string {
	return s.uri
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
