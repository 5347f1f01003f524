// Package sqlcache provides a namespace cache persisted in SQLite.
//
// Importing the package registers the "sqlite" cache type:
//
//	cache: {type: sqlite, dsn: /var/cache/leapmap.db}
//
// Values are stored as JSON, so a hit returns the JSON-decoded form of the
// stored value (maps, slices, float64, string, bool).
package sqlcache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

func init() {
	cache.Register("sqlite", func(id string, logger *slog.Logger) core.Cache {
		return New(id, logger)
	})
}

// Store is a core.Cache backed by the cache_entries table. It is safe for
// concurrent use.
type Store struct {
	// DSN is the SQLite data source name, ":memory:" when empty
	DSN string `mapstructure:"dsn"`

	id     string
	db     *sql.DB
	logger *slog.Logger
}

// New creates an unopened store; Initialize opens it.
func New(id string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{id: id, logger: logger}
}

// NewWithDB creates a store on an already migrated database.
func NewWithDB(id string, db *sql.DB, logger *slog.Logger) *Store {
	s := New(id, logger)
	s.db = db
	return s
}

// Initialize opens the database and runs migrations. It is a no-op when the
// store already has a database.
func (s *Store) Initialize() error {
	if s.db != nil {
		return nil
	}
	dsn := s.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	s.logger.Debug("sqlite cache opened", "id", s.id, "dsn", dsn)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ID implements core.Cache.
func (s *Store) ID() string { return s.id }

// Put implements core.Cache.
func (s *Store) Put(key core.CacheKey, value any) error {
	if s.db == nil {
		return errors.New("sqlcache: database not opened")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlcache: encode %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO cache_entries (cache_id, key, key_hash, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_id, key) DO UPDATE SET value = excluded.value, key_hash = excluded.key_hash`,
		s.id, string(key), int64(cache.Hash(key)), raw,
	)
	if err != nil {
		return fmt.Errorf("sqlcache: put %s: %w", key, err)
	}
	return nil
}

// Get implements core.Cache.
func (s *Store) Get(key core.CacheKey) (any, bool, error) {
	if s.db == nil {
		return nil, false, errors.New("sqlcache: database not opened")
	}
	var raw []byte
	err := s.db.QueryRow(
		`SELECT value FROM cache_entries WHERE cache_id = ? AND key_hash = ? AND key = ?`,
		s.id, int64(cache.Hash(key)), string(key),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlcache: get %s: %w", key, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("sqlcache: decode %s: %w", key, err)
	}
	return v, true, nil
}

// Remove implements core.Cache.
func (s *Store) Remove(key core.CacheKey) error {
	if s.db == nil {
		return errors.New("sqlcache: database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE cache_id = ? AND key = ?`, s.id, string(key)); err != nil {
		return fmt.Errorf("sqlcache: remove %s: %w", key, err)
	}
	return nil
}

// Clear implements core.Cache.
func (s *Store) Clear() error {
	if s.db == nil {
		return errors.New("sqlcache: database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE cache_id = ?`, s.id); err != nil {
		return fmt.Errorf("sqlcache: clear: %w", err)
	}
	return nil
}

// Size implements core.Cache. Query failures are logged and reported as zero.
func (s *Store) Size() int {
	if s.db == nil {
		return 0
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE cache_id = ?`, s.id).Scan(&n); err != nil {
		s.logger.Warn("sqlite cache size failed", "id", s.id, "error", err)
		return 0
	}
	return n
}
