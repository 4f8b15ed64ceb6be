// Package store implements the engine.Database persistent key-value
// store (§6) on top of SQLite, the way jroosing-HydraDNS's
// internal/database package opens and migrates its own SQLite file:
// a WAL-mode connection opened through database/sql, schema managed by
// golang-migrate against an embedded migration.
//
// A in-process LRU/MFA cache (internal/store/specialized, adapted from
// the teacher's cache) sits in front of the SQLite connection so a
// fresh cache hit (Testable Property 1) never touches disk.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mikispag/dnscache/internal/engine"
	"github.com/mikispag/dnscache/internal/store/specialized"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultMemoSize = 65536

// Store is a SQLite-backed engine.Database with an in-process
// memoization layer in front of it.
type Store struct {
	conn *sql.DB
	memo *specialized.Cache
}

// Open opens or creates the SQLite database at path and applies
// pending migrations. memoSize is the capacity of the in-process
// cache; 0 selects a default.
func Open(path string, memoSize int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if memoSize == 0 {
		memoSize = defaultMemoSize
	}
	memo, err := specialized.NewCache(memoSize, false)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: memo cache: %w", err)
	}

	s := &Store{conn: conn, memo: memo}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("store: migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get implements engine.Database.
func (s *Store) Get(dom string) (*engine.CacheEntry, error) {
	if v, ok := s.memo.Get(dom); ok {
		ce, _ := v.(*engine.CacheEntry)
		return ce, nil
	}
	var buf []byte
	err := s.conn.QueryRow(`SELECT entry FROM cache_entries WHERE domain = ?`, dom).Scan(&buf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", dom, err)
	}
	ce, err := decodeEntry(buf)
	if err != nil {
		return nil, fmt.Errorf("store: decode %q: %w", dom, err)
	}
	s.memo.Put(dom, ce)
	return ce, nil
}

// Put implements engine.Database. It is an idempotent overwrite; the
// caller is responsible for calling Flush once a batch of Puts needs to
// be durable.
func (s *Store) Put(dom string, entry *engine.CacheEntry) error {
	buf, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", dom, err)
	}
	_, err = s.conn.Exec(
		`INSERT INTO cache_entries (domain, entry, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET entry = excluded.entry, updated_at = excluded.updated_at`,
		dom, buf, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: put %q: %w", dom, err)
	}
	s.memo.Put(dom, entry)
	return nil
}

// Flush implements engine.Database. With synchronous=NORMAL, commits in
// WAL mode are not synced one by one; the TRUNCATE checkpoint syncs the
// WAL and writes it back into the main database file, which is what
// gives a crash after Flush the same durability guarantee the spec's
// leveldb-backed original got from its own flush().
func (s *Store) Flush() error {
	_, err := s.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	if err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}
	return nil
}

// Delete removes dom from the store. It is deliberately not part of
// the engine.Database interface (§9): only the CLI's --delete flag
// calls it, before the engine is constructed.
func (s *Store) Delete(dom string) error {
	if _, err := s.conn.Exec(`DELETE FROM cache_entries WHERE domain = ?`, dom); err != nil {
		return fmt.Errorf("store: delete %q: %w", dom, err)
	}
	s.memo.Put(dom, (*engine.CacheEntry)(nil))
	return nil
}
