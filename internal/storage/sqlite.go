package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial kv table
// 1 - Added kv_json view for reporting queries
const currentSchemaVersion = 1

// SQLiteBackend is the relational single-file engine.
// Uses SQLite with WAL mode and a single connection.
type SQLiteBackend struct {
	mu   sync.RWMutex
	path string
	db   *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (FULL after Persist)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteBackend{path: path, db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

func (s *SQLiteBackend) Kind() Kind { return KindSQLite }

// Path returns the database file path.
func (s *SQLiteBackend) Path() string { return s.path }

func (s *SQLiteBackend) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMany(ctx, []Entry{{Key: key, Value: value}})
}

// SetMany upserts or deletes all entries in one transaction.
func (s *SQLiteBackend) SetMany(ctx context.Context, entries []Entry) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		if e.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, e.Key); err != nil {
				return fmt.Errorf("remove %q: %w", e.Key, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, e.Key, string(e.Value), now)
		if err != nil {
			return classifyWriteError(e.Key, fmt.Errorf("set %q: %w", e.Key, err))
		}
	}

	if err := tx.Commit(); err != nil {
		key := ""
		if len(entries) > 0 {
			key = entries[0].Key
		}
		return classifyWriteError(key, fmt.Errorf("set: commit: %w", err))
	}
	return nil
}

func (s *SQLiteBackend) Remove(ctx context.Context, key string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteBackend) Clear(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Usage reports the database size in pages. The quota is the file size plus
// what the filesystem still has available.
func (s *SQLiteBackend) Usage(ctx context.Context) (Usage, error) {
	db, err := s.handle()
	if err != nil {
		return Usage{}, err
	}
	var pageCount, pageSize int64
	if err := db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return Usage{}, fmt.Errorf("page_count: %w", err)
	}
	if err := db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return Usage{}, fmt.Errorf("page_size: %w", err)
	}

	u := Usage{UsedBytes: pageCount * pageSize}
	if avail := diskAvailable(s.path); avail > 0 {
		u.QuotaBytes = u.UsedBytes + avail
	}
	return u, nil
}

// Persist switches to synchronous=FULL so every commit is flushed before it
// returns.
func (s *SQLiteBackend) Persist(ctx context.Context) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA synchronous = FULL`); err != nil {
		return false, fmt.Errorf("persist: %w", err)
	}
	return true, nil
}

// Query runs query on a separate read-only connection and returns every row
// as a column-name map. Statements that write fail without touching the
// store.
func (s *SQLiteBackend) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if _, err := s.handle(); err != nil {
		return nil, err
	}
	db, err := openReadOnly(s.path, false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

// openReadOnly opens path without write access and without applying pragmas
// or schema. An immutable file is read with no locking and no WAL, which
// suits a backup that nothing else has open.
func openReadOnly(path string, immutable bool) (*sql.DB, error) {
	dsn := "file:" + filepath.ToSlash(path) + "?mode=ro"
	if immutable {
		dsn += "&immutable=1"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s read-only: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s read-only: %w", path, err)
	}
	return db, nil
}

// VerifyDatabase checks that path is a database this engine wrote: a SQLite
// file that passes a quick integrity check and holds the kv table. The file
// is opened read-only and left untouched.
func VerifyDatabase(ctx context.Context, path string) error {
	db, err := openReadOnly(path, true)
	if err != nil {
		return err
	}
	defer db.Close()

	var check string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&check); err != nil {
		return fmt.Errorf("check %s: %w", path, err)
	}
	if check != "ok" {
		return fmt.Errorf("check %s: %s", path, check)
	}
	var tables int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'kv'`).Scan(&tables)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}
	if tables == 0 {
		return fmt.Errorf("%s has no kv table", path)
	}
	return nil
}

// SnapshotTo writes a transactionally consistent copy of the database to dst
// using VACUUM INTO. dst must not exist.
func (s *SQLiteBackend) SnapshotTo(ctx context.Context, dst string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("snapshot: %s already exists", dst)
	}
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return classifyWriteError(dst, fmt.Errorf("snapshot to %s: %w", dst, err))
	}
	return nil
}

// Reopen opens the database file again after Close.
func (s *SQLiteBackend) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	db, err := openDB(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// Close closes the database connection. Close is idempotent.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds a view exposing only well-formed JSON values, so reporting
// queries can call json_extract without guarding every row.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE VIEW IF NOT EXISTS kv_json AS
		SELECT key, value, updated_at FROM kv WHERE json_valid(value)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteBackend) verifyPragma(name, expected string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
