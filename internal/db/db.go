package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) a writable cache database and brings its
// schema up to date.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fileDSN(dbPath, "rwc"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas are per connection and the store has a single writer anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	if err := execPragmas(db, pragmas); err != nil {
		db.Close()
		return nil, err
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, nil
}

// fileDSN builds a SQLite URI for path opened with the given access mode.
// Characters such as '?' and '#' are percent-escaped so they stay part of
// the file name.
func fileDSN(path, mode string) string {
	u := url.URL{Scheme: "file", Path: path, OmitHost: true, RawQuery: "mode=" + mode}
	return u.String()
}

// OpenReadOnly opens an existing cache database without write access. The
// file is never created.
func OpenReadOnly(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fileDSN(dbPath, "ro"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := execPragmas(db, []string{"PRAGMA busy_timeout=5000;"}); err != nil {
		db.Close()
		return nil, err
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('requests', 'responses')").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	if count != 2 {
		db.Close()
		return nil, fmt.Errorf("%s is not a replay cache", dbPath)
	}

	return db, nil
}

// Checkpoint folds the write-ahead log back into the main database file and
// leaves it in rollback-journal mode, so the file can be moved or opened
// read-only on its own.
func Checkpoint(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode=DELETE;").Scan(&mode); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if mode != "delete" {
		return fmt.Errorf("checkpoint: journal mode is still %q", mode)
	}
	return nil
}

func execPragmas(db *sql.DB, pragmas []string) error {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			migrations = append(migrations, e.Name())
		}
	}
	sort.Strings(migrations)

	for _, name := range migrations {
		version, err := parseVersion(name)
		if err != nil {
			return fmt.Errorf("parse version from %s: %w", name, err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.ToSlash(filepath.Join("migrations", name)))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}

		if _, err := db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().Unix()); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}

	return nil
}

func parseVersion(filename string) (int, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return strconv.Atoi(parts[0])
}
