package database

import (
	"context"
	"database/sql"
	"fmt"

	"mirror-go/internal/database/migrations"
	"mirror-go/internal/mirror"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements mirror.Database on SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock mirror.Clock
	idgen mirror.IDGenerator
}

// NewSQLiteDatabase opens a SQLite database. path can be a file path or
// ":memory:". clock and idgen default to the real implementations when nil.
// The schema is not migrated; see Migrate.
func NewSQLiteDatabase(path string, clock mirror.Clock, idgen mirror.IDGenerator) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteDatabaseFromDB(db, clock, idgen)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is configured by OpenConnection.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock mirror.Clock, idgen mirror.IDGenerator) *SQLiteDatabase {
	if clock == nil {
		clock = mirror.RealClock{}
	}
	if idgen == nil {
		idgen = mirror.UUIDGenerator{}
	}
	return &SQLiteDatabase{db: db, clock: clock, idgen: idgen}
}

// OpenConnection opens a SQLite connection with foreign keys enforced.
// File databases use WAL and a busy timeout so readers do not block the
// writer. An in-memory database is pinned to a single connection because
// each connection would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx. Helpers take a querier so the
// same code runs inside or outside a transaction; inside a transaction every
// statement must go through the tx, since an in-memory database has only
// one connection.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing when it returns nil.
func withTx[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	v, err := fn(tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("committing transaction: %w", err)
	}
	return v, nil
}

// Compile-time check that SQLiteDatabase implements mirror.Database
var _ mirror.Database = (*SQLiteDatabase)(nil)
