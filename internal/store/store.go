package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial ledger log schema
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const metaGenesisHash = "genesis_hash"

// ErrGenesisMismatch is returned when a log is opened under a different
// genesis than the one it was written with.
var ErrGenesisMismatch = errors.New("log was written under a different genesis")

// Store provides durable storage for the action log.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path using the
// cgo driver.
func Open(path string) (*Store, error) {
	return OpenWithDriver(DriverCGO, path)
}

// OpenWithDriver creates or opens a SQLite database with the named driver.
// Applies required pragmas and the schema automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenWithDriver(driver, path string) (*Store, error) {
	if driver != DriverCGO && driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
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

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PinGenesis binds the log to a genesis hash. The first call records it;
// later calls return ErrGenesisMismatch if the hash differs.
func (s *Store) PinGenesis(ctx context.Context, hash string) error {
	var pinned string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaGenesisHash).Scan(&pinned)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)`, metaGenesisHash, hash); err != nil {
			return fmt.Errorf("pin genesis: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read pinned genesis: %w", err)
	case pinned != hash:
		return fmt.Errorf("%w: pinned %s, got %s", ErrGenesisMismatch, pinned, hash)
	default:
		return nil
	}
}

// GenesisHash returns the pinned genesis hash, or "" if none is pinned.
func (s *Store) GenesisHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaGenesisHash).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pinned genesis: %w", err)
	}
	return hash, nil
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
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
