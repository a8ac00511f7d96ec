// Package store persists Espresso programs and run history in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/antibyte/espresso/pkg/logger"
)

var (
	// ErrProgramNotFound is returned when no program has the requested name.
	ErrProgramNotFound = errors.New("program not found")
	// ErrRunNotFound is returned when no run has the requested ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidName is returned for program names outside [A-Za-z0-9_.-]{1,64}.
	ErrInvalidName = errors.New("invalid program name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Database wraps the SQLite connection.
type Database struct {
	conn     *sql.DB
	Programs *ProgramStore
	Runs     *RunStore
}

// InitDB opens the SQLite database at dbPath and checks that it is reachable.
func InitDB(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// CreateTables ensures all required tables exist in the database.
func CreateTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			name TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			program TEXT NOT NULL,
			origin TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error_line INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			outputs INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Open initializes the database at dbPath and creates missing tables.
func Open(dbPath string, busyTimeout time.Duration) (*Database, error) {
	conn, err := InitDB(dbPath, busyTimeout)
	if err != nil {
		return nil, err
	}
	if err := CreateTables(conn); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info(logger.AreaDatabase, "database ready at %s", dbPath)
	return &Database{
		conn:     conn,
		Programs: &ProgramStore{db: conn},
		Runs:     &RunStore{db: conn},
	}, nil
}

// Close closes the connection.
func (d *Database) Close() error {
	return d.conn.Close()
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func fromMillis(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}

func newRunID() string {
	return uuid.New().String()
}
