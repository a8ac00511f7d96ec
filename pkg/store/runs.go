package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/espresso/pkg/espresso"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run origins.
const (
	OriginCLI    = "cli"
	OriginServer = "server"
)

// RunRecord is one entry of the run history.
type RunRecord struct {
	ID           string     `json:"id"`
	Program      string     `json:"program"`
	Origin       string     `json:"origin"`
	Status       string     `json:"status"`
	ErrorKind    string     `json:"errorKind,omitempty"`
	ErrorLine    int        `json:"errorLine,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Outputs      int        `json:"outputs"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// RunStore records program runs.
type RunStore struct {
	db *sql.DB
}

// Start records a new running entry for program and returns it.
func (s *RunStore) Start(programName, origin string) (*RunRecord, error) {
	rec := &RunRecord{
		ID:        newRunID(),
		Program:   programName,
		Origin:    origin,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	_, err := s.db.Exec(`INSERT INTO runs (id, program, origin, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Program, rec.Origin, rec.Status, millis(rec.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return rec, nil
}

// Finish stores the outcome of run id. runErr is the error returned by
// Execute, nil for a clean run.
func (s *RunStore) Finish(id string, outputs int, runErr error) error {
	status, kind, line, message := outcome(runErr)
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, error_kind = ?, error_line = ?, error_message = ?, outputs = ?, finished_at = ?
		WHERE id = ?`,
		status, kind, line, message, outputs, millis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func outcome(runErr error) (status, kind string, line int, message string) {
	if runErr == nil {
		return StatusOK, "", 0, ""
	}
	var se *espresso.ScriptError
	if !errors.As(runErr, &se) {
		return StatusFailed, "", 0, runErr.Error()
	}
	status = StatusFailed
	if se.Kind == espresso.KindCancelled {
		status = StatusCancelled
	}
	return status, se.Kind.String(), se.Line, se.Message
}

// Get returns run id.
func (s *RunStore) Get(id string) (*RunRecord, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, err
}

// Recent returns up to limit runs, newest first.
func (s *RunStore) Recent(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

const runColumns = `id, program, origin, status, error_kind, error_line, error_message, outputs, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		rec      RunRecord
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.Program, &rec.Origin, &rec.Status, &rec.ErrorKind,
		&rec.ErrorLine, &rec.ErrorMessage, &rec.Outputs, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	rec.StartedAt = fromMillis(started)
	if finished.Valid {
		t := fromMillis(finished.Int64)
		rec.FinishedAt = &t
	}
	return &rec, nil
}
