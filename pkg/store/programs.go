package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/program"
)

// ProgramInfo describes a stored program without its source.
type ProgramInfo struct {
	Name      string    `json:"name"`
	Lines     int       `json:"lines"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProgramStore keeps named program sources.
type ProgramStore struct {
	db *sql.DB
}

// ValidName reports whether name can be used for a stored program.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Save stores source under name, replacing an existing program.
func (s *ProgramStore) Save(name, source string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	now := millis(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO programs (name, source, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`,
		name, program.Join(program.Parse(source)), now, now)
	if err != nil {
		return fmt.Errorf("failed to save program %s: %w", name, err)
	}
	logger.Info(logger.AreaDatabase, "saved program %s", name)
	return nil
}

// Source returns the stored text of name.
func (s *ProgramStore) Source(name string) (string, error) {
	var source string
	err := s.db.QueryRow(`SELECT source FROM programs WHERE name = ?`, name).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load program %s: %w", name, err)
	}
	return source, nil
}

// Load returns the program lines of name.
func (s *ProgramStore) Load(name string) ([]string, error) {
	source, err := s.Source(name)
	if err != nil {
		return nil, err
	}
	return program.Parse(source), nil
}

// List returns all stored programs ordered by name.
func (s *ProgramStore) List() ([]ProgramInfo, error) {
	rows, err := s.db.Query(`SELECT name, source, created_at, updated_at FROM programs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var programs []ProgramInfo
	for rows.Next() {
		var (
			info             ProgramInfo
			source           string
			created, updated int64
		)
		if err := rows.Scan(&info.Name, &source, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		info.Lines = len(program.Parse(source))
		info.CreatedAt = fromMillis(created)
		info.UpdatedAt = fromMillis(updated)
		programs = append(programs, info)
	}
	return programs, rows.Err()
}

// Delete removes name.
func (s *ProgramStore) Delete(name string) error {
	res, err := s.db.Exec(`DELETE FROM programs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete program %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return nil
}
