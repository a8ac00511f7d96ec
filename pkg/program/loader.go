// Package program reads Espresso source into program lines.
package program

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/antibyte/espresso/pkg/logger"
)

var (
	// ErrFileNotFound is returned when the source file does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnreadable is returned when the source file exists but cannot be read.
	ErrUnreadable = errors.New("file unreadable")
)

// LoadFile reads the program at path.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	lines := Parse(string(data))
	logger.Info(logger.AreaProgram, "loaded %s: %d lines", path, len(lines))
	return lines, nil
}

// Parse splits source into lines. CRLF and CR line endings become LF, a
// UTF-8 byte order mark is dropped, and trailing whitespace is removed from
// every line. A final newline does not produce an extra empty line.
func Parse(source string) []string {
	source = strings.TrimPrefix(source, "\ufeff")
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")
	source = strings.TrimSuffix(source, "\n")
	if source == "" {
		return nil
	}

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return lines
}

// Join is the inverse of Parse for storage and transport.
func Join(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
