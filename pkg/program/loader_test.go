package program

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected []string
	}{
		{"empty", "", nil},
		{"single newline", "\n", nil},
		{"unix", "x = 1\nprint x\n", []string{"x = 1", "print x"}},
		{"no final newline", "x = 1\nprint x", []string{"x = 1", "print x"}},
		{"windows", "x = 1\r\nif x == 1\r\n    print x\r\n", []string{"x = 1", "if x == 1", "    print x"}},
		{"old mac", "x = 1\rprint x", []string{"x = 1", "print x"}},
		{"bom", "\ufeffprint 1\n", []string{"print 1"}},
		{"trailing whitespace", "print 1   \t\n    \nprint 2", []string{"print 1", "", "print 2"}},
		{"keeps indentation", "if 1 == 1\n    print 1\n", []string{"if 1 == 1", "    print 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.source)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Parse(%q) = %q, want %q", tt.source, got, tt.expected)
			}
		})
	}
}

func TestJoinRoundTrip(t *testing.T) {
	lines := []string{"x = 1", "if x == 1", "    print x"}
	if got := Parse(Join(lines)); !reflect.DeepEqual(got, lines) {
		t.Errorf("round trip = %q", got)
	}
	if Join(nil) != "" {
		t.Errorf("Join(nil) should be empty")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "add.esp")
	if err := os.WriteFile(path, []byte("input a\r\nprint a + 1\r\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lines, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if want := []string{"input a", "print a + 1"}; !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "missing.esp")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("missing file: got %v", err)
	}

	// Reading a directory fails on every platform.
	if _, err := LoadFile(dir); !errors.Is(err, ErrUnreadable) {
		t.Errorf("directory: got %v", err)
	}

	if runtime.GOOS != "windows" && os.Getuid() != 0 {
		path := filepath.Join(dir, "secret.esp")
		if err := os.WriteFile(path, []byte("print 1\n"), 0000); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); !errors.Is(err, ErrUnreadable) {
			t.Errorf("unreadable file: got %v", err)
		}
	}
}
