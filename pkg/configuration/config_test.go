package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "espresso.cfg")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Load must not create %s", path)
	}
	if got := GetString("Console", "retry_prompt", ""); got != "Please enter a valid integer number: " {
		t.Errorf("retry_prompt = %q", got)
	}
	if !GetBool("Interpreter", "statement_cache", false) {
		t.Errorf("statement cache should default to on")
	}
	if got := GetDuration("Server", "pong_timeout", 0); got != 60*time.Second {
		t.Errorf("pong_timeout = %v", got)
	}
}

func TestFileAndLocalOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "espresso.cfg")

	base := `; comment
[Interpreter]
statement_cache = false

[Server]
listen = :9000
max_message_size_kb = lots

# another comment
[Custom]
answer = 42
`
	local := `[Server]
listen = 127.0.0.1:9001
`
	if err := os.WriteFile(path, []byte(base), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, LocalPath), []byte(local), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"file overrides default", GetBool("Interpreter", "statement_cache", true), false},
		{"local overrides file", GetString("Server", "listen", ""), "127.0.0.1:9001"},
		{"unparsable int falls back", GetInt("Server", "max_message_size_kb", 7), 7},
		{"custom section", GetInt("Custom", "answer", 0), 42},
		{"untouched default", GetString("JWT", "issuer", ""), "espresso"},
		{"unknown key", GetString("Custom", "missing", "fallback"), "fallback"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	section := GetSection("Custom")
	section["answer"] = "changed"
	if GetInt("Custom", "answer", 0) != 42 {
		t.Errorf("GetSection must return a copy")
	}
}

func TestSetStringAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "espresso.cfg")

	if err := Load(path); err != nil {
		t.Fatal(err)
	}
	SetString("Auth", "access_key_hash", "$2a$12$abc")
	if err := Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "[Auth]\naccess_key_hash = $2a$12$abc\n") {
		t.Errorf("saved file missing auth section:\n%s", text)
	}
	if strings.Index(text, "[Interpreter]") > strings.Index(text, "[Debug]") {
		t.Errorf("sections written out of order")
	}

	if err := Load(path); err != nil {
		t.Fatal(err)
	}
	if got := GetString("Auth", "access_key_hash", ""); got != "$2a$12$abc" {
		t.Errorf("reloaded hash = %q", got)
	}
}

func TestPathFromEnvironment(t *testing.T) {
	t.Setenv(PathEnv, "/etc/espresso/custom.cfg")
	if got := Path(); got != "/etc/espresso/custom.cfg" {
		t.Errorf("Path() = %q", got)
	}
	t.Setenv(PathEnv, "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q, want %q", got, DefaultPath)
	}
}
