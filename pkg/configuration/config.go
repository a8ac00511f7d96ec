package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPath is used when ESPRESSO_CONFIG is not set.
	DefaultPath = "espresso.cfg"
	// LocalPath holds per-machine overrides, loaded after the main file.
	LocalPath = "espresso.local.cfg"
	// PathEnv names the environment variable that overrides DefaultPath.
	PathEnv = "ESPRESSO_CONFIG"
)

// Config holds INI-style settings grouped by section.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// Path returns the configuration file to use.
func Path() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Initialize loads the global configuration once. A missing file is not an
// error: the built-in defaults are used and nothing is written to disk.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		err = Load(configPath)
	})
	return err
}

// Load replaces the global configuration with the contents of configPath,
// overlaid by espresso.local.cfg from the same directory if present.
func Load(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	local := filepath.Join(filepath.Dir(configPath), LocalPath)
	if _, statErr := os.Stat(local); statErr == nil {
		if err := cfg.mergeFile(local); err != nil {
			return fmt.Errorf("failed to load %s: %w", local, err)
		}
	}
	globalConfig = cfg
	return nil
}

func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	config.createDefaultConfig()

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return config, nil
	}
	if err := config.mergeFile(filePath); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) mergeFile(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()
	return c.merge(file)
}

// merge reads "[Section]" headers and "key = value" pairs from r. Values
// override what is already set. Lines starting with ';' or '#' are comments.
func (c *Config) merge(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scanner := bufio.NewScanner(r)
	currentSection := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if c.settings[currentSection] == nil {
				c.settings[currentSection] = make(map[string]string)
			}
			continue
		}

		if strings.Contains(line, "=") && currentSection != "" {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			c.settings[currentSection][key] = value
		}
	}
	return scanner.Err()
}

// createDefaultConfig fills in every setting the program reads.
func (c *Config) createDefaultConfig() {
	c.settings["Interpreter"] = map[string]string{
		"statement_cache": "true",
	}

	c.settings["Console"] = map[string]string{
		"input_prompt": "Enter an integer number for variable {{.Name}}: ",
		"retry_prompt": "Please enter a valid integer number: ",
	}

	c.settings["Database"] = map[string]string{
		"path":            "espresso.db",
		"record_cli_runs": "false",
		"busy_timeout":    "5s",
	}

	c.settings["Server"] = map[string]string{
		"listen":              ":8080",
		"allowed_origins":     "",
		"max_clients":         "100",
		"max_message_size_kb": "64",
		"max_program_size_kb": "256",
		"max_run_time":        "10m",
		"pong_timeout":        "60s",
		"ping_interval":       "50s",
		"write_wait_timeout":  "10s",
		"runs_page_size":      "20",
	}

	c.settings["Auth"] = map[string]string{
		"access_key_hash":    "",
		"password_hash_cost": "12",
	}

	c.settings["JWT"] = map[string]string{
		"secret":           "",
		"expiration_hours": "24",
		"issuer":           "espresso",
	}

	c.settings["TLS"] = map[string]string{
		"enabled":              "false",
		"letsencrypt":          "false",
		"domain":               "",
		"email":                "",
		"cache_dir":            "certs",
		"cert_file":            "certs/server.crt",
		"key_file":             "certs/server.key",
		"http_port":            "80",
		"https_port":           "443",
		"force_https_redirect": "false",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "false",
		"log_level":            "INFO",
		"log_file":             "espresso.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_interpreter":      "false",
		"log_console":          "false",
		"log_program":          "true",
		"log_database":         "true",
		"log_server":           "true",
		"log_websocket":        "false",
		"log_auth":             "true",
		"log_security":         "true",
		"log_config":           "true",
		"log_general":          "true",
	}
}

var sectionOrder = []string{"Interpreter", "Console", "Database", "Server", "Auth", "JWT", "TLS", "Debug"}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, "; Espresso configuration file")
	fmt.Fprintln(w, "; Generated automatically - modify with care")
	fmt.Fprintln(w)

	sections := append([]string(nil), sectionOrder...)
	for name := range c.settings {
		if !contains(sectionOrder, name) {
			sections = append(sections, name)
		}
	}

	for _, section := range sections {
		settings, exists := c.settings[section]
		if !exists {
			continue
		}
		fmt.Fprintf(w, "[%s]\n", section)
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetString returns a setting or defaultValue when it is absent.
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	if sectionMap, exists := globalConfig.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}
	return defaultValue
}

// GetInt returns an integer setting. Unparsable values yield defaultValue.
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetBool returns a boolean setting. Unparsable values yield defaultValue.
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration returns a duration setting such as "30s".
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetSection returns a copy of all key-value pairs of a section.
func GetSection(sectionName string) map[string]string {
	result := make(map[string]string)
	if globalConfig == nil {
		return result
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	for key, value := range globalConfig.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString changes a setting in memory. Call Save to persist it.
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}

	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// FilePath returns the file the configuration was loaded from and is saved to.
func FilePath() string {
	if globalConfig == nil {
		return ""
	}
	return globalConfig.filePath
}

// Save writes the current configuration to its file.
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	return globalConfig.saveToFile()
}
