// Package config loads and validates the YAML configuration shared by the
// console, watcher, and supervisor binaries.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// varPattern matches ${VAR_NAME} or ${VAR_NAME:default_value}. A single
// colon separates the name from its default, matching the substitution
// syntax the config file format documents — not bash's "${VAR:-default}".
var varPattern = regexp.MustCompile(`\$\{([^:}]+)(?::([^}]*))?\}`)

func substituteEnv(data []byte) ([]byte, error) {
	var substErr error
	out := varPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := varPattern.FindSubmatch(match)
		name := string(groups[1])
		hasDefault := groups[2] != nil
		value, set := os.LookupEnv(name)
		if set {
			return []byte(value)
		}
		if hasDefault {
			return groups[2]
		}
		substErr = errf("environment variable %q not set and no default provided", name)
		return match
	})
	if substErr != nil {
		return nil, substErr
	}
	return out, nil
}

// Error is raised for configuration problems: missing sections, invalid
// enum values, or an environment variable referenced with no default.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func errf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Database holds connection parameters for the state store.
type Database struct {
	Driver          string `yaml:"driver"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	Path            string `yaml:"path"` // sqlite file path
	PoolSize        int    `yaml:"pool_size"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryDelaySecs  float64 `yaml:"retry_delay_seconds"`
	QueryTimeoutSec int    `yaml:"query_timeout_seconds"`
}

// Nas holds the shared-storage root.
type Nas struct {
	Root string `yaml:"root"`
}

// Logging controls the structured logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Watcher holds watcher-loop tunables.
type Watcher struct {
	ScanIntervalSeconds      float64  `yaml:"scan_interval_seconds"`
	HeartbeatIntervalSeconds float64  `yaml:"heartbeat_interval_seconds"`
	PromptFile               string   `yaml:"prompt_file"`
	PromptCommand            []string `yaml:"prompt_command"`
	PromptTimeoutSeconds     int      `yaml:"prompt_timeout_seconds"`
	DryRunPrompt             bool     `yaml:"dry_run_prompt"`
}

// Supervisor holds supervisor-pass tunables.
type Supervisor struct {
	AutoRestart         bool    `yaml:"auto_restart"`
	HeartbeatMaxAgeSecs float64 `yaml:"heartbeat_max_age_seconds"`
	StopTimeoutSeconds  float64 `yaml:"stop_timeout_seconds"`
	WatcherConfigPath   string  `yaml:"watcher_config_path"`
	RepoDir             string  `yaml:"repo_dir"`
}

// Config is the top-level, validated configuration object.
type Config struct {
	Environment string     `yaml:"environment"`
	Database    Database   `yaml:"database"`
	Nas         Nas        `yaml:"nas"`
	Logging     Logging    `yaml:"logging"`
	Watcher     Watcher    `yaml:"watcher"`
	Supervisor  Supervisor `yaml:"supervisor"`

	raw map[string]any
}

var validEnvironments = map[string]bool{"development": true, "production": true}
var validLogLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}

// Load reads a YAML file at path, substitutes ${VAR}/${VAR:default}
// references against the process environment, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errf("config path must not be empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	substituted, err := substituteEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(substituted, &generic); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if generic == nil {
		return nil, errf("configuration file is empty: %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(substituted, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.raw = generic

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	required := []string{"database", "nas", "logging", "environment"}
	var missing []string
	for _, key := range required {
		if _, ok := c.raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return errf("missing required configuration sections: %v", missing)
	}

	if !validEnvironments[c.Environment] {
		return errf("environment must be 'development' or 'production', got %q", c.Environment)
	}

	if c.Database.Driver == "sqlite" {
		if c.Database.Path == "" {
			return errf("database.path must be set for the sqlite driver")
		}
	} else {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
			return errf("missing required database keys: host, user, database")
		}
	}
	if c.Database.Password == "${DB_PASSWORD}" {
		return errf("database.password must be set via environment variable (e.g., ${DB_PASSWORD})")
	}

	if c.Nas.Root == "" {
		return errf("missing required nas.root configuration")
	}

	if c.Logging.Level != "" && !validLogLevels[c.Logging.Level] {
		return errf("logging.level must be one of DEBUG, WARN, INFO, ERROR, got %q", c.Logging.Level)
	}

	if hasKeySet(c.raw, "watcher", "scan_interval_seconds") && c.Watcher.ScanIntervalSeconds <= 0 {
		return errf("watcher.scan_interval_seconds must be > 0, got %v", c.Watcher.ScanIntervalSeconds)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.PoolSize == 0 {
		c.Database.PoolSize = 5
	}
	if c.Database.MaxRetries == 0 {
		c.Database.MaxRetries = 3
	}
	if c.Database.RetryDelaySecs == 0 {
		c.Database.RetryDelaySecs = 1.0
	}
	if c.Watcher.ScanIntervalSeconds == 0 {
		c.Watcher.ScanIntervalSeconds = 30
	}
	if c.Watcher.HeartbeatIntervalSeconds == 0 {
		c.Watcher.HeartbeatIntervalSeconds = 300
	}
	if c.Watcher.PromptTimeoutSeconds == 0 {
		c.Watcher.PromptTimeoutSeconds = 300
	}
	if c.Supervisor.HeartbeatMaxAgeSecs == 0 {
		c.Supervisor.HeartbeatMaxAgeSecs = 300
	}
	if c.Supervisor.StopTimeoutSeconds == 0 {
		c.Supervisor.StopTimeoutSeconds = 30
	}
	if !hasKeySet(c.raw, "supervisor", "auto_restart") {
		c.Supervisor.AutoRestart = true
	}
}

// hasKeySet reports whether section.key is explicitly present in the raw
// parsed document, distinguishing "unset" from "set to false".
func hasKeySet(raw map[string]any, section, key string) bool {
	s, ok := raw[section].(map[string]any)
	if !ok {
		return false
	}
	_, ok = s[key]
	return ok
}
