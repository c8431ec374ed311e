// Package config loads journeymap TOML settings over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full runtime configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Autosave   AutosaveConfig   `toml:"autosave"`
	Versioning VersioningConfig `toml:"versioning"`
	Journey    JourneyConfig    `toml:"journey"`
	Identity   IdentityConfig   `toml:"identity"`
	Logging    LoggingConfig    `toml:"logging"`
	Server     ServerConfig     `toml:"server"`
	Search     SearchConfig     `toml:"search"`
	Inbox      InboxConfig      `toml:"inbox"`
	Backup     BackupConfig     `toml:"backup"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// AutosaveConfig controls debounced session saves. Durations use Go duration syntax.
type AutosaveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Debounce string `toml:"debounce"`
	// SessionIdle closes served sessions after this long without edits. Blank or zero disables it.
	SessionIdle string `toml:"session_idle"`
}

type VersioningConfig struct {
	Enabled bool `toml:"enabled"`
}

// JourneyConfig seeds new maps created without a template.
type JourneyConfig struct {
	DefaultTitle  string   `toml:"default_title"`
	DefaultStages []string `toml:"default_stages"`
}

type IdentityConfig struct {
	Actor string `toml:"actor"`
}

type LoggingConfig struct {
	Level   string               `toml:"level"`
	DevFile LoggingDevFileConfig `toml:"dev_file"`
}

// LoggingDevFileConfig enables an additional logfmt file sink.
type LoggingDevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind    string  `toml:"http_bind"`
	APIEndpoint string  `toml:"api_endpoint"`
	MCPEndpoint string  `toml:"mcp_endpoint"`
	RateLimit   float64 `toml:"rate_limit"`
	RateBurst   int     `toml:"rate_burst"`
}

// SearchConfig points at an optional Meilisearch server. A blank URL keeps search in-process.
type SearchConfig struct {
	MeiliURL    string `toml:"meili_url"`
	MeiliAPIKey string `toml:"meili_api_key"`
	Index       string `toml:"index"`
}

// InboxConfig enables the drop-folder importer while serving. A blank dir uses the platform default.
type InboxConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// BackupConfig schedules snapshot exports while serving. A blank schedule disables backups.
type BackupConfig struct {
	Schedule string `toml:"schedule"`
	Dir      string `toml:"dir"`
	Format   string `toml:"format"`
	Keep     int    `toml:"keep"`
}

// logLevels lists the accepted logging.level values.
var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

// Default returns the built-in configuration for one database path.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Autosave: AutosaveConfig{
			Enabled:     true,
			Debounce:    "30s",
			SessionIdle: "30m",
		},
		Versioning: VersioningConfig{
			Enabled: true,
		},
		Journey: JourneyConfig{
			DefaultTitle:  "Untitled journey",
			DefaultStages: []string{"Stage 1"},
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: LoggingDevFileConfig{
				Dir: ".journeymap/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Search: SearchConfig{
			Index: "journeymap_cells",
		},
		Backup: BackupConfig{
			Format: "json",
			Keep:   14,
		},
	}
}

// Load decodes a TOML file over defaults. A missing or empty file yields the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Autosave.DebounceDuration(); err != nil {
		return err
	}
	if _, err := c.Autosave.SessionIdleDuration(); err != nil {
		return err
	}

	for idx, stage := range c.Journey.DefaultStages {
		if strings.TrimSpace(stage) == "" {
			return fmt.Errorf("journey.default_stages[%d] is blank", idx)
		}
	}

	level := strings.TrimSpace(strings.ToLower(c.Logging.Level))
	if level != "" && !slices.Contains(logLevels, level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0")
	}
	if c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_burst must be >= 0")
	}

	switch strings.TrimSpace(strings.ToLower(c.Backup.Format)) {
	case "", "json", "yaml", "yml":
	default:
		return fmt.Errorf("invalid backup.format: %q", c.Backup.Format)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup.keep must be >= 0")
	}

	return nil
}

// DebounceDuration parses the autosave debounce. Blank means zero.
func (a AutosaveConfig) DebounceDuration() (time.Duration, error) {
	return parseDuration("autosave.debounce", a.Debounce)
}

// SessionIdleDuration parses the idle session timeout. Blank means zero.
func (a AutosaveConfig) SessionIdleDuration() (time.Duration, error) {
	return parseDuration("autosave.session_idle", a.SessionIdle)
}

func parseDuration(key, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return d, nil
}

// EnsureConfigDir creates the parent directory of a config path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
