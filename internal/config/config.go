package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/ranking"
)

// Config is the persistent dashboard configuration.
//
// Fields with an env tag can be overridden from the environment after the
// file is read. The password is never written to disk.
type Config struct {
	// Producer API
	APIURL            string  `json:"api_url" env:"WEAKSIGNAL_API_URL"`
	Password          string  `json:"-" env:"WEAKSIGNAL_PASSWORD"`
	RequestsPerSecond float64 `json:"requests_per_second" env:"WEAKSIGNAL_RPS"`

	// Local state
	DataDir  string `json:"data_dir" env:"WEAKSIGNAL_DATA_DIR"`
	LogLevel string `json:"log_level" env:"WEAKSIGNAL_LOG_LEVEL"`
	Journal  bool   `json:"journal" env:"WEAKSIGNAL_JOURNAL"`

	// What-if scenarios started concurrently from one batch
	ScenarioLimit int `json:"scenario_limit"`

	UI UIConfig `json:"ui"`
}

// UIConfig holds dashboard preferences.
type UIConfig struct {
	SortKey     string `json:"sort_key"`     // one of ranking.SortKeys
	ContentTail int    `json:"content_tail"` // lines of agent narrative shown per agent
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		APIURL:            "http://localhost:8000",
		RequestsPerSecond: 2,
		DataDir:           DefaultDataDir(),
		LogLevel:          "info",
		Journal:           false,
		ScenarioLimit:     3,
		UI: UIConfig{
			SortKey:     string(ranking.KeyOverall),
			ContentTail: 12,
		},
	}
}

// DefaultDataDir returns ~/.weaksignal, or a relative .weaksignal when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weaksignal"
	}
	return filepath.Join(home, ".weaksignal")
}

// Path returns the config file inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}

// Load reads config from path, or returns defaults when the file does not
// exist. The environment overlay is applied either way. An unreadable file
// falls back to defaults with a warning.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			logging.Warn("config file unreadable, using defaults", "path", path, "err", err)
			cfg = DefaultConfig()
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// ParseEnv overlays environment variables onto target. Unset variables
// leave fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.APIURL == "" {
		c.APIURL = def.APIURL
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = def.RequestsPerSecond
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ScenarioLimit <= 0 {
		c.ScenarioLimit = def.ScenarioLimit
	}
	if _, err := ranking.ParseSortKey(c.UI.SortKey); err != nil {
		c.UI.SortKey = def.UI.SortKey
	}
	if c.UI.ContentTail <= 0 {
		c.UI.ContentTail = def.UI.ContentTail
	}
}

// SortKey returns the configured default signal ordering.
func (c *Config) SortKey() ranking.SortKey {
	k, err := ranking.ParseSortKey(c.UI.SortKey)
	if err != nil {
		return ranking.KeyOverall
	}
	return k
}

// StorePath returns the SQLite cache location.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "weaksignal.db")
}

// JournalPath returns the stream journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.jsonl")
}

// Save writes config to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
