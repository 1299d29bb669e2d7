// Package config loads and saves ~/.tabby/config.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ideapedyudi/tabby/internal/logging"
	"github.com/ideapedyudi/tabby/internal/profile"
)

const (
	// ConfigFileName is the TOML file inside the tabby directory.
	ConfigFileName = "config.toml"
	// StateDBFileName holds persisted recovery tokens.
	StateDBFileName = "state.db"
	// LogsDirName is where debug.log is rotated.
	LogsDirName = "logs"
)

// Dir returns the tabby base directory. TABBY_HOME overrides ~/.tabby.
func Dir() (string, error) {
	if home := os.Getenv("TABBY_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".tabby"), nil
}

// Path returns the path to config.toml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// StateDBPath returns the path to the SQLite state file.
func StateDBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, StateDBFileName), nil
}

// Config is the whole user configuration.
type Config struct {
	Logs     LogSettings       `toml:"logs"`
	Web      WebSettings       `toml:"web"`
	Terminal TerminalSettings  `toml:"terminal"`
	Profiles []profile.Profile `toml:"profiles"`
}

// LogSettings configures debug logging.
type LogSettings struct {
	// DebugLevel sets the minimum log level: "debug", "info", "warn", "error"
	DebugLevel string `toml:"debug_level"`

	// DebugFormat sets the log format: "json" (default) or "text"
	DebugFormat string `toml:"debug_format"`

	// DebugMaxMB is the max size in MB for debug.log before rotation
	DebugMaxMB int `toml:"debug_max_mb"`

	// DebugBackups is the number of rotated debug.log files to keep
	DebugBackups int `toml:"debug_backups"`

	// DebugRetentionDays is the number of days to keep rotated debug logs
	DebugRetentionDays int `toml:"debug_retention_days"`

	DebugCompress bool `toml:"debug_compress"`

	// RingBufferMB is the in-memory ring buffer size in MB for crash dumps
	RingBufferMB int `toml:"ring_buffer_mb"`

	PprofEnabled bool `toml:"pprof_enabled"`

	// AggregateIntervalSecs is how often aggregated input/output events are flushed
	AggregateIntervalSecs int `toml:"aggregate_interval_secs"`
}

// WebSettings configures `tabby serve`.
type WebSettings struct {
	Listen   string `toml:"listen"`
	Token    string `toml:"token"`
	ReadOnly bool   `toml:"read_only"`

	// MenuTimeoutMs bounds how long one menu provider may take.
	MenuTimeoutMs int `toml:"menu_timeout_ms"`
}

// TerminalSettings configures tabs and sessions.
type TerminalSettings struct {
	// DefaultProfile names the profile new tabs use.
	DefaultProfile string `toml:"default_profile"`

	// DefaultBehavior applies to profiles without behavior_on_session_end.
	DefaultBehavior string `toml:"default_behavior"`

	// Language selects the UI language, e.g. "de". Empty uses $LANG.
	Language string `toml:"language"`

	// ReconnectPerMinute caps automatic reconnects per tab.
	ReconnectPerMinute int `toml:"reconnect_per_minute"`
	ReconnectBurst     int `toml:"reconnect_burst"`

	// RestoreTabs re-creates tabs from saved recovery tokens on startup.
	RestoreTabs *bool `toml:"restore_tabs"`
}

const (
	defaultListen           = "127.0.0.1:8420"
	defaultMenuTimeout      = 2 * time.Second
	defaultReconnectPerMin  = 6
	defaultReconnectBurst   = 3
	defaultRingBufferMB     = 4
	defaultAggregateSeconds = 30
)

// MenuTimeout returns the per-provider menu deadline.
func (w WebSettings) MenuTimeout() time.Duration {
	if w.MenuTimeoutMs <= 0 {
		return defaultMenuTimeout
	}
	return time.Duration(w.MenuTimeoutMs) * time.Millisecond
}

// ListenAddr returns the configured address or the loopback default.
func (w WebSettings) ListenAddr() string {
	if w.Listen == "" {
		return defaultListen
	}
	return w.Listen
}

// ReconnectRate returns the reconnect budget as events per minute and burst.
func (t TerminalSettings) ReconnectRate() (perMinute, burst int) {
	perMinute, burst = t.ReconnectPerMinute, t.ReconnectBurst
	if perMinute <= 0 {
		perMinute = defaultReconnectPerMin
	}
	if burst <= 0 {
		burst = defaultReconnectBurst
	}
	return perMinute, burst
}

// ShouldRestoreTabs defaults to true.
func (t TerminalSettings) ShouldRestoreTabs() bool {
	return t.RestoreTabs == nil || *t.RestoreTabs
}

// ApplyDefaults fills profile fields the user left out.
func (c *Config) ApplyDefaults() {
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.Type == "" {
			p.Type = profile.TypeLocal
		}
		if p.Options.BehaviorOnSessionEnd == "" && c.Terminal.DefaultBehavior != "" {
			p.Options.BehaviorOnSessionEnd = c.Terminal.DefaultBehavior
		}
	}
}

// LoggingConfig maps [logs] onto the logging package.
func (c *Config) LoggingConfig(debug bool) logging.Config {
	cfg := logging.Config{
		Level:                 c.Logs.DebugLevel,
		Format:                c.Logs.DebugFormat,
		MaxSizeMB:             c.Logs.DebugMaxMB,
		MaxBackups:            c.Logs.DebugBackups,
		MaxAgeDays:            c.Logs.DebugRetentionDays,
		Compress:              c.Logs.DebugCompress,
		RingBufferSize:        c.Logs.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: c.Logs.AggregateIntervalSecs,
		PprofEnabled:          c.Logs.PprofEnabled,
		Debug:                 debug,
	}
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = defaultRingBufferMB * 1024 * 1024
	}
	if cfg.AggregateIntervalSecs <= 0 {
		cfg.AggregateIntervalSecs = defaultAggregateSeconds
	}
	if debug {
		if dir, err := Dir(); err == nil {
			cfg.LogDir = filepath.Join(dir, LogsDirName)
		}
	}
	return cfg
}

// Cache for config (loaded once per process)
var (
	configCache   *Config
	configCacheMu sync.RWMutex
)

// Load reads config.toml, returning the cached value after the first load.
// A missing file yields the zero config.
func Load() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()

	if configCache != nil {
		return configCache, nil
	}

	path, err := Path()
	if err != nil {
		configCache = &Config{}
		return configCache, nil
	}

	cfg, err := readFile(path)
	if err != nil {
		// Cache the default to prevent repeated parse attempts.
		configCache = &Config{}
		return configCache, err
	}
	configCache = cfg
	return configCache, nil
}

func readFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config.toml parse error: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Reload forces a fresh read from disk.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache drops the cached config. The next Load reads from disk.
func ClearCache() {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
}

// Save writes cfg to config.toml atomically and clears the cache.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# tabby configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Write to a temp file, fsync, then rename so a crash never leaves a
	// truncated config behind.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := syncFile(tmpPath); err != nil {
		configLog.Warn("config_fsync_failed", "error", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	markSelfWrite()
	ClearCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

var configLog = logging.ForComponent(logging.CompProfile)
