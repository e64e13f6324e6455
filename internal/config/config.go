package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	UI       UIConfig       `toml:"ui"`
	Dataset  DatasetConfig  `toml:"dataset"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Watch    WatchConfig    `toml:"watch"`
}

// UIConfig holds the editor preferences that persist between sessions.
type UIConfig struct {
	LastDatasetDir    string            `toml:"last_dataset_dir"`
	FontSize          int               `toml:"font_size"`
	AlwaysOnTop       bool              `toml:"always_on_top"`
	CaptionLyricsOnly bool              `toml:"caption_lyrics_only"`
	SeekStepSeconds   int               `toml:"seek_step_seconds"`
	Shortcuts         map[string]string `toml:"shortcuts"`
	Sections          map[string]bool   `toml:"sections"`
}

// DatasetConfig controls folder scans and backups.
type DatasetConfig struct {
	AudioExtensions []string `toml:"audio_extensions"`
	BackupDir       string   `toml:"backup_dir"`
	ProbeWorkers    int      `toml:"probe_workers"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port           string `toml:"port"`
	Host           string `toml:"host"`
	ReadTimeout    int    `toml:"read_timeout_seconds"`
	EnableCORS     bool   `toml:"enable_cors"`
	RequestLogging bool   `toml:"request_logging"`
	// PasswordHash is a bcrypt hash; empty disables basic auth.
	PasswordHash string `toml:"password_hash"`
}

// DatabaseConfig locates the recent-datasets registry.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// WatchConfig controls the dataset folder watcher.
type WatchConfig struct {
	DebounceMS int  `toml:"debounce_ms"`
	AutoSave   bool `toml:"auto_save"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		UI: UIConfig{
			FontSize:        10,
			SeekStepSeconds: 10,
			Shortcuts:       defaultShortcuts(),
			Sections:        map[string]bool{},
		},
		Dataset: DatasetConfig{
			AudioExtensions: []string{".mp3", ".wav", ".flac", ".m4a", ".ogg", ".aac"},
			BackupDir:       "_Backup",
			ProbeWorkers:    4,
		},
		Server: ServerConfig{
			Port:           "8750",
			Host:           "127.0.0.1",
			ReadTimeout:    30,
			EnableCORS:     true,
			RequestLogging: true,
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
	}
}

// DefaultPath returns CURATOR_CONFIG when set, otherwise config.toml in the
// user's configuration directory.
func DefaultPath() string {
	if p, ok := os.LookupEnv(EnvConfig); ok && p != "" {
		return p
	}
	return filepath.Join(userDir(), "config.toml")
}

func defaultDatabasePath() string {
	return filepath.Join(userDir(), "curator.db")
}

func userDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "curator")
}

// LoadConfig loads configuration from a TOML file, creating it with the
// defaults when it does not exist. Environment overrides are applied last.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.fillMissing()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Update applies fn to the configuration stored at configPath and writes it
// back. Environment overrides are not applied, so they never end up in the
// file.
func Update(configPath string, fn func(*Config)) error {
	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.fillMissing()
	fn(cfg)
	return cfg.SaveToFile(configPath)
}

// fillMissing restores maps an older or hand-edited file left out.
func (c *Config) fillMissing() {
	if c.UI.Shortcuts == nil {
		c.UI.Shortcuts = map[string]string{}
	}
	for name, seq := range defaultShortcuts() {
		if _, ok := c.UI.Shortcuts[name]; !ok {
			c.UI.Shortcuts[name] = seq
		}
	}
	if c.UI.Sections == nil {
		c.UI.Sections = map[string]bool{}
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Curator Configuration
# Settings for the dataset curation CLI and its local HTTP API.
# [ui] is also rewritten by the tool to remember the last opened dataset.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.UI.FontSize < 1 {
		return fmt.Errorf("ui font size must be at least 1")
	}

	if len(c.Dataset.AudioExtensions) == 0 {
		return fmt.Errorf("at least one audio extension must be specified")
	}
	if c.Dataset.BackupDir == "" {
		return fmt.Errorf("dataset backup dir cannot be empty")
	}
	if c.Dataset.ProbeWorkers < 1 {
		return fmt.Errorf("dataset probe workers must be at least 1")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch debounce must not be negative")
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}
