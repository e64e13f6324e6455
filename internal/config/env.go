package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvConfig       = "CURATOR_CONFIG"
	EnvLogLevel     = "CURATOR_LOG_LEVEL"
	EnvDatabasePath = "CURATOR_DATABASE_PATH"
	EnvListen       = "CURATOR_LISTEN"
	EnvPasswordHash = "CURATOR_PASSWORD_HASH"
)

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error; variables already set win.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with CURATOR_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvLogLevel); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvDatabasePath); ok {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvPasswordHash); ok {
		c.Server.PasswordHash = v
	}
	if v, ok := lookup(EnvListen); ok {
		if err := c.SetListen(v); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvListen, err)
		}
	}
	return nil
}

// SetListen sets the server host and port from a host:port address. An
// empty host keeps the configured one.
func (c *Config) SetListen(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("invalid listen address %q: missing port", addr)
	}
	if host != "" {
		c.Server.Host = host
	}
	c.Server.Port = port
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
