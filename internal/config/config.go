// Package config reads the server's TOML configuration file: listen
// address, data directory, root password, and log level.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level TOML document for a miniql server process.
type Config struct {
	Server ServerConfig `toml:"server"`
	Auth   AuthConfig   `toml:"auth"`
}

// ServerConfig maps [server].
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	DataDir    string `toml:"data_dir"`
	LogLevel   string `toml:"log_level"`
}

// AuthConfig maps [auth].
type AuthConfig struct {
	RootPassword string `toml:"root_password"`
}

// defaults applied to any field left unset in the file.
const (
	defaultListenAddr = "127.0.0.1:3306"
	defaultDataDir    = "./miniql-data"
	defaultLogLevel   = "info"
)

// Load opens the file at path and parses it as server configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads TOML content from r and returns the resolved Config,
// with defaults filled in for any field the document omits.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode error: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = defaultDataDir
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unsupported log_level %q", c.Server.LogLevel)
	}
	return nil
}
