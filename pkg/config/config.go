// Package config loads the daemon's Config from an optional YAML file,
// then layers environment variables and CLI flags on top.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the daemon needs at startup.
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	SocketPath string `yaml:"socketPath"`
	Prefix     string `yaml:"prefix"`
	Aggregator bool   `yaml:"aggregator"`

	SystemPeriod time.Duration `yaml:"systemPeriod"`
	TracePeriod  time.Duration `yaml:"tracePeriod"`
	TraceMaxSize int64         `yaml:"traceMaxSize"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`

	FTIOCommand string `yaml:"ftioCommand"`
}

// Default returns the daemon's built-in defaults, before any file, env,
// or flag override is applied.
func Default() Config {
	return Config{
		ListenAddr:   ":9444",
		SocketPath:   defaultSocketPath(),
		Prefix:       defaultPrefix(),
		Aggregator:   true,
		SystemPeriod: 10 * time.Second,
		TracePeriod:  5 * time.Second,
		TraceMaxSize: 4 << 20,
		LogLevel:     "info",
		LogJSON:      false,
	}
}

func defaultSocketPath() string {
	uid := "0"
	if u, err := user.Current(); err == nil {
		uid = u.Uid
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("metric-proxy-%s.socket", uid))
}

func defaultPrefix() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proxyprofiles"
	}
	return filepath.Join(home, ".proxyprofiles")
}

// Load reads path (if non-empty) as YAML over the defaults, then applies
// environment overrides. CLI flags are applied by the caller afterward
// since cobra owns flag parsing (see cmd/metric-proxy).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers the environment variables named in the wire-protocol
// section over whatever the file/defaults set. PROXY_PERIOD is consumed
// by clients, not the daemon, but PROXY_PATH is the daemon's socket.
func (c *Config) applyEnv() {
	if v := os.Getenv("PROXY_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("METRIC_PROXY_PREFIX"); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv("METRIC_PROXY_LISTEN"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("METRIC_PROXY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("METRIC_PROXY_FTIO_COMMAND"); v != "" {
		c.FTIOCommand = v
	}
	if v := os.Getenv("METRIC_PROXY_AGGREGATOR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Aggregator = b
		}
	}
}
