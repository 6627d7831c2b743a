// Package config holds all application configuration, layered as
// defaults < environment < explicitly set flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// ClaudeProjectsDir is the directory discovery scans. The sole
	// input path of the whole system.
	ClaudeProjectsDir string `json:"claude_projects_dir"`

	// FrontendDir, when set, is served as a single-page app with an
	// index.html fallback. Empty means API only.
	FrontendDir string `json:"frontend_dir,omitempty"`

	WriteTimeout time.Duration `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("determining home directory: %w", err)
	}
	return Config{
		Host:              "127.0.0.1",
		Port:              3001,
		ClaudeProjectsDir: filepath.Join(home, ".claude", "projects"),
		WriteTimeout:      30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < env < flags. The
// provided FlagSet must already be parsed by the caller. Only flags
// that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	cfg.loadEnv()
	applyFlags(&cfg, fs)
	return cfg, nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("CLAUDE_PROJECTS_DIR"); v != "" {
		c.ClaudeProjectsDir = v
	}
	if v := os.Getenv("FRONTEND_DIR"); v != "" {
		c.FrontendDir = v
	}
}

// RegisterFlags registers the serve flags on fs. The caller must
// call fs.Parse before passing fs to Load.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 3001, "Port to listen on")
	fs.String("projects-dir", "", "Claude projects directory to watch")
	fs.String("frontend", "", "Directory of static frontend assets")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "projects-dir":
			cfg.ClaudeProjectsDir = f.Value.String()
		case "frontend":
			cfg.FrontendDir = f.Value.String()
		}
	})
}
