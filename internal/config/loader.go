// Package config loads warden configuration.
//
// loader.go - config file discovery and loading
//
// Search order mirrors the server's --dir precedence: explicit dir,
// WARDEN_HOME, ./.warden, ~/.warden. A .env file next to the config
// is loaded first so environment fallbacks resolve.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// FileName is the configuration file name inside the config dir.
const FileName = "warden.jsonc"

// FindConfigDir resolves the configuration directory. Returns "" when
// no candidate contains a config file.
func FindConfigDir(explicit string) string {
	candidates := make([]string, 0, 4)
	if explicit != "" {
		candidates = append(candidates, explicit)
	}
	if home := os.Getenv("WARDEN_HOME"); home != "" {
		candidates = append(candidates, home)
	}
	candidates = append(candidates, ".warden")
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".warden"))
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir
		}
	}
	return ""
}

// Load reads configuration from dir (resolved via FindConfigDir when
// empty). A missing config file yields the defaults, not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	dir = FindConfigDir(dir)
	if dir == "" {
		return cfg, nil
	}

	// Best-effort .env load so per-engine env fallbacks and engine API
	// keys resolve before anything spawns.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(StripJSONComments(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ConfigDir = dir
	return cfg, nil
}
