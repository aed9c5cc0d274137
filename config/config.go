// Package config loads engine settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// EngineURL is the websocket address of the external recognition engine.
	EngineURL string `env:"MEETSCRIBE_ENGINE_URL"`
	Language  string `env:"MEETSCRIBE_LANGUAGE" envDefault:"en-US"`

	// ListenAddr serves the surface API and websocket.
	ListenAddr string `env:"MEETSCRIBE_LISTEN_ADDR" envDefault:"127.0.0.1:8743"`

	// DataDir holds the sqlite database and the file fallback area.
	// Empty means the per-user config directory.
	DataDir string `env:"MEETSCRIBE_DATA_DIR"`

	LogPath string `env:"MEETSCRIBE_LOG_PATH"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "meetscribe")
	}
	return cfg, nil
}

// DatabasePath is the primary storage area location.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "meetscribe.sqlite")
}

// FallbackDir is the degraded file storage area location.
func (c Config) FallbackDir() string {
	return filepath.Join(c.DataDir, "fallback")
}
