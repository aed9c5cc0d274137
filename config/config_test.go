package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MEETSCRIBE_DATA_DIR", "/tmp/meetscribe-test")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "127.0.0.1:8743" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Language != "en-US" {
		t.Errorf("Language = %q", cfg.Language)
	}
	if got := cfg.DatabasePath(); got != filepath.Join("/tmp/meetscribe-test", "meetscribe.sqlite") {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := cfg.FallbackDir(); got != filepath.Join("/tmp/meetscribe-test", "fallback") {
		t.Errorf("FallbackDir = %q", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MEETSCRIBE_DATA_DIR", t.TempDir())
	t.Setenv("MEETSCRIBE_ENGINE_URL", "ws://localhost:9001/recognize")
	t.Setenv("MEETSCRIBE_LANGUAGE", "de-DE")
	t.Setenv("MEETSCRIBE_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EngineURL != "ws://localhost:9001/recognize" {
		t.Errorf("EngineURL = %q", cfg.EngineURL)
	}
	if cfg.Language != "de-DE" {
		t.Errorf("Language = %q", cfg.Language)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
}
