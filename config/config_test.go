package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaultsProducesValidConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Name != "longscribe" {
		t.Fatalf("expected default name longscribe, got %q", cfg.Name)
	}
	if cfg.Environment != "development" || !cfg.Debug {
		t.Fatalf("development defaults not applied: env=%q debug=%v", cfg.Environment, cfg.Debug)
	}
	if cfg.Batch.Workers != 3 {
		t.Fatalf("expected 3 batch workers, got %d", cfg.Batch.Workers)
	}
	if cfg.Server.Port == 0 {
		t.Fatal("expected server port default")
	}
	if cfg.Storage.BasePath == "" {
		t.Fatal("expected storage base path default")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yml")
	content := `
name: longscribe
environment: staging
server:
  port: 9090
storage:
  base_path: /tmp/recordings
transcription:
  whisper:
    url: http://whisper:8387
    timeout: 90s
batch:
  workers: 5
`
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	var cfg Config
	if err := LoadConfig("longscribe", &cfg, WithConfigFile(configFile)); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Environment != "staging" {
		t.Fatalf("expected staging, got %q", cfg.Environment)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.BasePath != "/tmp/recordings" {
		t.Fatalf("unexpected base path %q", cfg.Storage.BasePath)
	}
	if cfg.Transcription.Whisper.URL != "http://whisper:8387" {
		t.Fatalf("unexpected whisper url %q", cfg.Transcription.Whisper.URL)
	}
	if cfg.Transcription.Whisper.Timeout != 90*time.Second {
		t.Fatalf("unexpected whisper timeout %v", cfg.Transcription.Whisper.Timeout)
	}
	if cfg.Batch.Workers != 5 {
		t.Fatalf("expected 5 workers, got %d", cfg.Batch.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("STORAGE_BASE_PATH", "/var/lib/longscribe")

	var cfg Config
	if err := LoadConfig("longscribe", &cfg); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.BasePath != "/var/lib/longscribe" {
		t.Fatalf("expected env override, got %q", cfg.Storage.BasePath)
	}
}
