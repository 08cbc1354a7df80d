package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultProvider != "groq" || c.Temperature != 0 || c.MaxRetries != 2 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.ListenAddr != ":8000" || c.UploadDir != "uploads" || c.OutputRoot != filepath.Join("outputs", "plots") {
		t.Fatalf("unexpected server defaults: %+v", c)
	}
	if c.ExecTimeout() != 120*time.Second || c.ArtifactBackend != "none" {
		t.Fatalf("unexpected exec defaults: %+v", c)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "default_model: from-file\nmax_retries: 5\nredis_url: redis://file:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STATM8_MAX_RETRIES", "1")
	t.Setenv("STATM8_API_KEY", "env-key")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultModel != "from-file" {
		t.Errorf("file value not applied: %q", c.DefaultModel)
	}
	if c.MaxRetries != 1 {
		t.Errorf("env must win over file, got %d", c.MaxRetries)
	}
	if c.APIKey != "env-key" {
		t.Errorf("env api key not applied: %q", c.APIKey)
	}
	if c.RedisURL != "redis://file:6379" {
		t.Errorf("redis url = %q", c.RedisURL)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	in := &Global{DefaultProvider: "ollama", DefaultModel: "llama3.2", ExecTimeoutSec: 0, MaxRetries: 3}
	if err := Save(in, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v", info.Mode().Perm())
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.DefaultProvider != "ollama" || out.MaxRetries != 3 || out.ExecTimeout() != 0 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
