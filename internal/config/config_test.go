package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Cache.TTL != 10*time.Second {
		t.Errorf("default cache TTL = %v, want 10s", cfg.Cache.TTL)
	}
	if cfg.Gateway.BaseURL == "" {
		t.Error("default gateway URL is empty")
	}
	if cfg.Global.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.Global.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tangofs.yaml")
	content := `
gateway:
  base_url: http://db.example.org:10001/tango/rest/v11
  timeout: 5s
cache:
  ttl: 30s
mount:
  mount_point: /mnt/tango
  read_only: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Gateway.BaseURL != "http://db.example.org:10001/tango/rest/v11" {
		t.Errorf("base_url = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("ttl = %v, want 30s", cfg.Cache.TTL)
	}
	if !cfg.Mount.ReadOnly {
		t.Error("read_only not applied")
	}
	// Untouched sections keep their defaults.
	if cfg.Startup.MaxAttempts != 5 {
		t.Errorf("startup.max_attempts = %d, want default 5", cfg.Startup.MaxAttempts)
	}
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	t.Setenv("TANGOFS_CACHE_TTL", "42s")
	t.Setenv("TANGOFS_MOUNT_POINT", "/mnt/env")
	t.Setenv("TANGOFS_READ_ONLY", "true")

	cfg := NewDefault()
	cfg.Mount.MountPoint = "/mnt/file"
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Cache.TTL != 42*time.Second {
		t.Errorf("ttl = %v, want 42s", cfg.Cache.TTL)
	}
	if cfg.Mount.MountPoint != "/mnt/env" {
		t.Errorf("mount_point = %q, want /mnt/env", cfg.Mount.MountPoint)
	}
	if !cfg.Mount.ReadOnly {
		t.Error("read_only not applied from env")
	}
}

func TestLoadFromEnvBadDuration(t *testing.T) {
	t.Setenv("TANGOFS_CACHE_TTL", "soon")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv accepted a bad duration")
	}
}

func TestValidate(t *testing.T) {
	cfg := NewDefault()
	cfg.Mount.MountPoint = "/mnt/tango"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"empty mount point", func(c *Configuration) { c.Mount.MountPoint = "" }},
		{"empty gateway URL", func(c *Configuration) { c.Gateway.BaseURL = "" }},
		{"negative ttl", func(c *Configuration) { c.Cache.TTL = -time.Second }},
		{"bad log level", func(c *Configuration) { c.Global.LogLevel = "loud" }},
		{"zero attempts", func(c *Configuration) { c.Startup.MaxAttempts = 0 }},
		{"metrics port", func(c *Configuration) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }},
	}
	for _, tc := range cases {
		bad := NewDefault()
		bad.Mount.MountPoint = "/mnt/tango"
		tc.mutate(bad)
		if err := bad.Validate(); err == nil {
			t.Errorf("%s: Validate accepted invalid config", tc.name)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	cfg := NewDefault()
	cfg.Mount.MountPoint = "/mnt/tango"
	cfg.Cache.TTL = 25 * time.Second
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Cache.TTL != 25*time.Second || loaded.Mount.MountPoint != "/mnt/tango" {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
}
