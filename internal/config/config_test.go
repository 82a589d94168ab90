package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDecodesTOML(t *testing.T) {
	path := writeConfig(t, `
bind_addrs = ["0.0.0.0:8080"]
enable_api_docs = true
auth_private_key = "/etc/btdt-server/key.pem"
cache_expiration = "7d"
max_cache_size = "1GiB"

[cleanup]
interval = "1h"

[caches.default]
type = "Filesystem"
path = "/var/cache/btdt"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.BindAddrs) != 1 || cfg.BindAddrs[0] != "0.0.0.0:8080" {
		t.Fatalf("BindAddrs = %v", cfg.BindAddrs)
	}
	if !cfg.EnableAPIDocs {
		t.Fatalf("EnableAPIDocs = false, want true")
	}
	cc, ok := cfg.Caches["default"]
	if !ok || cc.Type != "Filesystem" || cc.Path != "/var/cache/btdt" {
		t.Fatalf("Caches[default] = %+v, ok=%v", cc, ok)
	}

	interval, err := cfg.CleanupInterval()
	if err != nil || interval != time.Hour {
		t.Fatalf("CleanupInterval = %v, %v, want 1h, nil", interval, err)
	}
	maxAge, maxSize, err := cfg.EvictionBudget()
	if err != nil {
		t.Fatalf("EvictionBudget: %v", err)
	}
	if maxAge != 7*24*time.Hour {
		t.Fatalf("maxAge = %v, want 168h", maxAge)
	}
	if maxSize != 1<<30 {
		t.Fatalf("maxSize = %d, want %d", maxSize, 1<<30)
	}
}

func TestEnvOverlayOverridesFile(t *testing.T) {
	path := writeConfig(t, `
bind_addrs = ["0.0.0.0:8080"]
auth_private_key = "/key.pem"

[cleanup]
interval = "1h"
`)
	t.Setenv("BTDT_BIND_ADDRS", "127.0.0.1:9090,127.0.0.1:9091")
	t.Setenv("BTDT_ENABLE_API_DOCS", "true")
	t.Setenv("BTDT_CACHES__default__type", "InMemory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.BindAddrs) != 2 || cfg.BindAddrs[1] != "127.0.0.1:9091" {
		t.Fatalf("BindAddrs = %v", cfg.BindAddrs)
	}
	if !cfg.EnableAPIDocs {
		t.Fatalf("EnableAPIDocs not overlaid from env")
	}
	if cfg.Caches["default"].Type != "InMemory" {
		t.Fatalf("Caches[default].Type = %q, want InMemory", cfg.Caches["default"].Type)
	}
}

func TestConfigFilePathDefaultsWhenUnset(t *testing.T) {
	t.Setenv(ConfigFileEnvVar, "")
	if got := ConfigFilePath(); got != defaultConfigFile {
		t.Fatalf("ConfigFilePath = %q, want %q", got, defaultConfigFile)
	}
}

func TestConfigFilePathHonorsEnvVar(t *testing.T) {
	t.Setenv(ConfigFileEnvVar, "/custom/path.toml")
	if got := ConfigFilePath(); got != "/custom/path.toml" {
		t.Fatalf("ConfigFilePath = %q, want /custom/path.toml", got)
	}
}

func TestCleanupIntervalRequiresValue(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.CleanupInterval(); err == nil {
		t.Fatalf("expected error for missing cleanup.interval")
	}
}
