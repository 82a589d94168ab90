// Package config decodes btdt-server's TOML configuration file and
// overlays BTDT_-prefixed environment variables on top of it, the
// same two-layer shape spec.md's configuration section describes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jgosmann/btdt/internal/humanduration"
	"github.com/jgosmann/btdt/internal/humansize"
)

const defaultConfigFile = "/etc/btdt-server/config.toml"

// ConfigFileEnvVar names the environment variable the server consults
// for the config file path, before any other BTDT_ overlay is read.
const ConfigFileEnvVar = "BTDT_SERVER_CONFIG_FILE"

// CacheConfig describes one named backing cache: `caches.<id>` in the
// TOML file.
type CacheConfig struct {
	Type string `toml:"type"` // "InMemory" or "Filesystem"
	Path string `toml:"path,omitempty"`
}

// Config is btdt-server's full configuration.
type Config struct {
	BindAddrs       []string               `toml:"bind_addrs"`
	EnableAPIDocs   bool                   `toml:"enable_api_docs"`
	TLSKeystore     string                 `toml:"tls_keystore,omitempty"`
	TLSKeystorePass string                 `toml:"tls_keystore_password,omitempty"`
	AuthPrivateKey  string                 `toml:"auth_private_key"`
	CacheExpiration string                 `toml:"cache_expiration,omitempty"`
	MaxCacheSize    string                 `toml:"max_cache_size,omitempty"`
	Caches          map[string]CacheConfig `toml:"caches"`
	Cleanup         struct {
		Interval string `toml:"interval"`
	} `toml:"cleanup"`
}

// ConfigFilePath resolves the config file path per spec: the
// BTDT_SERVER_CONFIG_FILE environment variable, or the standard
// default if unset.
func ConfigFilePath() string {
	if v, ok := os.LookupEnv(ConfigFileEnvVar); ok && v != "" {
		return v
	}
	return defaultConfigFile
}

// Load reads and decodes the TOML file at path, then overlays
// environment variables of the form BTDT_FIELD (or BTDT_SECTION__FIELD
// for nested tables, "__" separating nesting levels).
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	applyEnvOverlay(&cfg)
	return &cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v, ok := os.LookupEnv("BTDT_BIND_ADDRS"); ok {
		cfg.BindAddrs = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("BTDT_ENABLE_API_DOCS"); ok {
		cfg.EnableAPIDocs = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("BTDT_TLS_KEYSTORE"); ok {
		cfg.TLSKeystore = v
	}
	if v, ok := os.LookupEnv("BTDT_TLS_KEYSTORE_PASSWORD"); ok {
		cfg.TLSKeystorePass = v
	}
	if v, ok := os.LookupEnv("BTDT_AUTH_PRIVATE_KEY"); ok {
		cfg.AuthPrivateKey = v
	}
	if v, ok := os.LookupEnv("BTDT_CACHE_EXPIRATION"); ok {
		cfg.CacheExpiration = v
	}
	if v, ok := os.LookupEnv("BTDT_MAX_CACHE_SIZE"); ok {
		cfg.MaxCacheSize = v
	}
	if v, ok := os.LookupEnv("BTDT_CLEANUP__INTERVAL"); ok {
		cfg.Cleanup.Interval = v
	}
	for _, e := range os.Environ() {
		const prefix = "BTDT_CACHES__"
		if !strings.HasPrefix(e, prefix) {
			continue
		}
		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 {
			continue
		}
		rest := strings.TrimPrefix(kv[0], prefix)
		parts := strings.SplitN(rest, "__", 2)
		if len(parts) != 2 {
			continue
		}
		id, field := parts[0], strings.ToLower(parts[1])
		if cfg.Caches == nil {
			cfg.Caches = make(map[string]CacheConfig)
		}
		c := cfg.Caches[id]
		switch field {
		case "type":
			c.Type = kv[1]
		case "path":
			c.Path = kv[1]
		}
		cfg.Caches[id] = c
	}
}

// CleanupInterval parses the cleanup.interval field with
// humanduration's grammar.
func (c *Config) CleanupInterval() (interval time.Duration, err error) {
	if c.Cleanup.Interval == "" {
		return 0, fmt.Errorf("cleanup.interval is required")
	}
	return humanduration.Parse(c.Cleanup.Interval)
}

// EvictionBudget parses cache_expiration and max_cache_size into the
// bounds every configured cache's eviction pass is run with. Either
// may be empty, meaning that bound is unset.
func (c *Config) EvictionBudget() (maxAge time.Duration, maxSize uint64, err error) {
	if c.CacheExpiration != "" {
		maxAge, err = humanduration.Parse(c.CacheExpiration)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing cache_expiration: %w", err)
		}
	}
	if c.MaxCacheSize != "" {
		size, err := humansize.Parse(c.MaxCacheSize)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing max_cache_size: %w", err)
		}
		maxSize = uint64(size)
	}
	return maxAge, maxSize, nil
}
