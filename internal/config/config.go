// Package config loads and validates weir.yml, the per-workspace
// configuration naming the relay endpoint, the signing identity and the
// local cache behavior.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/weir/pkg/relay"
)

// DefaultFileName is the configuration file looked up in the working
// directory when no explicit path is given.
const DefaultFileName = "weir.yml"

// Config represents the top-level weir.yml configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Instance string         `yaml:"instance"`
	Relay    RelayConfig    `yaml:"relay"`
	Identity IdentityConfig `yaml:"identity"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
}

// RelayConfig names the Redis endpoint backing the transport.
type RelayConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// IdentityConfig names the local signing identity. Signing itself is the
// transport collaborator's job; the core only needs the pubkey.
type IdentityConfig struct {
	PublicKey string `yaml:"public_key"`
}

// CacheConfig controls the local record cache.
type CacheConfig struct {
	Path   string `yaml:"path,omitempty"`   // SQLite file path; empty disables the cache
	Policy string `yaml:"policy,omitempty"` // cache-only, network-only or cache-then-network
}

// SyncConfig lists the authors whose projects are synchronized.
type SyncConfig struct {
	Authors []string `yaml:"authors,omitempty"`
}

// Load reads and validates a weir.yml from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields and enum values, applying defaults for
// optional ones.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version cannot be empty")
	}
	if c.Instance == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if c.Relay.Addr == "" {
		return fmt.Errorf("relay addr cannot be empty")
	}

	if c.Cache.Policy == "" {
		c.Cache.Policy = string(relay.CacheThenNetwork)
	}
	if err := relay.CachePolicy(c.Cache.Policy).Validate(); err != nil {
		return fmt.Errorf("invalid cache policy: %w", err)
	}

	return nil
}

// Policy returns the validated cache policy.
func (c *Config) Policy() relay.CachePolicy {
	return relay.CachePolicy(c.Cache.Policy)
}
