package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/weir/pkg/relay"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("complete config", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
version: "1.0"
instance: workshop
relay:
  addr: localhost:6379
  password: hunter2
  db: 2
identity:
  public_key: pk1
cache:
  path: /tmp/weir-cache.db
  policy: network-only
sync:
  authors:
    - pk1
    - pk2
`))
		require.NoError(t, err)
		assert.Equal(t, "workshop", cfg.Instance)
		assert.Equal(t, "localhost:6379", cfg.Relay.Addr)
		assert.Equal(t, "hunter2", cfg.Relay.Password)
		assert.Equal(t, 2, cfg.Relay.DB)
		assert.Equal(t, "pk1", cfg.Identity.PublicKey)
		assert.Equal(t, relay.NetworkOnly, cfg.Policy())
		assert.Equal(t, []string{"pk1", "pk2"}, cfg.Sync.Authors)
	})

	t.Run("minimal config defaults the cache policy", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
version: "1.0"
instance: workshop
relay:
  addr: localhost:6379
`))
		require.NoError(t, err)
		assert.Equal(t, relay.CacheThenNetwork, cfg.Policy())
		assert.Empty(t, cfg.Cache.Path)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "version: [unclosed"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Version:  "1.0",
			Instance: "workshop",
			Relay:    RelayConfig{Addr: "localhost:6379"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing version", func(t *testing.T) {
		cfg := valid()
		cfg.Version = ""
		assert.ErrorContains(t, cfg.Validate(), "version")
	})

	t.Run("missing instance", func(t *testing.T) {
		cfg := valid()
		cfg.Instance = ""
		assert.ErrorContains(t, cfg.Validate(), "instance")
	})

	t.Run("missing relay addr", func(t *testing.T) {
		cfg := valid()
		cfg.Relay.Addr = ""
		assert.ErrorContains(t, cfg.Validate(), "relay addr")
	})

	t.Run("unknown cache policy", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.Policy = "sometimes"
		assert.ErrorContains(t, cfg.Validate(), "invalid cache policy")
	})
}
