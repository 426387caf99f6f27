package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := LoadDefaults()

	assert.Equal(t, "neo4j", cfg.Engine.Driver)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Engine.URI)
	assert.Equal(t, 1000, cfg.Query.DefaultLimit)
	assert.Equal(t, 10000, cfg.Query.MaxLimit)
	assert.Equal(t, 2, cfg.Query.DefaultDepth)
	assert.Equal(t, 5, cfg.Query.MaxDepth)
	assert.Equal(t, 10000, cfg.Query.MaxPaths)
	assert.Equal(t, 4, cfg.Query.DefaultPathDepth)
	assert.Equal(t, 6, cfg.Query.MaxPathDepth)
	assert.True(t, cfg.Query.ExpandNeighbors)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "advisorgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  driver: memory
  fixture: ./graph.yaml
query:
  timeout: 5s
  max_limit: 500
  default_limit: 100
server:
  port: 9090
cache:
  enabled: true
  ttl: 1m
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Engine.Driver)
	assert.Equal(t, "./graph.yaml", cfg.Engine.Fixture)
	assert.Equal(t, 5*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 500, cfg.Query.MaxLimit)
	assert.Equal(t, 100, cfg.Query.DefaultLimit)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Query.MaxDepth)
	assert.Equal(t, "json", cfg.Logging.Format)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("query: [not, a, map"), 0o644))
		_, err := LoadFromFile(bad)
		require.Error(t, err)
	})

	t.Run("empty path means defaults", func(t *testing.T) {
		cfg, err := LoadFromFile("")
		require.NoError(t, err)
		assert.Equal(t, LoadDefaults().Query, cfg.Query)
	})
}

func TestApplyEnvVars(t *testing.T) {
	t.Setenv("ADVISORGRAPH_ENGINE_URI", "neo4j://graph.internal:7687")
	t.Setenv("ADVISORGRAPH_ENGINE_PASSWORD", "s3cret")
	t.Setenv("ADVISORGRAPH_QUERY_TIMEOUT", "12s")
	t.Setenv("ADVISORGRAPH_QUERY_MAX_LIMIT", "2500")
	t.Setenv("ADVISORGRAPH_SERVER_PORT", "7000")
	t.Setenv("ADVISORGRAPH_LOG_LEVEL", "DEBUG")

	cfg := LoadDefaults()
	require.NoError(t, ApplyEnvVars(cfg))

	assert.Equal(t, "neo4j://graph.internal:7687", cfg.Engine.URI)
	assert.Equal(t, "s3cret", cfg.Engine.Password)
	assert.Equal(t, 12*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 2500, cfg.Query.MaxLimit)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	// unset variables leave defaults alone
	assert.Equal(t, 1000, cfg.Query.DefaultLimit)

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))
		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 7000, cfg.Server.Port)
	})

	t.Run("bad value", func(t *testing.T) {
		t.Setenv("ADVISORGRAPH_QUERY_DEFAULT_LIMIT", "lots")
		require.Error(t, ApplyEnvVars(LoadDefaults()))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"unknown driver", func(c *Config) { c.Engine.Driver = "bolt" }, []string{"unknown engine driver"}},
		{"neo4j without uri", func(c *Config) { c.Engine.URI = "" }, []string{"engine.uri"}},
		{"memory needs no uri", func(c *Config) { c.Engine.Driver = "memory"; c.Engine.URI = "" }, nil},
		{"max below default", func(c *Config) { c.Query.MaxLimit = 10 }, []string{"max limit 10"}},
		{"depth out of range", func(c *Config) { c.Query.DefaultDepth = 9 }, []string{"default depth 9"}},
		{"negative max paths", func(c *Config) { c.Query.MaxPaths = -1 }, []string{"invalid max paths"}},
		{"uncapped expansion", func(c *Config) { c.Query.MaxPaths = 0 }, nil},
		{"path depth out of range", func(c *Config) { c.Query.DefaultPathDepth = 7 }, []string{"default path depth 7"}},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, []string{"invalid server port"}},
		{"negative acquisition timeout", func(c *Config) { c.Engine.ConnectionAcquisitionTimeout = -time.Second }, []string{"invalid connection acquisition timeout"}},
		{"zero acquisition timeout with verify", func(c *Config) { c.Engine.ConnectionAcquisitionTimeout = 0; c.Engine.VerifyOnStart = true }, nil},
		{"cache without ttl", func(c *Config) { c.Cache.Enabled = true; c.Cache.TTL = 0 }, []string{"non-positive ttl"}},
		{"bad log level", func(c *Config) { c.Logging.Level = "TRACE" }, []string{"invalid log level"}},
		{
			"reports every problem",
			func(c *Config) { c.Server.Port = -1; c.Logging.Format = "xml"; c.Query.DefaultLimit = 0 },
			[]string{"invalid server port", "invalid log format", "invalid default limit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestString_OmitsSecrets(t *testing.T) {
	cfg := LoadDefaults()
	cfg.Engine.Password = "hunter2"
	s := cfg.String()
	assert.False(t, strings.Contains(s, "hunter2"))
	assert.Contains(t, s, "neo4j://localhost:7687")
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, "", FindConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "advisorgraph.yaml"), []byte("{}"), 0o644))
	assert.Equal(t, "advisorgraph.yaml", FindConfigFile())

	home := filepath.Join(dir, ".advisorgraph")
	require.NoError(t, os.MkdirAll(home, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("{}"), 0o644))
	assert.Equal(t, filepath.Join(home, "config.yaml"), FindConfigFile())
}

func TestApplyEnvVars_CORSOrigins(t *testing.T) {
	t.Setenv("ADVISORGRAPH_SERVER_ENABLE_CORS", "true")
	t.Setenv("ADVISORGRAPH_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg := LoadDefaults()
	require.NoError(t, ApplyEnvVars(cfg))
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}
