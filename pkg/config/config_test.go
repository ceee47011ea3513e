package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Facet.EnumCacheMinDF)
	assert.Equal(t, "fcs", cfg.Facet.DefaultMethod)
	assert.Equal(t, 1.5, cfg.Coordinator.Overrequest.Ratio)
	assert.Equal(t, 10, cfg.Coordinator.Overrequest.Count)
	assert.True(t, cfg.Analytics.Enabled)
	assert.Equal(t, time.Minute, cfg.Analytics.SnapshotInterval)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
facet:
  threads: -1
  enumCacheMinDf: 64
schema:
  fields:
    - name: color
    - name: year
      type: int
    - name: tags
      multiValued: true
coordinator:
  shards: ["a:9100", "b:9100"]
  shardTimeout: 2s
`), 0644))

	t.Setenv("FE_SERVER_PORT", "7001")
	t.Setenv("FE_COORDINATOR_SHARDS", "x:1,y:2,z:3")
	t.Setenv("FE_ANALYTICS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, -1, cfg.Facet.Threads)
	assert.Equal(t, 64, cfg.Facet.EnumCacheMinDF)
	assert.Equal(t, []string{"x:1", "y:2", "z:3"}, cfg.Coordinator.Shards)
	assert.Equal(t, 2*time.Second, cfg.Coordinator.ShardTimeout)
	assert.False(t, cfg.Analytics.Enabled)
	require.Len(t, cfg.Schema.Fields, 3)
	assert.Equal(t, "int", cfg.Schema.Fields[1].Type)
	assert.True(t, cfg.Schema.Fields[2].MultiValued)
	// untouched sections keep their defaults
	assert.Equal(t, 4096, cfg.Facet.FilterCacheSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threshold", func(c *Config) { c.Facet.EnumCacheMinDF = -1 }},
		{"unknown method", func(c *Config) { c.Facet.DefaultMethod = "scan" }},
		{"limit above max", func(c *Config) { c.Facet.DefaultLimit = c.Facet.MaxLimit + 1 }},
		{"ratio below one", func(c *Config) { c.Coordinator.Overrequest.Ratio = 0.5 }},
		{"duplicate field", func(c *Config) {
			c.Schema.Fields = []FieldConfig{{Name: "a"}, {Name: "a"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaultConfig().Validate())
}
