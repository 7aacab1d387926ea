package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/pdfviewer/pkg/engine"
	"github.com/recera/pdfviewer/pkg/scale"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "localhost:8090", cfg.Addr())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
viewer:
  layout: multi-page
  scale: 150%
server:
  port: 9000
watch: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0o644))

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.True(t, cfg.Watch)
	assert.Equal(t, "localhost:9000", cfg.Addr())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 1.0, cfg.Viewer.Zoom)
	assert.Equal(t, 8.0, cfg.TUI.CellWidth)

	initial, err := cfg.Initial()
	require.NoError(t, err)
	assert.Equal(t, engine.ContinuousPages, initial.Layout)
	assert.Equal(t, scale.Absolute(1.5), initial.Scale)
	assert.Equal(t, 1, initial.Page)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad layout", func(c *Config) { c.Viewer.Layout = "grid" }, true},
		{"bad scale", func(c *Config) { c.Viewer.Scale = "huge" }, true},
		{"negative zoom", func(c *Config) { c.Viewer.Zoom = -1 }, true},
		{"port range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"cache size", func(c *Config) { c.Cache.MaxSizeMB = -1 }, true},
		{"cache age", func(c *Config) { c.Cache.MaxAge = "a week" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("viewer:\n  scale: sideways\n"), 0o644))
	_, err := Load(path, "")
	assert.ErrorContains(t, err, "sideways")

	require.NoError(t, os.WriteFile(path, []byte("viewer: [unclosed"), 0o644))
	_, err = Load(path, "")
	assert.ErrorContains(t, err, "parse")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Viewer.Scale = "contain"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "contain", loaded.Viewer.Scale)
}

func TestCacheOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Dir = "/tmp/pdfcache"
	cfg.Cache.MaxSizeMB = 8
	cfg.Cache.MaxAge = "2h"

	opts, ok := cfg.CacheOptions()
	require.True(t, ok)
	assert.Equal(t, "/tmp/pdfcache", opts.Dir)
	assert.Equal(t, int64(8<<20), opts.MaxSize)
	assert.Equal(t, 2*time.Hour, opts.MaxAge)

	cfg.Cache.Disabled = true
	_, ok = cfg.CacheOptions()
	assert.False(t, ok)
}
