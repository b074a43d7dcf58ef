package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "pcr.yaml")

	cfg := Default()
	cfg.Root = "/srv/project"
	cfg.Watch.Globs = []string{"**/*.go", "**/*.md"}
	cfg.Server.Port = 9000
	cfg.Journal.Enabled = false

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, Default().Watch.Exclude, cfg.Watch.Exclude)
	assert.Equal(t, Default().Logging.Level, cfg.Logging.Level)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"empty root", func(c *Config) { c.Root = "" }, false},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, false},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, false},
		{"negative cache", func(c *Config) { c.Cache.MaxEntries = -1 }, false},
		{"journal without path", func(c *Config) { c.Journal.Path = "" }, false},
		{"journal disabled without path", func(c *Config) { c.Journal.Enabled = false; c.Journal.Path = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWatchReloadsOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pcr.yaml")
	require.NoError(t, Save(Default(), path))

	var mu sync.Mutex
	var got *Config
	stop, err := Watch(path, zap.NewNop(), func(cfg *Config) {
		mu.Lock()
		got = cfg
		mu.Unlock()
	})
	require.NoError(t, err)
	defer stop()

	updated := Default()
	updated.Server.Port = 9123
	require.NoError(t, Save(updated, path))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Server.Port == 9123
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchIgnoresInvalidRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pcr.yaml")
	require.NoError(t, Save(Default(), path))

	var calls int
	var mu sync.Mutex
	stop, err := Watch(path, zap.NewNop(), func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}
