package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

// isolate points the user config at an empty directory and clears
// BLOCKINDEX_* variables for the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	for _, name := range []string{
		"STORAGE_DRIVER", "DATA_DIR", "SEARCH_BACKEND", "VECTORS_ENABLED", "EMBEDDER",
		"CONCURRENCY", "DEBOUNCE", "POLL_INTERVAL", "FORCE_POLLING", "LOG_LEVEL",
	} {
		t.Setenv(EnvPrefix+name, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Empty(t, cfg.Storage.DataDir)
	assert.Equal(t, "bleve", cfg.Search.Backend)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.True(t, cfg.Vectors.Enabled)
	assert.Equal(t, "static", cfg.Vectors.Provider)
	assert.Equal(t, 150, cfg.Vectors.MaxWords)
	assert.Equal(t, 50, cfg.Vectors.Overlap)
	assert.Equal(t, 4, cfg.Import.Concurrency)
	assert.Equal(t, "500ms", cfg.Sync.Debounce)
	assert.True(t, cfg.Sync.ReconcileOnStart)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_UsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	root := t.TempDir()

	// Given: a user config, a project config overriding part of it, and an
	// environment variable overriding the project
	writeFile(t, filepath.Join(home, AppName, "config.yaml"), `
search:
  backend: sqlite
  max_results: 5
import:
  concurrency: 2
`)
	writeFile(t, filepath.Join(root, ".blockindex.yaml"), `
search:
  max_results: 7
sync:
  debounce: 1s
`)
	t.Setenv("BLOCKINDEX_CONCURRENCY", "9")

	// When
	cfg, err := Load(root)

	// Then
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Search.Backend)
	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, 9, cfg.Import.Concurrency)
	assert.Equal(t, "1s", cfg.Sync.Debounce)
	// Keys absent everywhere keep their defaults.
	assert.Equal(t, 150, cfg.Vectors.MaxWords)
}

func TestLoad_YMLFallback(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".blockindex.yml"), "vectors:\n  enabled: false\n")

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.False(t, cfg.Vectors.Enabled)
	assert.False(t, cfg.VectorsActive())
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	t.Cleanup(func() { _ = os.Unsetenv("BLOCKINDEX_TEST_ONLY") })

	// Given: .env sets a variable that is already set and one that is not
	t.Setenv("BLOCKINDEX_LOG_LEVEL", "warn")
	writeFile(t, filepath.Join(root, ".env"), "BLOCKINDEX_LOG_LEVEL=debug\nBLOCKINDEX_TEST_ONLY=yes\n")

	// When
	cfg, err := Load(root)

	// Then: the environment wins, new variables are loaded
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "yes", os.Getenv("BLOCKINDEX_TEST_ONLY"))
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".blockindex.yaml"), "search: [unclosed")

	_, err := Load(root)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("BLOCKINDEX_CONCURRENCY", "lots")
	t.Setenv("BLOCKINDEX_VECTORS_ENABLED", "maybe")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Import.Concurrency)
	assert.True(t, cfg.Vectors.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"backend", func(c *Config) { c.Search.Backend = "lucene" }},
		{"max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"provider", func(c *Config) { c.Vectors.Provider = "openai" }},
		{"dimensions", func(c *Config) { c.Vectors.Dimensions = -1 }},
		{"overlap", func(c *Config) { c.Vectors.Overlap = c.Vectors.MaxWords }},
		{"batch size", func(c *Config) { c.Vectors.BatchSize = 0 }},
		{"concurrency", func(c *Config) { c.Import.Concurrency = 0 }},
		{"debounce", func(c *Config) { c.Sync.Debounce = "soon" }},
		{"negative poll", func(c *Config) { c.Sync.PollInterval = "-1s" }},
		{"event buffer", func(c *Config) { c.Sync.EventBuffer = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.True(t, amerrors.IsFatal(err))
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := NewConfig()

	d, err := cfg.DebounceDuration()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	p, err := cfg.PollIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p)
}

func TestDataPath(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, filepath.Join("/g", DefaultDataDirName), cfg.DataPath("/g"))

	cfg.Storage.DataDir = "/var/lib/blockindex"
	assert.Equal(t, "/var/lib/blockindex", cfg.DataPath("/g"))
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	path := GetUserConfigPath()

	// Given: a modified config written as the user config
	cfg := NewConfig()
	cfg.Search.Backend = "sqlite"
	cfg.Sync.ForcePolling = true
	require.NoError(t, cfg.WriteYAML(path))
	assert.True(t, UserConfigExists())

	// When
	loaded, err := Load("")

	// Then
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetUserConfigPath_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	assert.Equal(t, filepath.Join("/xdg", AppName, "config.yaml"), GetUserConfigPath())
}
