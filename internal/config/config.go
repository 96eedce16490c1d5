// Package config loads blockindex settings from defaults, YAML files, a .env
// file and BLOCKINDEX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
)

const (
	// AppName names the user config and data directories.
	AppName = "blockindex"

	// DefaultDataDirName is created inside the graph root when no data
	// directory is configured. Hidden directories are never indexed.
	DefaultDataDirName = ".blockindex"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BLOCKINDEX_"
)

// Config is the complete blockindex configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Vectors VectorsConfig `yaml:"vectors" json:"vectors"`
	Import  ImportConfig  `yaml:"import" json:"import"`
	Sync    SyncConfig    `yaml:"sync" json:"sync"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StorageConfig selects where and how pages are persisted.
type StorageConfig struct {
	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver" json:"driver"`

	// DataDir holds the database and index files. Empty means
	// <graph>/.blockindex.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures the full-text index.
type SearchConfig struct {
	// Backend is "bleve" or "sqlite" (FTS5).
	Backend string `yaml:"backend" json:"backend"`

	MaxResults int `yaml:"max_results" json:"max_results"`
}

// VectorsConfig configures embeddings and the vector index.
type VectorsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Provider names the embedder: "static" or "none".
	Provider string `yaml:"provider" json:"provider"`

	// Dimensions must match the embedder when set. Zero takes the
	// embedder's.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	MaxWords  int `yaml:"max_words" json:"max_words"`
	Overlap   int `yaml:"overlap" json:"overlap"`
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ImportConfig configures bulk import.
type ImportConfig struct {
	// Concurrency bounds in-flight files for import and sync alike.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// SyncConfig configures live synchronization.
type SyncConfig struct {
	Debounce         string `yaml:"debounce" json:"debounce"`
	PollInterval     string `yaml:"poll_interval" json:"poll_interval"`
	EventBuffer      int    `yaml:"event_buffer" json:"event_buffer"`
	ReconcileOnStart bool   `yaml:"reconcile_on_start" json:"reconcile_on_start"`
	ForcePolling     bool   `yaml:"force_polling" json:"force_polling"`
}

// LoggingConfig configures the file logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Search: SearchConfig{
			Backend:    "bleve",
			MaxResults: 20,
		},
		Vectors: VectorsConfig{
			Enabled:   true,
			Provider:  "static",
			MaxWords:  150,
			Overlap:   50,
			BatchSize: 32,
			CacheSize: 4096,
		},
		Import: ImportConfig{
			Concurrency: 4,
		},
		Sync: SyncConfig{
			Debounce:         "500ms",
			PollInterval:     "2s",
			EventBuffer:      1000,
			ReconcileOnStart: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/blockindex/config.yaml, or ~/.config/blockindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", AppName, "config.yaml")
	}
	return filepath.Join(home, ".config", AppName, "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	info, err := os.Stat(GetUserConfigPath())
	return err == nil && !info.IsDir()
}

// Load builds the configuration for the graph at root. Later sources win:
//  1. defaults
//  2. user config
//  3. .blockindex.yaml (or .yml) in root
//  4. root/.env, which never overrides variables already set
//  5. BLOCKINDEX_* environment variables
//
// root may be empty, in which case steps 3 and 4 are skipped.
func Load(root string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, err
	}
	if root != "" {
		if err := cfg.loadProjectFile(root); err != nil {
			return nil, err
		}
		if err := loadDotEnv(filepath.Join(root, ".env")); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadProjectFile(root string) error {
	for _, name := range []string{"." + AppName + ".yaml", "." + AppName + ".yml"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over c. Keys absent from the file keep their
// current value. A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return amerrors.ConfigError("read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return amerrors.ConfigError("parse config file "+path, err).
			WithSuggestion("check the YAML syntax of " + path)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return amerrors.ConfigError("load "+path, err)
	}
	return nil
}

// applyEnvOverrides applies BLOCKINDEX_* variables. Values that do not
// parse are ignored.
func (c *Config) applyEnvOverrides() {
	if v := env("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := env("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := env("SEARCH_BACKEND"); v != "" {
		c.Search.Backend = v
	}
	if v := env("VECTORS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Vectors.Enabled = b
		}
	}
	if v := env("EMBEDDER"); v != "" {
		c.Vectors.Provider = v
	}
	if v := env("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Import.Concurrency = n
		}
	}
	if v := env("DEBOUNCE"); v != "" {
		c.Sync.Debounce = v
	}
	if v := env("POLL_INTERVAL"); v != "" {
		c.Sync.PollInterval = v
	}
	if v := env("FORCE_POLLING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sync.ForcePolling = b
		}
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		return invalid("storage.driver must be 'sqlite' or 'sqlite3', got %q", c.Storage.Driver)
	}
	switch c.Search.Backend {
	case "bleve", "sqlite":
	default:
		return invalid("search.backend must be 'bleve' or 'sqlite', got %q", c.Search.Backend)
	}
	if c.Search.MaxResults <= 0 {
		return invalid("search.max_results must be positive, got %d", c.Search.MaxResults)
	}

	switch strings.ToLower(c.Vectors.Provider) {
	case "static", "none":
	default:
		return invalid("vectors.provider must be 'static' or 'none', got %q", c.Vectors.Provider)
	}
	if c.Vectors.Dimensions < 0 {
		return invalid("vectors.dimensions must not be negative, got %d", c.Vectors.Dimensions)
	}
	if c.Vectors.MaxWords <= 0 || c.Vectors.Overlap < 0 || c.Vectors.Overlap >= c.Vectors.MaxWords {
		return invalid("vectors.overlap must be in [0, max_words), got overlap=%d max_words=%d",
			c.Vectors.Overlap, c.Vectors.MaxWords)
	}
	if c.Vectors.BatchSize <= 0 {
		return invalid("vectors.batch_size must be positive, got %d", c.Vectors.BatchSize)
	}

	if c.Import.Concurrency <= 0 {
		return invalid("import.concurrency must be positive, got %d", c.Import.Concurrency)
	}

	if _, err := c.DebounceDuration(); err != nil {
		return invalid("sync.debounce: %v", err)
	}
	if _, err := c.PollIntervalDuration(); err != nil {
		return invalid("sync.poll_interval: %v", err)
	}
	if c.Sync.EventBuffer <= 0 {
		return invalid("sync.event_buffer must be positive, got %d", c.Sync.EventBuffer)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level must be 'debug', 'info', 'warn' or 'error', got %q", c.Logging.Level)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return amerrors.ConfigError(fmt.Sprintf(format, args...), nil)
}

// DebounceDuration parses Sync.Debounce.
func (c *Config) DebounceDuration() (time.Duration, error) {
	return positiveDuration(c.Sync.Debounce)
}

// PollIntervalDuration parses Sync.PollInterval.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	return positiveDuration(c.Sync.PollInterval)
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// DataPath returns the data directory for the graph at root.
func (c *Config) DataPath(root string) string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return filepath.Join(root, DefaultDataDirName)
}

// VectorsActive reports whether a vector index will be built.
func (c *Config) VectorsActive() bool {
	return c.Vectors.Enabled && !strings.EqualFold(c.Vectors.Provider, "none")
}

// WriteYAML writes the configuration to path, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
