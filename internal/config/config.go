// Package config loads the feestore YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// Config is the on-disk configuration. Relative paths are resolved against
// the directory holding the config file.
type Config struct {
	// AppName prefixes backup file names.
	AppName string `yaml:"app_name"`

	// Backend selects the storage engine: sqlite, files or memory.
	Backend string `yaml:"backend"`

	// DataDir holds the live store.
	DataDir string `yaml:"data_dir"`

	// Database is the SQLite file name inside DataDir.
	Database string `yaml:"database"`

	// MemoryCapacity bounds the memory engine, in bytes.
	MemoryCapacity int64 `yaml:"memory_capacity"`

	// LegacyPath is a JSON key/value dump migrated into the store at startup.
	// Empty disables migration.
	LegacyPath string `yaml:"legacy_path"`

	BackupDir string `yaml:"backup_dir"`
	LogLevel  string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AppName:        "FeeManager",
		Backend:        string(storage.KindSQLite),
		DataDir:        "./data",
		Database:       "fee_manager.db",
		MemoryCapacity: storage.DefaultMemoryCapacity,
		BackupDir:      "./backups",
		LogLevel:       "info",
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.DataDir, &cfg.LegacyPath, &cfg.BackupDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can open a store.
func (c *Config) Validate() error {
	if _, err := storage.ParseKind(c.Backend); err != nil {
		return err
	}
	if c.AppName == "" {
		return fmt.Errorf("app_name is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Backend == string(storage.KindSQLite) && c.Database == "" {
		return fmt.Errorf("database is required for the sqlite backend")
	}
	if c.MemoryCapacity < 0 {
		return fmt.Errorf("memory_capacity must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// StorageOptions maps the configuration onto the engine selection.
func (c *Config) StorageOptions() storage.Options {
	kind := storage.Kind(c.Backend)
	opts := storage.Options{Kind: kind, Capacity: c.MemoryCapacity}
	switch kind {
	case storage.KindSQLite:
		opts.Path = filepath.Join(c.DataDir, c.Database)
	case storage.KindFiles:
		opts.Path = c.DataDir
	case storage.KindMemory:
		opts.Path = filepath.Join(c.DataDir, "store.json")
	}
	return opts
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
