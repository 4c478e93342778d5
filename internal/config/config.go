// Package config provides configuration for the findit application, loaded
// from an optional TOML file with command line flag overrides.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Backend names the storage implementations selectable at startup.
const (
	BackendSQLite = "sqlite"
	BackendDuckDB = "duckdb"
)

// Config captures runtime configuration for the findit application.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `toml:"listen"`

	// DatabasePath locates the metadata store on disk.
	DatabasePath string `toml:"database_path"`

	// Backend selects the store implementation: "sqlite" (default) or
	// "duckdb" (accelerated).
	Backend string `toml:"backend"`

	// BatchSize bounds how many entries one insert transaction carries.
	BatchSize int `toml:"batch_size"`

	// ProgressEvery is the crawl progress interval in indexed files.
	ProgressEvery int `toml:"progress_every"`

	// CandidateMultiplier sizes the regex candidate superset as a multiple
	// of the result cap. A heuristic, not a completeness guarantee.
	CandidateMultiplier int `toml:"regex_candidate_multiplier"`

	// AllowDotDirs lists hidden directory names the crawler still descends
	// into.
	AllowDotDirs []string `toml:"allow_dot_dirs"`

	// MaxResults is the default search result cap.
	MaxResults int `toml:"max_results"`
}

// Default returns the built-in configuration.
func Default() Config {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	return Config{
		ListenAddr:          ":8080",
		DatabasePath:        filepath.Join(configDir, "findit", "fileindex.db"),
		Backend:             BackendSQLite,
		BatchSize:           1000,
		ProgressEvery:       1000,
		CandidateMultiplier: 10,
		AllowDotDirs:        []string{".local", ".config"},
		MaxResults:          1000,
	}
}

// DefaultFilePath returns the conventional config file location.
func DefaultFilePath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "findit", "config.toml")
}

// Load reads a TOML config file over the built-in defaults. A missing file is
// not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot be acted on.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendSQLite, BackendDuckDB:
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Backend, BackendSQLite, BackendDuckDB)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("database path cannot be empty")
	}
	return nil
}

// FromFlags parses configuration from command line flags layered over the
// config file. It should be called once by the main package after its own
// flags have been registered.
func FromFlags() (Config, error) {
	var (
		configPath string
		listen     string
		dbPath     string
		backend    string
	)

	flag.StringVar(&configPath, "config", DefaultFilePath(), "path to TOML config file")
	flag.StringVar(&listen, "listen", "", "HTTP listen address")
	flag.StringVar(&dbPath, "db", "", "path to the metadata database")
	flag.StringVar(&backend, "backend", "", "storage backend: sqlite or duckdb")
	flag.Parse()

	cfg, err := Load(configPath)
	if err != nil {
		return Config{}, err
	}

	if listen != "" {
		cfg.ListenAddr = listen
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
