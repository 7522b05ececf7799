// Package config loads ledgerattach settings.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, LEDGERATTACH_* environment variables, then command-line
// overrides. The merged result is validated against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. LEDGERATTACH_DATABASE_DSN.
const EnvPrefix = "LEDGERATTACH"

type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Ledger   LedgerConfig   `yaml:"ledger" json:"ledger"`
	Rebuild  RebuildConfig  `yaml:"rebuild" json:"rebuild"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Export   ExportConfig   `yaml:"export" json:"export"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
}

type LedgerConfig struct {
	Table string `yaml:"table" json:"table"`
}

type RebuildConfig struct {
	// Namespace is the Postgres schema, or the table prefix on SQLite.
	Namespace string `yaml:"namespace" json:"namespace"`
	Views     bool   `yaml:"views" json:"views"`
	FetchSize int    `yaml:"fetch_size" json:"fetch_size" split_words:"true"`
}

type MetricsConfig struct {
	// Textfile is a node_exporter textfile path; empty disables it.
	Textfile string `yaml:"textfile" json:"textfile"`
}

type ExportConfig struct {
	// Destination is the default export target: a path or gs://bucket/object.
	Destination string `yaml:"destination" json:"destination"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "ledgerattach.db"},
		Ledger:   LedgerConfig{Table: "transactions"},
		Rebuild:  RebuildConfig{Namespace: "attachment", Views: true, FetchSize: 1000},
	}
}

// Override adjusts a loaded config before validation.
type Override func(*Config)

// Load builds the configuration. An empty path skips the file layer.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error reading env config: %w", err)
	}

	for _, o := range overrides {
		o(cfg)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := Parse(cfg, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Parse decodes YAML over cfg. Fields absent from the document keep their
// current values; unknown fields are an error.
func Parse(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}
