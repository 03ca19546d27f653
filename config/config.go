/*
Package config loads server configuration.

PURPOSE:
  Server-level settings (port, database path, CORS origins) come from an
  optional YAML file with sane defaults, overridable by flags in
  cmd/server. Settlement constants (rates, period length, payment term)
  deliberately do NOT live here: they are fixed by the business model and
  exposed through settlement.DefaultConfig().

EXAMPLE FILE:
  port: 8080
  database: ./data/settlement.db
  cors_origins:
    - http://localhost:5173
*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds server-level settings.
type Server struct {
	Port        int      `yaml:"port"`
	Database    string   `yaml:"database"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the configuration used when no file is supplied.
func Default() Server {
	return Server{
		Port:     8080,
		Database: "settlement.db",
		CORSOrigins: []string{
			"http://localhost:5173",
			"http://localhost:8080",
		},
	}
}

// Load reads a YAML config file, filling unset fields from Default().
// An empty path returns Default() unchanged.
func Load(path string) (Server, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = Default().Port
	}
	if cfg.Database == "" {
		cfg.Database = Default().Database
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = Default().CORSOrigins
	}
	return cfg, nil
}
