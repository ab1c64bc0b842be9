package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/orderkeeper/internal/flagx"
	"github.com/dmitrijs2005/orderkeeper/internal/timex"
)

// FileConfig is the on-disk form of Config. Unset keys keep the current
// value; durations accept "30s" or integer nanoseconds.
type FileConfig struct {
	DatabaseDriver string          `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN    string          `json:"database_dsn" yaml:"database_dsn"`
	LogLevel       string          `json:"log_level" yaml:"log_level"`
	LogFormat      string          `json:"log_format" yaml:"log_format"`
	ConnectTimeout *timex.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	SkipMigrations *bool           `json:"skip_migrations" yaml:"skip_migrations"`
}

// parseFile loads the file named by -c or -config in args, if any. Files
// ending in .yaml or .yml are read as YAML, anything else as JSON.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	if c.DatabaseDriver != "" {
		config.DatabaseDriver = c.DatabaseDriver
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
	if c.LogFormat != "" {
		config.LogFormat = c.LogFormat
	}
	if c.ConnectTimeout != nil {
		config.ConnectTimeout = c.ConnectTimeout.Duration
	}
	if c.SkipMigrations != nil {
		config.SkipMigrations = *c.SkipMigrations
	}
}
