package config

import (
	"flag"
	"io"
)

// parseFlags overlays config with the global flags at the start of args and
// returns what follows them.
//
// Supported flags:
//
//	-c, -config string   config file (read by parseFile)
//	-t string            database driver: pgx or mysql
//	-d string            database DSN
//	-l string            log level
//	-f string            log format: text or json
//	-w duration          how long to wait for the database
//	-m                   skip schema migrations
func parseFlags(config *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("orderkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var file string
	fs.StringVar(&file, "c", "", "config file")
	fs.StringVar(&file, "config", "", "config file")

	fs.StringVar(&config.DatabaseDriver, "t", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format")
	fs.DurationVar(&config.ConnectTimeout, "w", config.ConnectTimeout, "database connect timeout")
	fs.BoolVar(&config.SkipMigrations, "m", config.SkipMigrations, "skip migrations")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}
