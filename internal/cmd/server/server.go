// Package server parses verification service flags and launches the service.
package server

import (
	"context"
	"flag"

	entrypoint "github.com/uwezert/verification/internal/platform/cmd"
	app "github.com/uwezert/verification/internal/services/verification/app"
)

// Config holds verification command configuration.
type Config struct {
	Port int `env:"UWEZERT_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The verification HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the verification HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVerification, func(context.Context) error {
		return app.Run(ctx, cfg.Port)
	})
}
