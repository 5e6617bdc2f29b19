// Package server parses server command flags and starts the analytics
// service runtime.
package server

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/app"
	entrypoint "github.com/meridianworks/kiosk-analytics/internal/platform/cmd"
)

// Config holds server command configuration.
type Config struct {
	Port     int    `env:"KIOSK_ANALYTICS_PORT" envDefault:"4000"`
	Addr     string `env:"KIOSK_ANALYTICS_ADDR"`
	DBPath   string `env:"KIOSK_ANALYTICS_DB" envDefault:"analytics.db"`
	InMemory bool   `env:"KIOSK_ANALYTICS_IN_MEMORY"`
	AdminKey string `env:"KIOSK_ANALYTICS_ADMIN_KEY"`

	HeartbeatSeconds int `env:"KIOSK_ANALYTICS_HEARTBEAT_SECONDS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The analytics server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The analytics server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The SQLite database file path")
	fs.BoolVar(&cfg.InMemory, "memory", cfg.InMemory, "Keep the live database in memory with debounced snapshots to the db file")
	fs.StringVar(&cfg.AdminKey, "admin-key", cfg.AdminKey, "Shared secret gating the read endpoints (empty leaves them open)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the analytics HTTP service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		srv, err := app.NewServer(ctx, app.Config{
			Addr:              addr,
			DBPath:            cfg.DBPath,
			InMemory:          cfg.InMemory,
			AdminKey:          cfg.AdminKey,
			HeartbeatInterval: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		defer srv.Close()
		return srv.ListenAndServe(ctx)
	})
}
