// Package config holds the small shared pieces of service configuration:
// environment parsing and fatal CLI exits.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from KIOSK_ANALYTICS_* environment variables
// declared with `env` struct tags. Flag values layered on top by the
// entrypoint take precedence over anything read here.
func ParseEnv(target any) error {
	if target == nil {
		return fmt.Errorf("parse environment config: nil target")
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse environment config: %w", err)
	}
	return nil
}
