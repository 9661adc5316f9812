// Package config loads the dispatcher's process-wide tuning knobs (spec's
// §6 configuration keys) from the environment, following the same
// envconfig pattern the corpus uses for service configuration.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the broker and tick tuning knobs a hosting process sets.
type Config struct {
	// MaxThreads is the hard cap on process-wide worker thread population.
	MaxThreads int `envconfig:"MAX_THREADS" default:"1000"`

	// ReservedDispatchThreads is the broker's target reserve size.
	ReservedDispatchThreads int `envconfig:"RESERVED_DISPATCH_THREADS" default:"20"`

	// MinReservedDispatchThreads is the floor below which the broker
	// lazily creates new workers. Defaults to half the target reserve.
	MinReservedDispatchThreads int `envconfig:"MIN_RESERVED_DISPATCH_THREADS" default:"10"`

	// GlobalTickIntervalMS is the global tick's cadence in milliseconds.
	GlobalTickIntervalMS int `envconfig:"GLOBAL_TICK_INTERVAL_MS" default:"100"`

	// LogLevel controls the observability logger's verbosity.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// TickInterval returns GlobalTickIntervalMS as a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.GlobalTickIntervalMS) * time.Millisecond
}

// Load reads configuration from the environment, applying defaults for any
// key that is unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
