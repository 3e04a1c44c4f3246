package compiler

import (
	"runtime"

	"github.com/rs/zerolog"
)

// Option configures translation.
type Option func(*config)

type config struct {
	logger  zerolog.Logger
	workers int
}

func newConfig(opts []Option) *config {
	cfg := &config{
		logger:  zerolog.Nop(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg
}

// WithLogger sets the logger used for debug and warning output. By default
// nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithWorkers limits how many functions TranslateAll translates at once.
// It defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(cfg *config) {
		cfg.workers = n
	}
}
