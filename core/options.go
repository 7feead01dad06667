package zipalign

import (
	"fmt"
	"log/slog"
)

// DefaultAlignment is the alignment used when no WithAlignment option is
// set. Four bytes gives 32-bit alignment, which Android expects.
const DefaultAlignment = 4

// config holds the settings shared by alignment and verification runs.
type config struct {
	alignment int
	overwrite bool
	logger    *slog.Logger
	progress  ProgressFunc
}

// Option configures an alignment or verification run.
type Option func(*config)

// WithAlignment sets the byte boundary stored payloads must start on.
// Values below 1 make the run fail with ErrInvalidAlignment.
func WithAlignment(n int) Option {
	return func(c *config) {
		c.alignment = n
	}
}

// WithOverwrite allows AlignFile to replace an existing output file.
// By default an existing output is an error.
func WithOverwrite(overwrite bool) Option {
	return func(c *config) {
		c.overwrite = overwrite
	}
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgress sets a callback that receives progress events, including
// exactly one terminal event per run.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

func newConfig(opts []Option) config {
	cfg := config{alignment: DefaultAlignment}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// validate checks settings that cannot be corrected silently.
func (c *config) validate() error {
	if c.alignment < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidAlignment, c.alignment)
	}
	return nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
