package zipalign

import (
	"log/slog"
	nethttp "net/http"

	aligncore "github.com/meigma/zipalign/core"
	"github.com/meigma/zipalign/core/cache"
	alignhttp "github.com/meigma/zipalign/core/http"
)

// DefaultAlignment is the alignment used when WithAlignment is not given.
const DefaultAlignment = aligncore.DefaultAlignment

// DefaultEventBuffer is the capacity of a task's event channel.
const DefaultEventBuffer = 64

// Option configures an alignment or verification task.
type Option func(*config)

type config struct {
	coreOpts    []aligncore.Option
	httpOpts    []alignhttp.Option
	blockCache  *cache.BlockCache
	noCache     bool
	strict      bool
	eventBuffer int
	logger      *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{eventBuffer: DefaultEventBuffer}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// --- Run Options ---

// WithAlignment sets the byte boundary stored entries must start on.
func WithAlignment(n int) Option {
	return func(c *config) {
		c.coreOpts = append(c.coreOpts, aligncore.WithAlignment(n))
	}
}

// WithOverwrite allows an alignment to replace an existing output file.
func WithOverwrite(overwrite bool) Option {
	return func(c *config) {
		c.coreOpts = append(c.coreOpts, aligncore.WithOverwrite(overwrite))
	}
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
		c.coreOpts = append(c.coreOpts, aligncore.WithLogger(logger))
	}
}

// WithStrict makes Verify return ErrNotAligned when the archive has a
// misaligned stored entry. By default a misaligned archive is reported
// only through Report.Aligned.
func WithStrict() Option {
	return func(c *config) {
		c.strict = true
	}
}

// WithEventBuffer sets the capacity of a task's event channel.
// Intermediate events are dropped while the channel is full; the terminal
// event is always delivered.
func WithEventBuffer(n int) Option {
	return func(c *config) {
		c.eventBuffer = max(n, 1)
	}
}

// --- Remote Options ---

// WithHTTPClient sets the HTTP client used for remote archives.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, alignhttp.WithClient(client))
	}
}

// WithHTTPHeader sets a header sent with every request for a remote archive.
func WithHTTPHeader(key, value string) Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, alignhttp.WithHeader(key, value))
	}
}

// WithConditionalRequests sends If-Match or If-Unmodified-Since with range
// reads of remote archives, so a file replaced on the server mid-run is
// detected.
func WithConditionalRequests() Option {
	return func(c *config) {
		c.httpOpts = append(c.httpOpts, alignhttp.WithConditionalHeaders())
	}
}

// WithBlockCache shares a block cache between remote reads.
// By default every remote task gets a private cache.
func WithBlockCache(bc *cache.BlockCache) Option {
	return func(c *config) {
		c.blockCache = bc
		c.noCache = bc == nil
	}
}
