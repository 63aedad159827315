package archive

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rbaliyan/smsbox/retry"
)

// options holds Archiver configuration.
type options struct {
	prefix string
	retry  retry.Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Archiver.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		prefix: "smsbox-archive",
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithPrefix sets the object key prefix.
// Default is "smsbox-archive".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if p := strings.Trim(prefix, "/"); p != "" {
			o.prefix = p
		}
	}
}

// WithRetry sets the upload retry policy.
// Default is retry.DefaultConfig().
func WithRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used for key partitioning.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
