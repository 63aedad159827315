package resolver

import (
	"log/slog"
	"time"
)

// options holds Redis resolver configuration.
type options struct {
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

// Option configures the Redis resolver.
type Option func(*options)

// WithKeyPrefix sets the Redis key prefix.
// Default is "smsbox:contact:".
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithTTL sets how long a resolved address stays cached.
// Default is 24 hours. Zero keeps entries until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.ttl = ttl
		}
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
