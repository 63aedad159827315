package sqlstore

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultTable       = "sms_messages"
	DefaultThreadTable = "sms_threads"
	DefaultTimeout     = 10 * time.Second
)

// options holds SQL store configuration.
type options struct {
	table       string
	threadTable string
	timeout     time.Duration
	logger      *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		table:       DefaultTable,
		threadTable: DefaultThreadTable,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a SQL store.
type Option func(*options)

// WithTable sets the messages table name.
func WithTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}

// WithThreadTable sets the threads table name.
func WithThreadTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.threadTable = name
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
