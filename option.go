package smsbox

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/smsbox/retry"
	"github.com/rbaliyan/smsbox/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultRetentionCap    = 1000             // messages kept per thread
	MinRetentionCap        = 1                // minimum retention cap
	DefaultQueueSize       = 256              // dispatcher queue capacity
	DefaultShutdownTimeout = 30 * time.Second // default graceful shutdown timeout
	MinShutdownTimeout     = 1 * time.Second  // minimum shutdown timeout

	// Default message limits
	DefaultMaxBodySize      = 16 * 1024 // 16 KB
	DefaultMaxAddressLength = 64

	// DefaultPageSize is the number of records fetched per page by Query.
	DefaultPageSize = 100
)

// options holds service configuration.
type options struct {
	store     store.Store
	transport Transport
	radio     Radio
	notifier  Notifier
	display   Display
	threads   ThreadResolver
	contacts  ContactResolver
	archiver  Archiver
	logger    *slog.Logger
	clock     func() time.Time

	retentionCap int
	queueSize    int
	pageSize     int

	// Message limits
	maxBodySize      int
	maxAddressLength int

	// Shutdown
	shutdownTimeout time.Duration

	// Store connect retry
	connectRetry retry.Config

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventTransport        transport.Transport     // Event transport (optional, uses noop if nil)
	redisClient           redis.UniversalClient   // Redis client for event transport (optional)
	onEventPublishFailure EventPublishFailureFunc // Callback for event publish failures (always set)
}

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "MessageStored"), and err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic recovery.
// If the callback panics, the panic is logged and suppressed to prevent cascading failures.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:           slog.Default(),
		clock:            time.Now,
		retentionCap:     DefaultRetentionCap,
		queueSize:        DefaultQueueSize,
		pageSize:         DefaultPageSize,
		maxBodySize:      DefaultMaxBodySize,
		maxAddressLength: DefaultMaxAddressLength,
		shutdownTimeout:  DefaultShutdownTimeout,
		connectRetry:     retry.DefaultConfig(),
		serviceName:      "smsbox",
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.notifier == nil {
		o.notifier = logNotifier{logger: o.logger}
	}
	if o.display == nil {
		o.display = logDisplay{logger: o.logger}
	}
	if o.contacts == nil {
		o.contacts = identityContacts{}
	}
	if o.threads == nil && o.store != nil {
		o.threads = storeThreads{store: o.store}
	}

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures a service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithTransport sets the transport that accepts queued messages for sending.
// Either a transport or a radio is required.
func WithTransport(t Transport) Option {
	return func(o *options) {
		if t != nil {
			o.transport = t
		}
	}
}

// WithRadio sets a radio and sends through an OutboxSender built on it.
// Ignored when WithTransport is also given.
func WithRadio(r Radio) Option {
	return func(o *options) {
		if r != nil {
			o.radio = r
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

// WithClock sets the time source for receipt and enqueue timestamps.
// Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// --- Collaborator Options ---

// WithNotifier sets the user notification collaborator.
// Default logs notifications at debug level.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithDisplay sets the class-zero display collaborator.
// Default logs and drops class-zero messages.
func WithDisplay(d Display) Option {
	return func(o *options) {
		if d != nil {
			o.display = d
		}
	}
}

// WithThreadResolver sets the thread resolver.
// Default resolves threads through the store.
func WithThreadResolver(r ThreadResolver) Option {
	return func(o *options) {
		if r != nil {
			o.threads = r
		}
	}
}

// WithContactResolver sets the address normaliser.
// Default returns addresses unchanged.
func WithContactResolver(r ContactResolver) Option {
	return func(o *options) {
		if r != nil {
			o.contacts = r
		}
	}
}

// WithArchiver sets an archiver that receives messages before they are recycled.
func WithArchiver(a Archiver) Option {
	return func(o *options) {
		if a != nil {
			o.archiver = a
		}
	}
}

// --- Retention and Queue Options ---

// WithRetentionCap sets the maximum number of messages kept per thread.
// Default is 1000. Minimum is 1.
func WithRetentionCap(n int) Option {
	return func(o *options) {
		if n >= MinRetentionCap {
			o.retentionCap = n
		}
	}
}

// WithQueueSize sets the dispatcher queue capacity.
// Default is 256.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithPageSize sets how many records Query fetches per round trip.
// Default is 100.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for queued events
// during graceful shutdown.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// WithConnectRetry sets the retry policy for connecting the store.
// Default is retry.DefaultConfig().
func WithConnectRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.connectRetry = cfg
	}
}

// --- Message Limit Options ---

// WithMaxBodySize sets the maximum body size in bytes.
// Default is 16 KB.
func WithMaxBodySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithMaxAddressLength sets the maximum address length in bytes.
// Default is 64.
func WithMaxAddressLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAddressLength = n
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for telemetry and event bus names.
// Default is "smsbox".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventTransport sets the event transport for publishing and subscribing.
// If not provided, a noop transport is used (events are silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient publishes events to Redis Streams.
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// Publishing failures never fail the operation that produced the event.
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// limits returns the configured message limits.
func (o *options) limits() Limits {
	return Limits{
		MaxBodySize:      o.maxBodySize,
		MaxAddressLength: o.maxAddressLength,
	}
}
