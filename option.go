package message

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/message/resolver"
	"github.com/rbaliyan/message/retry"
	"github.com/rbaliyan/message/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	// DefaultMaxTitleLength is the maximum title length in runes.
	DefaultMaxTitleLength = 255

	// DefaultMaxBodySize is the maximum body size in bytes.
	DefaultMaxBodySize = 64 * 1024

	// DefaultQueryLimit is applied when a listing specifies no limit.
	DefaultQueryLimit = 50

	// DefaultMaxQueryLimit caps listing page sizes.
	DefaultMaxQueryLimit = 500

	// DefaultMaxConcurrentComposes limits in-flight compose pipelines.
	DefaultMaxConcurrentComposes = 100

	// DefaultShutdownTimeout bounds the graceful-close drain.
	DefaultShutdownTimeout = 30 * time.Second
)

// NotificationPolicy decides per recipient whether to dispatch a
// notification. It may consult user preferences.
type NotificationPolicy func(ctx context.Context, userID string) bool

// ElevatedChecker decides whether a viewer holds the elevated role that
// unlocks the duplicate-title sequence annotation. When unset, the
// directory's Elevated flag is used.
type ElevatedChecker func(ctx context.Context, userID string) bool

// EventPublishFailureFunc is called when event publishing fails and
// event errors are not fatal.
type EventPublishFailureFunc func(event string, err error)

type options struct {
	store     store.Store
	directory resolver.Directory
	notifier  Notifier
	logger    *slog.Logger
	plugins   []Plugin

	maxTitleLength int
	maxBodySize    int

	defaultQueryLimit int
	maxQueryLimit     int

	maxConcurrentComposes int
	shutdownTimeout       time.Duration

	serviceName    string
	tracingEnabled bool
	metricsEnabled bool
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	eventTransport      transport.Transport
	redisClient         redis.UniversalClient
	eventErrorsFatal    bool
	eventPublishFailure EventPublishFailureFunc

	queueNotifications bool
	notificationPolicy NotificationPolicy
	notifyRetry        retry.Config

	elevated        ElevatedChecker
	appendSignature bool
	strictAllow     bool
}

// Option configures the message service.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		logger:                slog.Default(),
		maxTitleLength:        DefaultMaxTitleLength,
		maxBodySize:           DefaultMaxBodySize,
		defaultQueryLimit:     DefaultQueryLimit,
		maxQueryLimit:         DefaultMaxQueryLimit,
		maxConcurrentComposes: DefaultMaxConcurrentComposes,
		shutdownTimeout:       DefaultShutdownTimeout,
		notifyRetry:           retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// safeEventPublishFailure invokes the configured failure handler,
// falling back to logging. A panicking handler must not take down the
// operation that triggered it.
func (o *options) safeEventPublishFailure(event string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("event publish failure handler panicked",
				"event", event, "panic", r)
		}
	}()
	if o.eventPublishFailure != nil {
		o.eventPublishFailure(event, err)
		return
	}
	o.logger.Warn("event publish failed", "event", event, "error", err)
}

// WithStore sets the storage backend. Required.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithDirectory sets the user directory. Required.
func WithDirectory(d resolver.Directory) Option {
	return func(o *options) { o.directory = d }
}

// WithNotifier sets the notification sender. Optional; without it no
// notifications are dispatched.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPlugin registers a plugin. May be repeated.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		if p != nil {
			o.plugins = append(o.plugins, p)
		}
	}
}

// WithMaxTitleLength overrides the title length limit.
func WithMaxTitleLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTitleLength = n
		}
	}
}

// WithMaxBodySize overrides the body size limit in bytes.
func WithMaxBodySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithQueryLimits sets the default and maximum listing page sizes.
func WithQueryLimits(defaultLimit, maxLimit int) Option {
	return func(o *options) {
		if defaultLimit > 0 {
			o.defaultQueryLimit = defaultLimit
		}
		if maxLimit > 0 {
			o.maxQueryLimit = maxLimit
		}
	}
}

// WithMaxConcurrentComposes limits in-flight compose pipelines.
func WithMaxConcurrentComposes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentComposes = n
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for in-flight
// operations.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithServiceName sets the name used for the event bus and telemetry.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithTracing enables OpenTelemetry tracing.
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tracingEnabled = enabled }
}

// WithMetrics enables OpenTelemetry metrics.
func WithMetrics(enabled bool) Option {
	return func(o *options) { o.metricsEnabled = enabled }
}

// WithOTel enables both tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithTracerProvider sets a custom tracer provider. Implies tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
			o.tracingEnabled = true
		}
	}
}

// WithMeterProvider sets a custom meter provider. Implies metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
			o.metricsEnabled = true
		}
	}
}

// WithEventTransport sets the event transport for publishing and
// subscribing. Without a transport events use a noop transport and are
// silently dropped.
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient enables the Redis Streams event transport.
// Compatible with *redis.Client, *redis.ClusterClient and
// redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventErrorsFatal makes operations return EventPublishError when
// publishing fails after the operation itself succeeded.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) { o.eventErrorsFatal = fatal }
}

// WithEventPublishFailureHandler sets the handler called on non-fatal
// event publish failures.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) { o.eventPublishFailure = fn }
}

// WithQueuedNotifications defers notification delivery to event bus
// consumers. The published event carries the message ID; consumers load
// the record at delivery time, so they always see its current state.
func WithQueuedNotifications(enabled bool) Option {
	return func(o *options) { o.queueNotifications = enabled }
}

// WithNotificationPolicy sets the per-recipient notification decision.
func WithNotificationPolicy(fn NotificationPolicy) Option {
	return func(o *options) { o.notificationPolicy = fn }
}

// WithNotifyRetry overrides the retry behavior for inline notification
// delivery.
func WithNotifyRetry(cfg retry.Config) Option {
	return func(o *options) { o.notifyRetry = cfg }
}

// WithElevatedChecker overrides how the elevated role is decided for
// the sequence annotation.
func WithElevatedChecker(fn ElevatedChecker) Option {
	return func(o *options) { o.elevated = fn }
}

// WithSignatureAppend appends the sender's stored signature body to
// outgoing message bodies.
func WithSignatureAppend(enabled bool) Option {
	return func(o *options) { o.appendSignature = enabled }
}

// WithStrictAllow requires an existing recipient -> sender allow edge
// before accepting a send (closed-circle mode). First contact must then
// come from the recipient's side.
func WithStrictAllow(enabled bool) Option {
	return func(o *options) { o.strictAllow = enabled }
}
