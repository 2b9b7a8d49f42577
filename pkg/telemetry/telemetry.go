package telemetry

import (
	"context"
	"time"

	"github.com/argus-labs/presence/pkg/telemetry/sentry"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	serviceName string

	shutdown func(context.Context) error
}

func New(opts Options) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load otel config")
	}

	options := newDefaultOptions()
	config.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid otel options")
	}

	if options.SentryOptions.Release == "" {
		options.SentryOptions.Release = options.ServiceName + "@" + options.ServiceVersion
	}
	if err := sentry.New(options.SentryOptions); err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup sentry")
	}

	ctx := context.Background()
	tracer, logger, shutdown, err := setupOpenTelemetry(ctx, config.Enabled, options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup telemetry")
	}

	return Telemetry{
		Logger:      logger,
		Tracer:      tracer,
		serviceName: options.ServiceName,
		shutdown:    shutdown,
	}, nil
}

// NewNop returns a Telemetry that discards logs and records no spans.
func NewNop(serviceName string) Telemetry {
	return Telemetry{
		Logger:      zerolog.Nop(),
		Tracer:      noop.NewTracerProvider().Tracer(serviceName),
		serviceName: serviceName,
	}
}

// NewWithLogger wraps an existing logger with a noop tracer. Useful in tests that want to see
// component output through zerolog.NewTestWriter.
func NewWithLogger(serviceName string, logger zerolog.Logger) Telemetry {
	tel := NewNop(serviceName)
	tel.Logger = logger
	return tel
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	sentry.Shutdown(ctx, 5*time.Second)
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// GetLoggerWithTrace returns a component-specific logger enriched with trace context.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	span := trace.SpanFromContext(ctx)

	logger := t.Logger.With().Str("component", t.serviceName+"."+component)

	if span.IsRecording() {
		spanCtx := span.SpanContext()
		logger = logger.
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String())
	}

	return logger.Logger()
}

// RecoverAndFlush must be deferred. It reports a panic to Sentry before rethrowing it when
// repanic is set.
func (t *Telemetry) RecoverAndFlush(repanic bool) {
	if r := recover(); r != nil {
		t.Logger.Error().Interface("panic", r).Msg("recovered panic")
		sentry.CapturePanic(r)
		if repanic {
			panic(r)
		}
	}
	sentry.Flush(2 * time.Second)
}

// CaptureException reports a handled error to Sentry. kv are tag key/value pairs; a trailing key
// without a value is dropped.
func (t *Telemetry) CaptureException(ctx context.Context, err error, kv ...string) {
	tags := make(map[string]string, len(kv)/2+1)
	tags["service"] = t.serviceName
	for i := 0; i+1 < len(kv); i += 2 {
		tags[kv[i]] = kv[i+1]
	}
	sentry.CaptureException(ctx, err, tags)
}
