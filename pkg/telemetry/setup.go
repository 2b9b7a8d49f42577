package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"time"

	"github.com/argus-labs/presence/pkg/assert"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// shutdowns collects the stop functions of started providers.
type shutdowns []func(context.Context) error

func (s *shutdowns) run(ctx context.Context) error {
	var errs error
	for _, fn := range *s {
		errs = errors.Join(errs, fn(ctx))
	}
	*s = nil
	return errs
}

// setupOpenTelemetry builds the logger and, when enabled, an OTLP-exporting tracer provider.
// The returned shutdown function flushes and stops every provider that was started. A failure
// after the logger exists still returns it, together with a noop tracer.
func setupOpenTelemetry(
	ctx context.Context,
	enabled bool,
	opts Options,
) (trace.Tracer, zerolog.Logger, func(context.Context) error, error) {
	var started shutdowns
	logger := newLogger(opts)
	fallback := noop.NewTracerProvider().Tracer(opts.ServiceName)

	if !enabled {
		return fallback, logger, started.run, nil
	}

	res, err := newResource(opts)
	if err != nil {
		return fallback, logger, started.run, errors.Join(err, started.run(ctx))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	provider, err := newTracerProvider(ctx, res, opts)
	if err != nil {
		return fallback, logger, started.run, errors.Join(err, started.run(ctx))
	}
	started = append(started, provider.Shutdown)
	otel.SetTracerProvider(provider)

	logger.Debug().
		Str("endpoint", opts.Endpoint).
		Float64("sample_rate", opts.TraceSampleRate).
		Msg("tracing enabled")
	return provider.Tracer(opts.ServiceName), logger, started.run, nil
}

// newResource describes the service. ResourceAttributes are added in key order. The attributes are
// schemaless so merging never conflicts with the SDK default's schema URL.
func newResource(opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	}
	keys := make([]string, 0, len(opts.ResourceAttributes))
	for k := range opts.ResourceAttributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, opts.ResourceAttributes[k]))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, eris.Wrap(err, "failed to build otel resource")
	}
	return res, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, opts Options) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(opts.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, eris.Wrap(err, "failed to create OTLP trace exporter")
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(opts.TraceSampleRate)),
	), nil
}

// newSampler samples everything at 1, nothing at 0 and follows the parent span in between.
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// newLogger creates a logger with the configured level and format, writing to Output or stdout.
func newLogger(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	var writer io.Writer
	switch opts.LogFormat {
	case LogFormatPretty:
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case LogFormatJSON:
		writer = out
	case LogFormatUndefined:
		assert.That(false, "log format must be resolved before building the logger")
		writer = out
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}
