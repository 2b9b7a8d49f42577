// Package sentry reports engine errors and panics. Every function is a no-op until New has been
// called with a DSN.
package sentry

import (
	"context"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/trace"
)

const panicFlushTimeout = 5 * time.Second

type Options struct {
	Dsn         string
	Environment string
	Release     string
	// SampleRate is the share of error events sent, in (0, 1]. Zero sends everything.
	SampleRate float64
	Tags       map[string]string
}

func New(opt Options) error {
	if opt.Dsn == "" {
		return nil
	}
	if opt.SampleRate < 0 || opt.SampleRate > 1 {
		return eris.Errorf("sentry sample rate must be between 0 and 1, got %v", opt.SampleRate)
	}
	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:         opt.Dsn,
		Environment: opt.Environment,
		Release:     opt.Release,
		SampleRate:  opt.SampleRate,
		Tags:        opt.Tags,
	})
	return eris.Wrap(err, "failed to initialize sentry")
}

// CapturePanic reports a recovered panic value and flushes right away, since the process is
// usually about to die.
func CapturePanic(r any) {
	if !enabled() {
		return
	}
	sentrygo.CurrentHub().Recover(r)
	sentrygo.Flush(panicFlushTimeout)
}

func Flush(timeout time.Duration) {
	if enabled() {
		sentrygo.Flush(timeout)
	}
}

// CaptureException reports a handled error. tags are added to the event on top of the global
// ones, and the active span's ids are attached when ctx carries one.
func CaptureException(ctx context.Context, err error, tags map[string]string) {
	if !enabled() || err == nil {
		return
	}
	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		scope.SetTags(tags)
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			scope.SetTag("trace_id", spanCtx.TraceID().String())
			scope.SetTag("span_id", spanCtx.SpanID().String())
		}
		sentrygo.CaptureException(err)
	})
}

// Shutdown flushes buffered events within timeout, or sooner if ctx has an earlier deadline.
func Shutdown(ctx context.Context, timeout time.Duration) {
	if !enabled() {
		return
	}
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	sentrygo.Flush(timeout)
}

func enabled() bool {
	return sentrygo.CurrentHub().Client() != nil
}
