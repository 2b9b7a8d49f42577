package presence

import (
	"net/http"
	"time"

	"github.com/argus-labs/presence/pkg/presence/attribute"
	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/argus-labs/presence/pkg/presence/schedule"
	"github.com/argus-labs/presence/pkg/telemetry"
)

const defaultQueueSize = 256

type options struct {
	tel        telemetry.Telemetry
	providers  []render.Provider
	newTicker  schedule.TickerFunc
	afterFunc  attribute.AfterFunc
	now        func() time.Time
	httpClient *http.Client
	queueSize  int
}

func newDefaultOptions() options {
	return options{
		tel:       telemetry.NewNop("presence"),
		now:       time.Now,
		queueSize: defaultQueueSize,
	}
}

type Option func(*options)

// WithTelemetry sets the logger and tracer every component derives its own from.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithProviders registers third-party %token% providers, consulted in order.
func WithProviders(providers ...render.Provider) Option {
	return func(o *options) {
		o.providers = append(o.providers, providers...)
	}
}

// WithTicker replaces time.NewTicker for the refresh cycles.
func WithTicker(f schedule.TickerFunc) Option {
	return func(o *options) {
		o.newTicker = f
	}
}

// WithAfterFunc replaces time.AfterFunc for the debounced save.
func WithAfterFunc(f attribute.AfterFunc) Option {
	return func(o *options) {
		o.afterFunc = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithHTTPClient sets the client used for country lookups. Its timeout overrides the configured
// one.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithQueueSize bounds how many tasks may wait for the main loop.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}
