package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limiter hands out one sampled logger per error kind so a failure that repeats every tick is
// logged once per period instead of flooding the output.
type Limiter struct {
	mu     sync.Mutex
	base   zerolog.Logger
	period time.Duration
	kinds  map[string]zerolog.Logger
}

func NewLimiter(base zerolog.Logger, period time.Duration) *Limiter {
	return &Limiter{
		base:   base,
		period: period,
		kinds:  make(map[string]zerolog.Logger),
	}
}

// Logger returns the sampled logger for kind, creating it on first use.
func (l *Limiter) Logger(kind string) *zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger, ok := l.kinds[kind]
	if !ok {
		logger = l.base.Sample(&zerolog.BurstSampler{Burst: 1, Period: l.period}).
			With().Str("kind", kind).Logger()
		l.kinds[kind] = logger
	}
	return &logger
}

// Error starts an error event for kind. The event is a no-op when the kind's budget is spent.
func (l *Limiter) Error(kind string, err error) *zerolog.Event {
	return l.Logger(kind).Error().Err(err)
}
