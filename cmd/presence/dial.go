package main

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

type dialPolicy struct {
	attempts uint
	delay    time.Duration
}

// dial calls connect until it succeeds, the attempts run out or ctx is done. The wait between
// attempts doubles each time.
func dial[T any](ctx context.Context, p dialPolicy, log zerolog.Logger, dependency string, connect func() (T, error)) (T, error) {
	var out T
	err := retry.Do(
		func() error {
			v, err := connect()
			if err != nil {
				return err
			}
			out = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("dependency", dependency).Uint("attempt", n+1).Msg("dependency not ready, retrying")
		}),
	)
	if err != nil {
		return out, eris.Wrapf(err, "failed to connect to %s after %d attempts", dependency, p.attempts)
	}
	return out, nil
}
