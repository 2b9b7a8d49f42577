// Package statsd is a helper package that wraps some common statsd methods.
// It hides the datadog dependency so a migration away from datadog only touches this file.
package statsd

import (
	"sync"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

//nolint:gochecknoglobals // process-wide client
var (
	mu     sync.RWMutex
	client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}
)

func Client() ddstatsd.ClientInterface {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// EmitCycleStat records how long one refresh cycle took, tagged with the cycle name.
func EmitCycleStat(start time.Time, cycle string) {
	duration := time.Since(start)
	err := Client().Timing("cycle", duration, []string{"cycle:" + cycle}, 1)
	if err != nil {
		log.Logger.Warn().Msgf("failed to emit cycle stat: %v", err)
	}
}

// Count increments a counter. Failures are dropped, metrics are best effort.
func Count(name string, value int64, tags ...string) {
	_ = Client().Count(name, value, tags, 1)
}

// Gauge records the current value of name.
func Gauge(name string, value float64, tags ...string) {
	_ = Client().Gauge(name, value, tags, 1)
}

func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace("presence."),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	// Success! replace the global client
	set(newClient)
	return nil
}

// Close flushes and closes the client, restoring the no-op default.
func Close() error {
	old := Client()
	set(&ddstatsd.NoOpClient{})
	if err := old.Close(); err != nil {
		return eris.Wrap(err, "failed to close statsd client")
	}
	return nil
}

func set(c ddstatsd.ClientInterface) {
	mu.Lock()
	defer mu.Unlock()
	client = c
}
