package environment

import (
	"strings"
	"time"
)

// TPSReporter is implemented by hosts that compute their own 1m, 5m and 15m tick-rate averages.
// ok is false until the host has a value to report.
type TPSReporter interface {
	TPS() (averages [3]float64, ok bool)
}

// TickRateSampler is implemented by hosts that can only report the instantaneous tick rate. The
// sampler averages it over time.
type TickRateSampler interface {
	TickRate() (rate float64, ok bool)
}

// TickDurationReporter is implemented by hosts that report the average time spent per tick.
type TickDurationReporter interface {
	TickDuration() (d time.Duration, ok bool)
}

// Capabilities is the set of performance metrics a host can provide. It is computed once by
// Negotiate and never re-probed.
type Capabilities uint8

const (
	CapTPS Capabilities = 1 << iota
	CapTickRate
	CapTickDuration
)

// Negotiate probes h for the optional metric interfaces.
func Negotiate(h any) Capabilities {
	var caps Capabilities
	if _, ok := h.(TPSReporter); ok {
		caps |= CapTPS
	}
	if _, ok := h.(TickRateSampler); ok {
		caps |= CapTickRate
	}
	if _, ok := h.(TickDurationReporter); ok {
		caps |= CapTickDuration
	}
	return caps
}

func (c Capabilities) Has(other Capabilities) bool {
	return c&other == other
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(CapTPS) {
		parts = append(parts, "tps")
	}
	if c.Has(CapTickRate) {
		parts = append(parts, "tick_rate")
	}
	if c.Has(CapTickDuration) {
		parts = append(parts, "tick_duration")
	}
	return strings.Join(parts, "|")
}
