package environment

import (
	"time"

	"github.com/rotisserie/eris"
)

// Averaging windows used when the host only reports instantaneous rates.
var windows = [3]time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute} //nolint:gochecknoglobals // constant table

// ringCapacity holds 15 minutes of one-second samples.
const ringCapacity = 1024

// Sample is one reading of the host's performance metrics. Fields without a source stay unset.
type Sample struct {
	TPS     [3]float64 // 1m, 5m, 15m
	HasTPS  bool
	MSPT    float64
	HasMSPT bool
}

// Sampler reads performance metrics from whatever the host negotiated at construction.
type Sampler struct {
	caps Capabilities
	tps  TPSReporter
	rate TickRateSampler
	dur  TickDurationReporter
	ring *rateRing
	now  func() time.Time
}

// NewSampler negotiates h's capabilities once. now defaults to time.Now.
func NewSampler(h any, now func() time.Time) (*Sampler, error) {
	if now == nil {
		now = time.Now
	}
	s := &Sampler{caps: Negotiate(h), now: now}
	if s.caps.Has(CapTPS) {
		s.tps = h.(TPSReporter) //nolint:errcheck // negotiated above
	}
	if s.caps.Has(CapTickRate) {
		s.rate = h.(TickRateSampler) //nolint:errcheck // negotiated above
		ring, err := newRateRing(ringCapacity)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create tick rate ring")
		}
		s.ring = ring
	}
	if s.caps.Has(CapTickDuration) {
		s.dur = h.(TickDurationReporter) //nolint:errcheck // negotiated above
	}
	return s, nil
}

func (s *Sampler) Capabilities() Capabilities {
	return s.caps
}

// Sample takes one reading. Reported averages win over sampled ones. When the host reports
// instantaneous rates, the reading is recorded and averaged over the retained window.
func (s *Sampler) Sample() Sample {
	var out Sample

	if s.tps != nil {
		out.TPS, out.HasTPS = s.tps.TPS()
	}
	if !out.HasTPS && s.rate != nil {
		now := s.now()
		if rate, ok := s.rate.TickRate(); ok {
			s.ring.push(rateSample{at: now, rate: rate})
		}
		for i, w := range windows {
			avg, ok := s.ring.averageSince(now.Add(-w))
			if !ok {
				break
			}
			out.TPS[i] = avg
			out.HasTPS = true
		}
	}

	if s.dur != nil {
		if d, ok := s.dur.TickDuration(); ok {
			out.MSPT = float64(d) / float64(time.Millisecond)
			out.HasMSPT = true
		}
	}
	return out
}
