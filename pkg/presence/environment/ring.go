package environment

import (
	"math/bits"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

type rateSample struct {
	at   time.Time
	rate float64
}

// rateRing is a bounded ring buffer of timestamped tick-rate samples indexed by a monotonically
// increasing write counter. It is safe for a single writer with concurrent readers.
type rateRing struct {
	mu   sync.RWMutex
	buf  []rateSample
	mask uint64 // cap-1, cap is power of two
	head uint64 // absolute write cursor
}

// newRateRing creates a ring buffer with power-of-two capacity.
// If capacity is not a power of two, it is rounded up.
func newRateRing(capacity int) (*rateRing, error) {
	if capacity <= 0 {
		return nil, eris.Errorf("capacity must be > 0, got %d", capacity)
	}
	capacity = roundUpPowerOfTwo(capacity)
	return &rateRing{
		buf:  make([]rateSample, capacity),
		mask: uint64(capacity - 1), //nolint:gosec // capacity validated > 0 and power-of-two
	}, nil
}

// push writes the sample into the next slot, overwriting the oldest.
func (r *rateRing) push(v rateSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head&r.mask] = v
	r.head++
}

// averageSince returns the mean rate of the retained samples taken at or after cutoff.
func (r *rateRing) averageSince(cutoff time.Time) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := uint64(0)
	if r.head > uint64(len(r.buf)) {
		start = r.head - uint64(len(r.buf))
	}

	var sum float64
	var n int
	// Walk newest to oldest and stop at the first sample outside the window.
	for t := r.head; t > start; t-- {
		s := r.buf[(t-1)&r.mask]
		if s.at.Before(cutoff) {
			break
		}
		sum += s.rate
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func roundUpPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1)) //nolint:gosec // n >= 2 at this point
}
