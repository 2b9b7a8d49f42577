package schedule

import "time"

// Rotation tracks which rotating message is current. The cursor only grows; renderers take it
// modulo the number of messages.
type Rotation struct {
	interval time.Duration
	elapsed  time.Duration
	cursor   int
}

func NewRotation(interval time.Duration) Rotation {
	return Rotation{interval: interval}
}

// Advance adds dt and, once the interval has elapsed, steps the cursor once and resets the
// elapsed time. It reports whether the cursor moved. A non-positive interval never rotates.
func (r *Rotation) Advance(dt time.Duration) bool {
	if r.interval <= 0 {
		return false
	}
	r.elapsed += max(dt, 0)
	if r.elapsed < r.interval {
		return false
	}
	r.cursor++
	r.elapsed = 0
	return true
}

func (r *Rotation) Cursor() int {
	return r.cursor
}

// Reset changes the interval and clears the elapsed time. The cursor is kept.
func (r *Rotation) Reset(interval time.Duration) {
	r.interval = interval
	r.elapsed = 0
}
