// Package schedule drives the fast and slow refresh cycles.
//
// A Scheduler only owns the tickers and the stage. The cycles themselves run in the owner's loop,
// which selects on FastC and SlowC. Both channels are nil while stopped, so a select blocks on
// them forever and a stopped scheduler needs no special casing.
package schedule

import (
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
)

const (
	DefaultFastInterval     = time.Second
	DefaultSlowInterval     = 10 * time.Second
	DefaultRotationInterval = 10 * time.Second
)

type Stage int32

const (
	StageStopped Stage = iota
	StageRunning
)

func (s Stage) String() string {
	switch s {
	case StageStopped:
		return "stopped"
	case StageRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Ticker is the part of *time.Ticker the scheduler needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Scheduler is driven from a single goroutine. Stage and Running may be read from anywhere.
type Scheduler struct {
	stage     atomic.Int32
	newTicker TickerFunc

	fast         Ticker
	slow         Ticker
	fastInterval time.Duration
	slowInterval time.Duration
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{newTicker: newTimeTicker}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks that slow >= fast > 0.
func Validate(fast, slow time.Duration) error {
	if fast <= 0 {
		return eris.Errorf("fast interval must be positive, got %s", fast)
	}
	if slow < fast {
		return eris.Errorf("slow interval %s must not be shorter than fast interval %s", slow, fast)
	}
	return nil
}

// Start moves Stopped -> Running and arms both tickers.
func (s *Scheduler) Start(fast, slow time.Duration) error {
	if err := Validate(fast, slow); err != nil {
		return err
	}
	if !s.stage.CompareAndSwap(int32(StageStopped), int32(StageRunning)) {
		return eris.New("scheduler is already running")
	}
	s.fastInterval, s.slowInterval = fast, slow
	s.fast = s.newTicker(fast)
	s.slow = s.newTicker(slow)
	return nil
}

// Stop moves Running -> Stopped. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	if !s.stage.CompareAndSwap(int32(StageRunning), int32(StageStopped)) {
		return
	}
	s.fast.Stop()
	s.slow.Stop()
	s.fast, s.slow = nil, nil
}

// Restart stops and starts again with fresh tickers, so elapsed time resets to zero. The
// intervals are validated first and a rejected restart leaves the scheduler as it was.
func (s *Scheduler) Restart(fast, slow time.Duration) error {
	if err := Validate(fast, slow); err != nil {
		return err
	}
	s.Stop()
	return s.Start(fast, slow)
}

func (s *Scheduler) Stage() Stage {
	return Stage(s.stage.Load())
}

func (s *Scheduler) Running() bool {
	return s.Stage() == StageRunning
}

// FastC returns the fast ticker channel, or nil when stopped.
func (s *Scheduler) FastC() <-chan time.Time {
	if s.fast == nil {
		return nil
	}
	return s.fast.C()
}

// SlowC returns the slow ticker channel, or nil when stopped.
func (s *Scheduler) SlowC() <-chan time.Time {
	if s.slow == nil {
		return nil
	}
	return s.slow.C()
}

// Intervals returns the intervals of the current run.
func (s *Scheduler) Intervals() (fast, slow time.Duration) {
	return s.fastInterval, s.slowInterval
}

type Option func(*Scheduler)

// WithTicker replaces time.NewTicker.
func WithTicker(f TickerFunc) Option {
	return func(s *Scheduler) {
		s.newTicker = f
	}
}
