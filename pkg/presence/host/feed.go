package host

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	ErrInvalidEvent  = eris.New("invalid event")
	ErrPlayerOffline = eris.New("player is not online")
)

// Listener receives player lifecycle notifications after the roster has been updated.
type Listener interface {
	Join(id uuid.UUID)
	Quit(id uuid.UUID)
	Death(id uuid.UUID)
}

// Feed applies host events to a Roster and forwards lifecycle events to a Listener. The NATS
// subscriptions and the HTTP event routes both go through it.
type Feed struct {
	roster   *Roster
	listener Listener
}

func NewFeed(roster *Roster, listener Listener) *Feed {
	return &Feed{roster: roster, listener: listener}
}

func (f *Feed) Join(ev JoinEvent) error {
	if ev.ID == uuid.Nil || ev.Name == "" {
		return eris.Wrap(ErrInvalidEvent, "join requires id and name")
	}
	f.roster.Join(ev)
	f.listener.Join(ev.ID)
	return nil
}

// Quit is forwarded even for players the roster does not know, so render-side state is always
// released.
func (f *Feed) Quit(ev QuitEvent) error {
	if ev.ID == uuid.Nil {
		return eris.Wrap(ErrInvalidEvent, "quit requires id")
	}
	f.roster.Quit(ev.ID)
	f.listener.Quit(ev.ID)
	return nil
}

func (f *Feed) Death(ev DeathEvent) error {
	if ev.ID == uuid.Nil {
		return eris.Wrap(ErrInvalidEvent, "death requires id")
	}
	f.roster.Death(ev.ID)
	f.listener.Death(ev.ID)
	return nil
}

func (f *Feed) Move(ev MoveEvent) error {
	if ev.ID == uuid.Nil {
		return eris.Wrap(ErrInvalidEvent, "move requires id")
	}
	if !f.roster.Move(ev) {
		return eris.Wrapf(ErrPlayerOffline, "move %s", ev.ID)
	}
	return nil
}

func (f *Feed) Metrics(ev MetricsEvent) error {
	if ev.TPS == nil && ev.MSPT == nil {
		return eris.Wrap(ErrInvalidEvent, "metrics require tps or mspt")
	}
	f.roster.Metrics(ev)
	return nil
}
