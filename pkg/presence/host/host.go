// Package host defines what the presence engine consumes from the game server: the online player
// list and permission checks, the render surface, third-party placeholder providers, and the
// events that drive it. Roster, Feed and the NATS adapters implement these over the message bus.
package host

import (
	"net/netip"

	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/google/uuid"
)

type Player struct {
	ID       uuid.UUID
	Name     string
	Address  netip.Addr // invalid when unknown
	Region   string
	Vanished bool
}

type Host interface {
	OnlinePlayers() []Player
	Player(id uuid.UUID) (Player, bool)
	MaxPlayers() int
	HasPermission(id uuid.UUID, permission string) bool
}

// DeathStatistic is implemented by hosts that track their own death counts. ok is false when the
// host has no value for the player.
type DeathStatistic interface {
	DeathStatistic(id uuid.UUID) (deaths int64, ok bool)
}

// GroupHandle identifies a render group created on a surface.
type GroupHandle string

// GroupSurface is the part of the surface that controls render groups.
type GroupSurface interface {
	CreateGroup(key string) (GroupHandle, error)
	DestroyGroup(h GroupHandle) error
	AddMember(h GroupHandle, id uuid.UUID) error
	RemoveMember(h GroupHandle, id uuid.UUID) error
}

// Surface displays rendered text. It is only called from the engine's main loop.
type Surface interface {
	SetRosterLine(id uuid.UUID, line render.StyledText) error
	SetHeaderFooter(id uuid.UUID, header, footer render.StyledText) error
	SetNameLabel(id uuid.UUID, label render.StyledText) error
	GroupSurface
}

// Provider resolves third-party %token% placeholders.
type Provider = render.Provider
