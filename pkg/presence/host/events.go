package host

import (
	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/google/uuid"
)

// JoinEvent announces a player. Deaths is the host's own statistic, if it keeps one.
type JoinEvent struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address,omitempty"`
	Region      string    `json:"region,omitempty"`
	Vanished    bool      `json:"vanished,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Deaths      *int64    `json:"deaths,omitempty"`
}

type QuitEvent struct {
	ID uuid.UUID `json:"id"`
}

type DeathEvent struct {
	ID uuid.UUID `json:"id"`
}

// MoveEvent reports a region or visibility change of an online player.
type MoveEvent struct {
	ID       uuid.UUID `json:"id"`
	Region   string    `json:"region"`
	Vanished bool      `json:"vanished"`
}

// MetricsEvent carries the host's tick metrics. TPS holds the 1m, 5m and 15m averages.
type MetricsEvent struct {
	TPS  *[3]float64 `json:"tps,omitempty"`
	MSPT *float64    `json:"mspt,omitempty"`
}

// Surface messages published by NATSSurface.

type LineMessage struct {
	ID   uuid.UUID         `json:"id"`
	Text render.StyledText `json:"text"`
}

type HeaderFooterMessage struct {
	ID     uuid.UUID         `json:"id"`
	Header render.StyledText `json:"header"`
	Footer render.StyledText `json:"footer"`
}

type GroupMessage struct {
	Group string     `json:"group"`
	ID    *uuid.UUID `json:"id,omitempty"`
}
