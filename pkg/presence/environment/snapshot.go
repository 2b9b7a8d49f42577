// Package environment captures server-wide values used by rendering: performance metrics,
// population by region, the rotating-content cursor and the total-deaths aggregate.
package environment

import (
	"maps"
	"time"
)

// Snapshot is captured once per fast cycle and shared read-only by every render until the next
// one. It is never persisted.
type Snapshot struct {
	Time           time.Time
	TimeLabel      string
	population     map[string]int
	TotalOnline    int
	MaxCapacity    int
	Performance    Sample
	RotatingCursor int
	TotalDeaths    int64
}

// Builder assembles a Snapshot. Population is copied on Build.
type Builder struct {
	Time           time.Time
	Population     map[string]int
	TotalOnline    int
	MaxCapacity    int
	Performance    Sample
	RotatingCursor int
	TotalDeaths    int64
}

func (b Builder) Build() Snapshot {
	return Snapshot{
		Time:           b.Time,
		TimeLabel:      b.Time.Format("15:04"),
		population:     maps.Clone(b.Population),
		TotalOnline:    b.TotalOnline,
		MaxCapacity:    b.MaxCapacity,
		Performance:    b.Performance,
		RotatingCursor: b.RotatingCursor,
		TotalDeaths:    b.TotalDeaths,
	}
}

// Population returns the non-vanished player count of region.
func (s Snapshot) Population(region string) int {
	return s.population[region]
}

// Regions calls fn for every region with a recorded count.
func (s Snapshot) Regions(fn func(region string, count int)) {
	for region, count := range s.population {
		fn(region, count)
	}
}
