package host

import (
	"bytes"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WildcardPermission grants every permission.
const WildcardPermission = "*"

type member struct {
	player      Player
	permissions map[string]struct{}
	deaths      *int64
}

// Roster is a Host kept up to date by events. It also reports the host's tick metrics and death
// statistics once they have been received. It is safe for concurrent use.
type Roster struct {
	mu       sync.RWMutex
	members  map[uuid.UUID]*member
	capacity int

	tps  *[3]float64
	mspt *float64
}

func NewRoster(capacity int) *Roster {
	return &Roster{
		members:  make(map[uuid.UUID]*member),
		capacity: capacity,
	}
}

// Join adds or replaces the player. The address may carry a port. An unparsable address is
// stored as unknown.
func (r *Roster) Join(ev JoinEvent) {
	addr := parseAddr(ev.Address)
	m := &member{
		player: Player{
			ID:       ev.ID,
			Name:     ev.Name,
			Address:  addr.Unmap(),
			Region:   ev.Region,
			Vanished: ev.Vanished,
		},
		permissions: make(map[string]struct{}, len(ev.Permissions)),
	}
	for _, p := range ev.Permissions {
		m.permissions[p] = struct{}{}
	}
	if ev.Deaths != nil {
		d := *ev.Deaths
		m.deaths = &d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[ev.ID] = m
}

// Quit removes the player and reports whether it was online.
func (r *Roster) Quit(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	delete(r.members, id)
	return ok
}

// Move updates region and visibility. It reports false for players that are not online.
func (r *Roster) Move(ev MoveEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[ev.ID]
	if !ok {
		return false
	}
	m.player.Region = ev.Region
	m.player.Vanished = ev.Vanished
	return true
}

// Death bumps the host-side statistic, if the host reported one on join.
func (r *Roster) Death(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[id]; ok && m.deaths != nil {
		*m.deaths++
	}
}

// Metrics records the latest tick metrics. Absent fields keep their previous value.
func (r *Roster) Metrics(ev MetricsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.TPS != nil {
		tps := *ev.TPS
		r.tps = &tps
	}
	if ev.MSPT != nil {
		mspt := *ev.MSPT
		r.mspt = &mspt
	}
}

// OnlinePlayers returns every online player ordered by ID.
func (r *Roster) OnlinePlayers() []Player {
	r.mu.RLock()
	players := make([]Player, 0, len(r.members))
	for _, m := range r.members {
		players = append(players, m.player)
	}
	r.mu.RUnlock()

	slices.SortFunc(players, func(a, b Player) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return players
}

func (r *Roster) Player(id uuid.UUID) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return Player{}, false
	}
	return m.player, true
}

func (r *Roster) MaxPlayers() int {
	return r.capacity
}

// HasPermission reports whether the player holds permission. The empty permission is always
// held. Offline players hold nothing.
func (r *Roster) HasPermission(id uuid.UUID, permission string) bool {
	if permission == "" {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return false
	}
	if _, ok := m.permissions[WildcardPermission]; ok {
		return true
	}
	_, ok = m.permissions[permission]
	return ok
}

func (r *Roster) DeathStatistic(id uuid.UUID) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok || m.deaths == nil {
		return 0, false
	}
	return *m.deaths, true
}

func (r *Roster) TPS() ([3]float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tps == nil {
		return [3]float64{}, false
	}
	return *r.tps, true
}

func (r *Roster) TickDuration() (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.mspt == nil {
		return 0, false
	}
	return time.Duration(*r.mspt * float64(time.Millisecond)), true
}

func parseAddr(s string) netip.Addr {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr()
	}
	return netip.Addr{}
}
