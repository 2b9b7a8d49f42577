package presence

import (
	"github.com/argus-labs/presence/pkg/presence/attribute"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/google/uuid"
)

var _ host.Listener = (*Engine)(nil)

// Join handles a player joining. The player must already be visible through the host.
func (e *Engine) Join(id uuid.UUID) {
	e.post(func() { e.join(id) })
}

// Quit releases the player's render-side state. Stored attributes are kept.
func (e *Engine) Quit(id uuid.UUID) {
	e.post(func() { e.groups.Unassign(id) })
}

func (e *Engine) Death(id uuid.UUID) {
	e.post(func() { e.death(id) })
}

func (e *Engine) join(id uuid.UUID) {
	p, ok := e.host.Player(id)
	if !ok {
		e.log.Debug().Stringer("player", id).Msg("ignoring join of a player who already left")
		return
	}

	rec := e.store.Get(id)
	if rec.Status == "" {
		e.applyDefaultStatus(id)
	}
	if e.cfg.Deaths.Enabled && e.cfg.Deaths.SyncWithVanilla && e.stats != nil && rec.Deaths == 0 {
		if n, ok := e.stats.DeathStatistic(id); ok && n > 0 {
			e.store.SetDeaths(id, n)
		}
	}
	if e.cfg.Country.Enabled {
		e.enrich(p, rec.Country)
	}
	e.refreshPlayer(id)
}

func (e *Engine) applyDefaultStatus(id uuid.UUID) {
	def, ok := e.status(e.cfg.General.DefaultStatus)
	if !ok {
		return
	}
	if def.Permission != "" && !e.host.HasPermission(id, def.Permission) {
		return
	}
	e.store.SetStatus(id, def.Key)
}

func (e *Engine) death(id uuid.UUID) {
	if !e.cfg.Deaths.Enabled {
		return
	}
	e.store.AddDeaths(id, 1)
	e.refreshPlayer(id)
}

// enrich starts a country lookup and applies the result on the main loop when it lands.
func (e *Engine) enrich(p host.Player, cached *attribute.Country) {
	future := e.fetcher.Fetch(e.ctx, p.ID, p.Address, cached)
	go func() {
		select {
		case <-future.Done():
		case <-e.done:
			return
		}
		if country := future.Value(); country != nil {
			e.post(func() { e.applyCountry(p.ID, country) })
		}
	}()
}

// applyCountry writes a lookup result. It re-renders only while the display is enabled.
func (e *Engine) applyCountry(id uuid.UUID, country *attribute.Country) {
	if cur := e.store.Get(id).Country; cur != nil &&
		cur.Name == country.Name && cur.Code == country.Code && cur.FetchedAt.Equal(country.FetchedAt) {
		return
	}
	e.store.SetCountry(id, country)
	e.refreshPlayer(id)
}
