package presence

import (
	"context"
	"strings"

	"github.com/argus-labs/presence/pkg/presence/attribute"
	"github.com/argus-labs/presence/pkg/presence/config"
	"github.com/argus-labs/presence/pkg/presence/host"
	"github.com/argus-labs/presence/pkg/presence/render"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	ErrEngineStopped = eris.New("presence engine is not running")
	ErrInvalidAmount = eris.New("amount must not be negative")
	ErrUnknownMode   = eris.New("unknown death adjustment mode")
	ErrUnknownStatus = eris.New("unknown status")
)

type StatusResult uint8

const (
	StatusApplied StatusResult = iota
	StatusInvalidKey
	StatusNoPermission
)

func (r StatusResult) String() string {
	switch r {
	case StatusApplied:
		return "applied"
	case StatusInvalidKey:
		return "invalid_key"
	case StatusNoPermission:
		return "no_permission"
	default:
		return "unknown"
	}
}

type DeathMode string

const (
	DeathsAdd      DeathMode = "add"
	DeathsSubtract DeathMode = "subtract"
	DeathsSet      DeathMode = "set"
	DeathsReset    DeathMode = "reset"
)

// StatusPreview shows how a status looks, alone and in a chat line, for one viewer.
type StatusPreview struct {
	Key        string            `json:"key"`
	Permission string            `json:"permission,omitempty"`
	Allowed    bool              `json:"allowed"`
	Status     render.StyledText `json:"status"`
	Chat       render.StyledText `json:"chat"`
}

// call runs f on the main loop and waits for its result.
func call[T any](ctx context.Context, e *Engine, f func() T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case e.tasks <- func() { reply <- f() }:
	case <-e.done:
		return zero, ErrEngineStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-e.done:
		// The task may have run just before the loop exited.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrEngineStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// SetStatus gives id the status key, if it exists and id holds its permission.
func (e *Engine) SetStatus(ctx context.Context, id uuid.UUID, key string) (StatusResult, error) {
	return call(ctx, e, func() StatusResult {
		def, ok := e.status(strings.ToLower(strings.TrimSpace(key)))
		if !ok {
			return StatusInvalidKey
		}
		if def.Permission != "" && !e.host.HasPermission(id, def.Permission) {
			return StatusNoPermission
		}
		e.store.SetStatus(id, def.Key)
		e.refreshPlayer(id)
		return StatusApplied
	})
}

func (e *Engine) ClearStatus(ctx context.Context, id uuid.UUID) error {
	_, err := call(ctx, e, func() struct{} {
		e.store.SetStatus(id, "")
		e.refreshPlayer(id)
		return struct{}{}
	})
	return err
}

// GetStatus returns the player's status key, or "" if it has none or its key no longer exists.
func (e *Engine) GetStatus(ctx context.Context, id uuid.UUID) (string, error) {
	return call(ctx, e, func() string {
		def, _ := e.status(e.store.Get(id).Status)
		return def.Key
	})
}

func (e *Engine) GetDeaths(ctx context.Context, id uuid.UUID) (int64, error) {
	return call(ctx, e, func() int64 {
		return e.store.Get(id).Deaths
	})
}

// GetCountry returns the player's last known country, or nil.
func (e *Engine) GetCountry(ctx context.Context, id uuid.UUID) (*attribute.Country, error) {
	return call(ctx, e, func() *attribute.Country {
		return e.store.Get(id).Country
	})
}

// TotalDeaths returns the server-wide aggregate.
func (e *Engine) TotalDeaths() int64 {
	return e.store.TotalDeaths()
}

// AdjustDeaths changes the death count and returns the stored value. amount must not be negative
// and is ignored by DeathsReset. Invalid input changes nothing.
func (e *Engine) AdjustDeaths(ctx context.Context, id uuid.UUID, amount int64, mode DeathMode) (int64, error) {
	if amount < 0 {
		return 0, eris.Wrapf(ErrInvalidAmount, "got %d", amount)
	}
	var apply func() int64
	switch DeathMode(strings.ToLower(string(mode))) {
	case DeathsAdd:
		apply = func() int64 { return e.store.AddDeaths(id, amount) }
	case DeathsSubtract:
		apply = func() int64 { return e.store.AddDeaths(id, -amount) }
	case DeathsSet:
		apply = func() int64 { return e.store.SetDeaths(id, amount) }
	case DeathsReset:
		apply = func() int64 { return e.store.SetDeaths(id, 0) }
	default:
		return 0, eris.Wrapf(ErrUnknownMode, "%q", mode)
	}
	return call(ctx, e, func() int64 {
		n := apply()
		e.refreshPlayer(id)
		return n
	})
}

// Reload saves synchronously, swaps in cfg, restarts the refresh cycles from zero and reassigns
// and re-renders everyone. An invalid cfg is rejected and the current one kept. Fallbacks recorded
// in cfg.Warnings are logged.
func (e *Engine) Reload(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return eris.Wrap(err, "invalid config")
	}
	result, err := call(ctx, e, func() error {
		ctx, span := e.tracer.Start(e.ctx, "presence.reload")
		defer span.End()
		log := e.tel.GetLoggerWithTrace(ctx, "reload")

		logConfigWarnings(log, cfg)
		e.forceSave(ctx, "reload")
		e.applyConfig(cfg)
		e.enabled = cfg.Tablist.Enabled
		log.Info().Int("statuses", len(cfg.Statuses)).Bool("enabled", e.enabled).Msg("configuration reloaded")
		if !e.enabled {
			e.sched.Stop()
			return nil
		}
		return e.start()
	})
	if err != nil {
		return err
	}
	return result
}

// SetEnabled turns the roster display on or off. Turning it off stops both refresh cycles and
// saves. Stored attributes are never touched.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	result, err := call(ctx, e, func() error {
		if enabled == e.enabled {
			return nil
		}
		e.enabled = enabled
		if enabled {
			return e.start()
		}
		e.sched.Stop()
		e.forceSave(e.ctx, "disable")
		return nil
	})
	if err != nil {
		return err
	}
	return result
}

// forceSave saves synchronously. A failure leaves the store dirty for the next cycle to retry.
func (e *Engine) forceSave(ctx context.Context, reason string) {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := e.store.ForceSave(ctx); err != nil {
		e.log.Error().Err(err).Str("reason", reason).Msg("synchronous save failed, will retry")
		e.tel.CaptureException(ctx, err, "operation", "save", "reason", reason)
	}
}

// RenderChat renders a chat line for id. With chat formatting disabled the message comes back
// unformatted.
func (e *Engine) RenderChat(ctx context.Context, id uuid.UUID, message string) (render.StyledText, error) {
	return call(ctx, e, func() render.StyledText {
		if !e.cfg.Chat.Enabled {
			return render.Plain(message)
		}
		return e.renderer.Chat(e.view(e.player(id)), e.env, message)
	})
}

// PreviewStatus renders one status for viewer.
func (e *Engine) PreviewStatus(ctx context.Context, viewer uuid.UUID, key string) (StatusPreview, error) {
	preview, err := call(ctx, e, func() *StatusPreview {
		def, ok := e.status(strings.ToLower(strings.TrimSpace(key)))
		if !ok {
			return nil
		}
		p := e.preview(viewer, def)
		return &p
	})
	if err != nil {
		return StatusPreview{}, err
	}
	if preview == nil {
		return StatusPreview{}, eris.Wrapf(ErrUnknownStatus, "%q", key)
	}
	return *preview, nil
}

// Statuses previews every configured status for viewer, in configuration order.
func (e *Engine) Statuses(ctx context.Context, viewer uuid.UUID) ([]StatusPreview, error) {
	return call(ctx, e, func() []StatusPreview {
		previews := make([]StatusPreview, 0, len(e.cfg.Statuses))
		for _, def := range e.cfg.Statuses {
			previews = append(previews, e.preview(viewer, def))
		}
		return previews
	})
}

func (e *Engine) preview(viewer uuid.UUID, def config.StatusDefinition) StatusPreview {
	status, chat := e.renderer.Preview(def.Display, e.view(e.player(viewer)), e.env)
	return StatusPreview{
		Key:        def.Key,
		Permission: def.Permission,
		Allowed:    def.Permission == "" || e.host.HasPermission(viewer, def.Permission),
		Status:     status,
		Chat:       chat,
	}
}

// player returns the host's view of id, or a bare identity when offline.
func (e *Engine) player(id uuid.UUID) host.Player {
	if p, ok := e.host.Player(id); ok {
		return p
	}
	return host.Player{ID: id}
}
